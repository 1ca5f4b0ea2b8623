package core

import (
	"context"
	"errors"
)

// Sentinel errors returned by Actor operations.
var (
	ErrActorStopped = errors.New("actor is not running")
	ErrMailboxFull  = errors.New("actor mailbox is full")
)

// MessageHandler processes incoming messages for an Actor.
type MessageHandler interface {
	// HandleMessage processes a single message. The returned value becomes
	// the payload of the Call response.
	HandleMessage(ctx context.Context, msg *Message) (any, error)
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(ctx context.Context, msg *Message) (any, error)

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) (any, error) {
	return f(ctx, msg)
}

// Actor represents a computational unit that processes messages sequentially.
// Each Actor runs in its own goroutine and communicates through channels.
type Actor interface {
	// ID returns the unique identifier of this Actor.
	ID() ActorID

	// Start begins the Actor's message processing loop.
	// It should be called only once per Actor instance.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the Actor.
	// It will finish processing the current message before stopping.
	Stop() error

	// Send sends a message to this Actor's mailbox.
	// It returns an error if the Actor is stopped or mailbox is full.
	Send(msg *Message) error

	// Call sends a message and waits for the handler's result.
	Call(ctx context.Context, msg *Message) (*Message, error)

	// Stats returns current runtime statistics for this Actor.
	Stats() ActorStats
}
