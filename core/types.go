package core

import (
	"time"
)

// ActorID represents a unique identifier for an Actor.
type ActorID uint32

// MessageType defines the type of message being sent.
type MessageType uint8

// Message is the unit of work delivered to an Actor's mailbox.
type Message struct {
	// ID is assigned by the actor when the message is accepted
	ID uint64

	// Type indicates the message category
	Type MessageType

	// Session correlates a Call with its response; zero for Send
	Session uint32

	// Payload is handed to the MessageHandler untouched
	Payload any

	// Err carries the handler error on MessageTypeError responses
	Err error

	// Timestamp when the message was created
	Timestamp time.Time
}

// ActorState represents the current state of an Actor.
type ActorState uint8

const (
	// ActorStateIdle means the Actor is waiting for messages
	ActorStateIdle ActorState = iota

	// ActorStateRunning means the Actor is processing a message
	ActorStateRunning

	// ActorStateStopping means the Actor is shutting down
	ActorStateStopping

	// ActorStateStopped means the Actor has been stopped
	ActorStateStopped
)

// String returns the string representation of ActorState.
func (s ActorState) String() string {
	switch s {
	case ActorStateIdle:
		return "idle"
	case ActorStateRunning:
		return "running"
	case ActorStateStopping:
		return "stopping"
	case ActorStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// MessageTypeRequest for messages that ask the handler to act
	MessageTypeRequest MessageType = iota

	// MessageTypeResponse for successful call results
	MessageTypeResponse

	// MessageTypeError for failed call results
	MessageTypeError
)

// String returns the string representation of MessageType.
func (t MessageType) String() string {
	switch t {
	case MessageTypeRequest:
		return "request"
	case MessageTypeResponse:
		return "response"
	case MessageTypeError:
		return "error"
	default:
		return "unknown"
	}
}

// ActorOptions contains configuration options for creating an Actor.
type ActorOptions struct {
	// MailboxSize sets the size of the Actor's message queue
	MailboxSize int

	// Name is a human-readable name for the Actor
	Name string

	// ProcessTimeout bounds a single HandleMessage call
	ProcessTimeout time.Duration
}

// DefaultActorOptions returns sensible default options.
func DefaultActorOptions() ActorOptions {
	return ActorOptions{
		MailboxSize:    1000,
		Name:           "",
		ProcessTimeout: 30 * time.Second,
	}
}

// ActorStats contains runtime statistics for an Actor.
type ActorStats struct {
	ID                ActorID
	Name              string
	State             ActorState
	MessagesProcessed uint64
	MessagesFailed    uint64
	MailboxSize       int
	CreatedAt         time.Time
	LastMessageAt     time.Time
}
