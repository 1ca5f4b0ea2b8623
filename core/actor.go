package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// actor implements the Actor interface.
type actor struct {
	id      ActorID
	name    string
	handler MessageHandler

	// Channel for receiving messages
	mailbox chan *Message

	// Context for controlling the Actor lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	// Wait group for graceful shutdown
	wg sync.WaitGroup

	// Atomic counters for statistics
	state             int32 // ActorState
	messageCounter    uint64
	messagesProcessed uint64
	messagesFailed    uint64
	createdAt         time.Time
	lastMessageAt     int64 // Unix nanoseconds

	started int32

	// Pending calls for synchronous communication
	pendingCalls   sync.Map // map[uint32]chan *Message
	sessionCounter uint32

	opts ActorOptions
}

// NewActor creates a new Actor instance.
func NewActor(id ActorID, handler MessageHandler, opts ActorOptions) Actor {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultActorOptions().MailboxSize
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = DefaultActorOptions().ProcessTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &actor{
		id:        id,
		name:      opts.Name,
		handler:   handler,
		mailbox:   make(chan *Message, opts.MailboxSize),
		ctx:       ctx,
		cancel:    cancel,
		createdAt: time.Now(),
		opts:      opts,
	}

	atomic.StoreInt32(&a.state, int32(ActorStateIdle))

	return a
}

// ID returns the unique identifier of this Actor.
func (a *actor) ID() ActorID {
	return a.id
}

// Start begins the message loop. Cancelling ctx has the same effect as Stop,
// minus the wait.
func (a *actor) Start(ctx context.Context) error {
	if a.ctx.Err() != nil {
		return fmt.Errorf("actor %d: %w", a.id, ErrActorStopped)
	}
	if !atomic.CompareAndSwapInt32(&a.started, 0, 1) {
		return fmt.Errorf("actor %d is already started (state: %s)", a.id, a.state32())
	}

	a.wg.Add(1)
	go a.messageLoop(ctx)

	return nil
}

// Stop gracefully shuts down the Actor.
func (a *actor) Stop() error {
	if !atomic.CompareAndSwapInt32(&a.state, int32(ActorStateIdle), int32(ActorStateStopping)) &&
		!atomic.CompareAndSwapInt32(&a.state, int32(ActorStateRunning), int32(ActorStateStopping)) {
		return fmt.Errorf("actor %d cannot be stopped from state %s", a.id, a.state32())
	}

	a.cancel()
	a.wg.Wait()

	atomic.StoreInt32(&a.state, int32(ActorStateStopped))

	return nil
}

// Send sends a message to this Actor's mailbox.
func (a *actor) Send(msg *Message) error {
	if a.ctx.Err() != nil {
		return fmt.Errorf("actor %d: %w", a.id, ErrActorStopped)
	}

	msg.ID = atomic.AddUint64(&a.messageCounter, 1)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	select {
	case a.mailbox <- msg:
		return nil
	case <-a.ctx.Done():
		return fmt.Errorf("actor %d: %w", a.id, ErrActorStopped)
	default:
		return fmt.Errorf("actor %d: %w", a.id, ErrMailboxFull)
	}
}

// Call sends a message and waits for the handler's result. A handler error
// is returned as the error; the response payload carries the result.
func (a *actor) Call(ctx context.Context, msg *Message) (*Message, error) {
	session := atomic.AddUint32(&a.sessionCounter, 1)
	msg.Session = session

	respChan := make(chan *Message, 1)
	a.pendingCalls.Store(session, respChan)
	defer a.pendingCalls.Delete(session)

	if err := a.Send(msg); err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		if resp.Type == MessageTypeError {
			return resp, resp.Err
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.ctx.Done():
		return nil, fmt.Errorf("actor %d: %w", a.id, ErrActorStopped)
	}
}

// Stats returns current runtime statistics for this Actor.
func (a *actor) Stats() ActorStats {
	var lastMessageAt time.Time
	if ns := atomic.LoadInt64(&a.lastMessageAt); ns > 0 {
		lastMessageAt = time.Unix(0, ns)
	}

	return ActorStats{
		ID:                a.id,
		Name:              a.name,
		State:             a.state32(),
		MessagesProcessed: atomic.LoadUint64(&a.messagesProcessed),
		MessagesFailed:    atomic.LoadUint64(&a.messagesFailed),
		MailboxSize:       len(a.mailbox),
		CreatedAt:         a.createdAt,
		LastMessageAt:     lastMessageAt,
	}
}

func (a *actor) state32() ActorState {
	return ActorState(atomic.LoadInt32(&a.state))
}

// messageLoop is the main processing loop for the Actor.
func (a *actor) messageLoop(parent context.Context) {
	defer a.wg.Done()

	for {
		select {
		case msg := <-a.mailbox:
			if msg == nil {
				continue
			}
			a.processMessage(msg)

		case <-parent.Done():
			a.cancel()
			a.drainMailbox()
			return

		case <-a.ctx.Done():
			a.drainMailbox()
			return
		}
	}
}

// processMessage handles a single message.
func (a *actor) processMessage(msg *Message) {
	atomic.CompareAndSwapInt32(&a.state, int32(ActorStateIdle), int32(ActorStateRunning))
	defer atomic.CompareAndSwapInt32(&a.state, int32(ActorStateRunning), int32(ActorStateIdle))

	atomic.AddUint64(&a.messagesProcessed, 1)
	atomic.StoreInt64(&a.lastMessageAt, time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(a.ctx, a.opts.ProcessTimeout)
	defer cancel()

	result, err := a.handle(ctx, msg)
	if err != nil {
		atomic.AddUint64(&a.messagesFailed, 1)
	}

	if msg.Session != 0 {
		a.sendResponse(msg, result, err)
	}
}

// handle runs the handler and converts a panic into an error.
func (a *actor) handle(ctx context.Context, msg *Message) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("actor %d: handler panic: %v", a.id, r)
		}
	}()
	return a.handler.HandleMessage(ctx, msg)
}

// sendResponse sends a response message for a call.
func (a *actor) sendResponse(originalMsg *Message, result any, err error) {
	respChan, ok := a.pendingCalls.Load(originalMsg.Session)
	if !ok {
		return
	}

	resp := &Message{
		ID:        originalMsg.ID,
		Type:      MessageTypeResponse,
		Session:   originalMsg.Session,
		Payload:   result,
		Timestamp: time.Now(),
	}
	if err != nil {
		resp.Type = MessageTypeError
		resp.Err = err
	}

	select {
	case respChan.(chan *Message) <- resp:
	default:
		// Caller already gave up
	}
}

// drainMailbox fails any calls still queued at shutdown.
func (a *actor) drainMailbox() {
	for {
		select {
		case msg := <-a.mailbox:
			if msg != nil && msg.Session != 0 {
				a.sendResponse(msg, nil, fmt.Errorf("actor %d: %w", a.id, ErrActorStopped))
			}
		default:
			return
		}
	}
}
