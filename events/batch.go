// Package events collects observed events between optimize cycles and
// feeds them in from the outside world: Kafka, or recorded JSON lines.
package events

import (
	"sync"

	"github.com/najoast/physarum/topology"
)

// Publisher accepts events for the next optimize cycle.
type Publisher interface {
	Publish(ev topology.Event) bool
}

// Batch buffers events until the scheduler drains them. It is safe for
// concurrent use.
type Batch struct {
	mu        sync.Mutex
	events    []topology.Event
	capacity  int
	published uint64
	dropped   uint64
}

// NewBatch creates a buffer holding at most capacity events per cycle;
// capacity <= 0 means unbounded.
func NewBatch(capacity int) *Batch {
	return &Batch{capacity: capacity}
}

// Publish appends ev. It reports false, and counts a drop, when the buffer
// is full.
func (b *Batch) Publish(ev topology.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity > 0 && len(b.events) >= b.capacity {
		b.dropped++
		return false
	}
	b.events = append(b.events, ev)
	b.published++
	return true
}

// Drain returns the buffered events and empties the buffer.
func (b *Batch) Drain() []topology.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.events
	b.events = nil
	return out
}

// Requeue puts events from a failed cycle back in front of anything
// published since the drain. When that exceeds capacity the newest events
// are dropped and counted; Requeue returns how many.
func (b *Batch) Requeue(evs []topology.Event) int {
	if len(evs) == 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]topology.Event, 0, len(evs)+len(b.events))
	merged = append(merged, evs...)
	merged = append(merged, b.events...)

	dropped := 0
	if b.capacity > 0 && len(merged) > b.capacity {
		dropped = len(merged) - b.capacity
		merged = merged[:b.capacity]
		b.dropped += uint64(dropped)
	}
	b.events = merged
	return dropped
}

// Len returns the number of buffered events.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Counters returns the running totals of accepted and dropped events.
func (b *Batch) Counters() (published, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published, b.dropped
}
