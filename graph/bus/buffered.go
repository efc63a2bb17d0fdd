package bus

import (
	"context"
	"sync"
)

// BufferedSink accumulates events in memory instead of writing them
// immediately, for tests that want to assert on the exact event sequence a
// run produced, or for batching before a slower downstream sink.
type BufferedSink struct {
	mu     sync.Mutex
	events []Event
}

// NewBufferedSink returns an empty BufferedSink.
func NewBufferedSink() *BufferedSink {
	return &BufferedSink{}
}

func (b *BufferedSink) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

// Events returns a snapshot of every event buffered so far, in arrival
// order.
func (b *BufferedSink) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush is a no-op: BufferedSink never drops or forwards events on its own.
func (b *BufferedSink) Flush(context.Context) error { return nil }
