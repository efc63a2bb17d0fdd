package bus

import (
	"context"
	"sync"
)

// Sink receives observability events. Implementations must not block
// execution for long and must not panic.
type Sink interface {
	Emit(event Event)
	Flush(ctx context.Context) error
}

// EventHandler runs when a custom graph event fires. It receives the
// cancellation token the firing run was executing under.
type EventHandler func(ctx context.Context)

// Bus is the engine's event bus: a fan-out point for observability events
// (published to every attached Sink) and a topic-keyed pub/sub for custom
// graph events, used to connect event.trigger nodes to event.listener
// nodes without either side knowing about the other.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
	subs  map[string][]EventHandler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]EventHandler)}
}

// AddSink attaches a Sink that receives every subsequent Publish call.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish fans e out to every attached sink.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()
	for _, s := range sinks {
		s.Emit(e)
	}
}

// Subscribe registers handler to run whenever PublishEventFired(eventID) is
// called. The returned function unsubscribes it.
func (b *Bus) Subscribe(eventID string, handler EventHandler) func() {
	b.mu.Lock()
	b.subs[eventID] = append(b.subs[eventID], handler)
	idx := len(b.subs[eventID]) - 1
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		handlers := b.subs[eventID]
		if idx < len(handlers) {
			handlers[idx] = nil
		}
	}
}

// PublishEventFired invokes every handler subscribed to eventID under ctx,
// and also fans an Event{Kind: KindEventFired} out to the observability
// sinks. Handlers run synchronously and in subscription order, matching
// the direct-trigger dispatch model used everywhere else in the engine.
func (b *Bus) PublishEventFired(ctx context.Context, runID, eventID string) {
	b.Publish(Event{RunID: runID, Kind: KindEventFired, EventID: eventID})

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subs[eventID]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if h == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		h(ctx)
	}
}

// Flush calls Flush on every attached sink, returning the first error.
func (b *Bus) Flush(ctx context.Context) error {
	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()

	var first error
	for _, s := range sinks {
		if err := s.Flush(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
