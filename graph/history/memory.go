package history

import (
	"context"
	"sync"
	"time"

	"github.com/flowgraph/engine/graph/bus"
)

// MemoryStore is an in-process Store, useful for tests and for headless
// runs that only need history within the process lifetime.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]bus.Event
	runs   map[string]RunRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string][]bus.Event),
		runs:   make(map[string]RunRecord),
	}
}

func (m *MemoryStore) RecordRunStart(ctx context.Context, runID string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID] = RunRecord{RunID: runID, StartedAt: startedAt}
	return nil
}

func (m *MemoryStore) RecordRunEnd(ctx context.Context, runID string, endedAt time.Time, errs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[runID]
	r.RunID = runID
	r.EndedAt = endedAt
	r.Errors = errs
	m.runs[runID] = r
	return nil
}

func (m *MemoryStore) Events(ctx context.Context, runID string) ([]bus.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bus.Event, len(m.events[runID]))
	copy(out, m.events[runID])
	return out, nil
}

func (m *MemoryStore) Run(ctx context.Context, runID string) (RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return r, nil
}

// Emit implements bus.Sink by appending e to its run's event log.
func (m *MemoryStore) Emit(e bus.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.RunID] = append(m.events[e.RunID], e)
}

// Flush is a no-op: MemoryStore writes synchronously.
func (m *MemoryStore) Flush(context.Context) error { return nil }

// Close is a no-op: MemoryStore holds no external resources.
func (m *MemoryStore) Close() error { return nil }
