// Package history provides a durable audit log for graph runs: every
// observability event a run publishes, plus the run's start/end outcome,
// persisted for later inspection. It implements bus.Sink so it attaches
// to a run's event bus exactly like any other sink.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/flowgraph/engine/graph/bus"
)

// ErrNotFound is returned when a requested run id has no recorded history.
var ErrNotFound = errors.New("history: run not found")

// RunRecord is the outcome of one completed run.
type RunRecord struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time
	Errors    []string
}

// Store persists run events and outcomes. Implementations must be safe
// for concurrent use, since a run's sink methods may be called from
// multiple node dispatch goroutines under MaxParallelism > 1.
type Store interface {
	bus.Sink

	// RecordRunStart registers runID as started at startedAt. Called once
	// per run, before the first event is appended.
	RecordRunStart(ctx context.Context, runID string, startedAt time.Time) error

	// RecordRunEnd finalizes runID with its end time and the string form
	// of every initiator error the run produced.
	RecordRunEnd(ctx context.Context, runID string, endedAt time.Time, errs []string) error

	// Events returns every event appended for runID, in append order.
	Events(ctx context.Context, runID string) ([]bus.Event, error)

	// Run returns the recorded outcome for runID, or ErrNotFound.
	Run(ctx context.Context, runID string) (RunRecord, error)

	// Close releases any resources the store holds open.
	Close() error
}
