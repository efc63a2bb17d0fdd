// Package runner is the headless entry point for running a graph without
// an editor attached: load a GraphData document, validate it, execute it,
// and report the outcome. It depends on nothing but graph itself, so it
// can be embedded by a CLI, a test harness, or any other host process.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowgraph/engine/graph"
	"github.com/flowgraph/engine/graph/bus"
	"github.com/flowgraph/engine/graph/history"
	"github.com/flowgraph/engine/graph/queue"
	"github.com/flowgraph/engine/graph/store"
)

// Runner ties a Registry, an event bus, and a service provider together
// into one reusable façade for running graphs.
type Runner struct {
	Registry *graph.Registry
	Bus      *bus.Bus
	Services graph.ServiceProvider
	History  history.Store

	// Checkpoints, if set, persists the graph document under its runID
	// before execution starts, so a host process can reload and re-run an
	// in-flight or crashed run's exact input via Resume. Distinct from the
	// in-process Gate pause/resume: this survives the runner's own restart.
	Checkpoints store.Store[graph.GraphData]

	// historySinkAdded tracks whether History has already been registered
	// as a Bus sink, so a Runner reused across repeated Run/Resume calls
	// (Resume calls Run internally) doesn't accumulate duplicate sinks and
	// double-record events.
	historySinkAdded bool
}

// New returns a Runner over registry. bus, services, and hist may each be
// nil. With a nil bus and a nil hist no observability events are
// published; with a nil bus and a non-nil hist, Run creates a bus on first
// use so that history can be recorded.
func New(registry *graph.Registry, eventBus *bus.Bus, services graph.ServiceProvider, hist history.Store) *Runner {
	return &Runner{Registry: registry, Bus: eventBus, Services: services, History: hist}
}

// Result is the outcome of one Run call.
type Result struct {
	RunID       string
	Diagnostics []graph.Diagnostic
	Errors      []error
}

// LoadGraphData decodes a persisted graph document. Editor-only fields in
// data (position, size, overlays) are simply absent from GraphData and are
// ignored automatically by encoding/json.
func LoadGraphData(data []byte) (graph.GraphData, error) {
	var g graph.GraphData
	if err := json.Unmarshal(data, &g); err != nil {
		return graph.GraphData{}, fmt.Errorf("decode graph document: %w", err)
	}
	return g, nil
}

// Run validates g and, if validation passed, executes it under opts,
// returning once every execution initiator has finished (one at a time, or
// in parallel up to opts.MaxParallelism when that is above 1). runID identifies
// this run in published events and in the history store, if one is
// attached.
func (r *Runner) Run(ctx context.Context, g graph.GraphData, opts graph.RunOptions, runID string) (Result, error) {
	if r.History != nil {
		if r.Bus == nil {
			r.Bus = bus.New()
		}
		if !r.historySinkAdded {
			r.Bus.AddSink(r.History)
			r.historySinkAdded = true
		}
		_ = r.History.RecordRunStart(ctx, runID, time.Now())
	}
	if r.Checkpoints != nil {
		_ = r.Checkpoints.SaveStep(ctx, runID, 1, "", g)
	}

	runResult, err := graph.Execute(ctx, g, r.Registry, r.Bus, r.Services, opts, runID)

	if r.History != nil {
		errStrings := make([]string, len(runResult.Errors))
		for i, e := range runResult.Errors {
			errStrings[i] = e.Error()
		}
		_ = r.History.RecordRunEnd(ctx, runID, time.Now(), errStrings)
	}

	return Result{RunID: runID, Diagnostics: runResult.Diagnostics, Errors: runResult.Errors}, err
}

// ExecutionJob is the unit of work a fire-and-forget submission hands to a
// background Queue: the graph (nodes, connections, variables, and events),
// the options to run it under, and a Token the submitter can cancel
// independently of the Queue's own run context. RunID identifies the job
// in published events and the history store the same way a direct Run
// call's runID does. There is no separate storage field: this engine
// always starts a queued job against a fresh RuntimeStorage, the same as
// any other Run — the only carried-over state across a process restart is
// the durable GraphData document Checkpoints/Resume already provides.
type ExecutionJob struct {
	Graph   graph.GraphData
	Options graph.RunOptions
	RunID   string
	Token   *queue.Token
}

// SubmitAsync enqueues job onto q and returns immediately without waiting
// for it to run; the Run happens later on q's consumer goroutine. This is
// the engine's fire-and-forget submission path: a host that wants to kick
// off a run without blocking its caller builds an ExecutionJob (typically
// via queue.NewToken(ctx) for the Token) and calls SubmitAsync instead of
// Run. Cancelling job.Token stops the run at its first ctx check once the
// worker dequeues it; it does not remove the job from q if it has not yet
// been dequeued.
func (r *Runner) SubmitAsync(q *queue.Queue, job ExecutionJob) {
	q.Enqueue(func(context.Context) {
		_, _ = r.Run(job.Token.Context(), job.Graph, job.Options, job.RunID)
	})
}

// Resume reloads the graph document last checkpointed under runID and runs
// it again under opts, continuing events and history under the same runID.
// Returns an error wrapping store.ErrNotFound if no checkpoint was ever
// saved for runID.
func (r *Runner) Resume(ctx context.Context, opts graph.RunOptions, runID string) (Result, error) {
	if r.Checkpoints == nil {
		return Result{}, fmt.Errorf("runner: no Checkpoints store configured")
	}
	g, _, err := r.Checkpoints.LoadLatest(ctx, runID)
	if err != nil {
		return Result{}, fmt.Errorf("resume run %s: %w", runID, err)
	}
	return r.Run(ctx, g, opts, runID)
}
