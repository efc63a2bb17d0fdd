package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/flowgraph/engine/graph/bus"
)

// RunResult is the outcome of one Execute call: every diagnostic Validate
// produced (surfaced regardless of whether execution ran), plus one error
// per execution initiator that failed, in initiator order, followed by the
// event bus's Flush error when it returns one.
type RunResult struct {
	Diagnostics []Diagnostic
	Errors      []error
}

// Execute validates g, constructs a runtime, and runs every execution
// initiator (excluding event.listener synthetic nodes, which only run
// when their event fires). Initiators run one at a time when
// opts.MaxParallelism is 1 (its default), in ascending node-id order for
// determinism; above 1, up to that many run concurrently.
//
// Execute returns a non-nil error only for failures that prevent any node
// from running at all (a validation error, or a definition that failed to
// resolve); per-initiator failures are reported in RunResult.Errors so
// that one failing branch does not hide the others' outcomes.
func Execute(ctx context.Context, g GraphData, registry *Registry, eventBus *bus.Bus, services ServiceProvider, opts RunOptions, runID string) (RunResult, error) {
	vr := Validate(g.Nodes, g.Connections)
	result := RunResult{Diagnostics: vr.Diagnostics}
	if eventBus != nil {
		for _, d := range vr.Diagnostics {
			eventBus.Publish(bus.Event{
				RunID: runID, NodeID: d.NodeID, Kind: bus.KindFeedback,
				Severity: severityOf(d.Severity), Message: d.Message,
			})
		}
	}
	if vr.HasErrors {
		return result, &EngineError{Kind: KindValidationError, Message: "graph failed validation; see Diagnostics"}
	}

	rt, err := NewExecutionRuntime(g, registry, eventBus, services, opts, runID)
	if err != nil {
		return result, err
	}
	defer rt.Close()

	var initiatorIDs []string
	for _, n := range g.Nodes {
		if !n.ExecInit {
			continue
		}
		if _, isListener := listenerEventID(n.DefinitionID); isListener {
			continue
		}
		initiatorIDs = append(initiatorIDs, n.ID)
	}
	sort.Strings(initiatorIDs)

	result.Errors = runInitiators(ctx, rt, initiatorIDs, opts.MaxParallelism)
	if eventBus != nil {
		if err := eventBus.Flush(ctx); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}
	return result, nil
}

func runInitiators(ctx context.Context, rt *ExecutionRuntime, ids []string, maxParallelism int) []error {
	errs := make([]error, len(ids))

	if maxParallelism <= 1 {
		for i, id := range ids {
			if err := rt.gate.Wait(ctx); err != nil {
				errs[i] = newCancelled(id, err)
				continue
			}
			errs[i] = rt.runNode(ctx, id, 0, nil)
		}
		return compact(errs)
	}

	sem := make(chan struct{}, maxParallelism)
	var wg sync.WaitGroup
	for i, id := range ids {
		i, id := i, id
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := rt.gate.Wait(ctx); err != nil {
				errs[i] = newCancelled(id, err)
				return
			}
			errs[i] = rt.runNode(ctx, id, 0, nil)
		}()
	}
	wg.Wait()
	return compact(errs)
}

func compact(errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func severityOf(s Severity) bus.Severity {
	switch s {
	case SeverityError:
		return bus.SeverityError
	case SeverityWarning:
		return bus.SeverityWarning
	default:
		return bus.SeverityInfo
	}
}
