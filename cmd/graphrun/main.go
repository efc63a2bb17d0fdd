// Command graphrun executes a persisted graph document headlessly,
// outside of any editor, and reports its outcome on stdout/stderr with an
// exit code a CI pipeline or orchestration script can branch on.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowgraph/engine/graph"
	"github.com/flowgraph/engine/graph/bus"
	"github.com/flowgraph/engine/graph/history"
	"github.com/flowgraph/engine/graph/queue"
	"github.com/flowgraph/engine/runner"
)

// Exit codes.
const (
	exitOK                 = 0
	exitInitiatorErrors    = 1
	exitValidationError    = 2
	exitLoadError          = 3
	exitCancelledOrTimeout = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		graphPath   string
		sets        []string
		parallelism int
		timeoutMS   int
		historyPath string
		async       bool
	)

	root := &cobra.Command{Use: "graphrun", SilenceErrors: true, SilenceUsage: true}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Validate and execute a graph document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd.Context(), graphPath, sets, parallelism, timeoutMS, historyPath, async)
		},
	}
	runCmd.Flags().StringVar(&graphPath, "graph", "", "path to a graph document (required)")
	runCmd.Flags().StringArrayVar(&sets, "set", nil, "KEY=VALUE initial variable override, repeatable")
	runCmd.Flags().IntVar(&parallelism, "parallel", 1, "max concurrent execution initiators")
	runCmd.Flags().IntVar(&timeoutMS, "timeout", 0, "run timeout in milliseconds (0 = no timeout)")
	runCmd.Flags().StringVar(&historyPath, "history", "", "optional SQLite path to record run history")
	runCmd.Flags().BoolVar(&async, "async", false, "submit the run through the background queue instead of executing inline")
	_ = runCmd.MarkFlagRequired("graph")
	root.AddCommand(runCmd)

	var exitCode int
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return resolveExitCode(err)
	}
	return exitCode
}

func execute(parent context.Context, graphPath string, sets []string, parallelism, timeoutMS int, historyPath string, async bool) error {
	data, err := os.ReadFile(graphPath)
	if err != nil {
		return exitError{exitLoadError, fmt.Errorf("read graph document: %w", err)}
	}
	g, err := runner.LoadGraphData(data)
	if err != nil {
		return exitError{exitLoadError, err}
	}

	vars, err := parseSets(sets)
	if err != nil {
		return exitError{exitLoadError, err}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()
	if timeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
		defer cancel()
	}

	registry := graph.NewRegistry()
	eventBus := bus.New()
	eventBus.AddSink(bus.NewLogSink(os.Stdout, true))

	var hist history.Store
	if historyPath != "" {
		hist, err = history.NewSQLiteStore(historyPath)
		if err != nil {
			return exitError{exitLoadError, err}
		}
		defer hist.Close()
	}

	metrics := graph.NewMetrics(nil)
	opts := graph.NewRunOptions(
		graph.WithMaxParallelism(parallelism),
		graph.WithMetrics(metrics),
	)
	opts.InitialVariables = vars

	r := runner.New(registry, eventBus, nil, hist)

	if async {
		return executeAsync(ctx, r, g, opts, metrics)
	}

	result, err := r.Run(ctx, g, opts, newRunID())
	if err != nil {
		if ee, ok := err.(*graph.EngineError); ok && ee.Kind == graph.KindValidationError {
			return exitError{exitValidationError, err}
		}
		return exitError{exitInitiatorErrors, err}
	}
	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			fmt.Fprintln(os.Stderr, e)
		}
		if ctx.Err() != nil {
			return exitError{exitCancelledOrTimeout, ctx.Err()}
		}
		return exitError{exitInitiatorErrors, result.Errors[0]}
	}
	return nil
}

// executeAsync submits g as a background ExecutionJob instead of running it
// on this goroutine: Run happens on the queue's consumer goroutine, fully
// decoupled from this call. Since a CLI process has nothing left to keep a
// background goroutine alive once main returns, executeAsync still waits
// for the queue to drain before the command exits, but submission itself
// (SubmitAsync) never blocks on the run — this is the same decoupling a
// long-lived host process would rely on to accept a submission without
// stalling its caller on the graph's own execution time.
func executeAsync(ctx context.Context, r *runner.Runner, g graph.GraphData, opts graph.RunOptions, metrics *graph.Metrics) error {
	q := queue.New(ctx)
	drained := make(chan struct{}, 1)
	q.OnDepthChange(func(depth int) {
		metrics.SetQueueDepth(depth)
		if depth == 0 {
			select {
			case drained <- struct{}{}:
			default:
			}
		}
	})

	token := queue.NewToken(ctx)
	runID := newRunID()
	fmt.Fprintf(os.Stdout, "submitted run %s to the background queue\n", runID)

	r.SubmitAsync(q, runner.ExecutionJob{Graph: g, Options: opts, RunID: runID, Token: token})

	<-drained
	q.Stop()
	return nil
}

// parseSets parses "KEY=VALUE" flags. VALUE is parsed as JSON when
// possible (so --set count=3 or --set enabled=true produce a number/bool
// rather than a string), falling back to a plain string otherwise.
func parseSets(sets []string) (map[string]any, error) {
	out := make(map[string]any, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: expected KEY=VALUE", s)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		out[key] = parsed
	}
	return out, nil
}

// exitError carries the process exit code alongside the underlying
// error, so cobra's generic error path and resolveExitCode agree on it.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

func resolveExitCode(err error) int {
	if ee, ok := err.(exitError); ok {
		return ee.code
	}
	return exitInitiatorErrors
}

func newRunID() string {
	return "run-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}
