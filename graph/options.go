package graph

import (
	"os"
	"strconv"
)

// RunOptions configures one ExecutionRuntime. Zero values are valid:
// MaxCallDepth and MaxParallelism fall back to their documented defaults
// when zero.
type RunOptions struct {
	// MaxCallDepth caps the recursion depth execute_node_by_id can reach
	// before failing with ExecDepthExceeded. Default: 1024.
	MaxCallDepth int

	// MaxParallelism caps how many execution initiators run concurrently.
	// 1 (the default) runs initiators in deterministic order, one at a
	// time; values above 1 run them concurrently up to the cap.
	MaxParallelism int

	// QueueDepth is a Background Queue size setting. Default: 1024.
	// The queue in graph/queue is unbounded and queue.New takes no size,
	// so nothing in this module reads this value.
	QueueDepth int

	// Metrics, when non-nil, receives node lifecycle measurements.
	Metrics *Metrics

	// InitialVariables seeds graph-scoped variables by name before the
	// run's execution initiators dispatch, overriding each variable's
	// declared default. Used by callers that let an operator supply
	// values at run time (e.g. the graphrun CLI's --set flag).
	InitialVariables map[string]any
}

const (
	defaultMaxCallDepth   = 1024
	defaultMaxParallelism = 1
	defaultQueueDepth     = 1024
)

// Option mutates a RunOptions during construction.
type Option func(*RunOptions)

// WithMaxCallDepth overrides MaxCallDepth.
func WithMaxCallDepth(n int) Option { return func(o *RunOptions) { o.MaxCallDepth = n } }

// WithMaxParallelism overrides MaxParallelism.
func WithMaxParallelism(n int) Option { return func(o *RunOptions) { o.MaxParallelism = n } }

// WithQueueDepth overrides QueueDepth.
func WithQueueDepth(n int) Option { return func(o *RunOptions) { o.QueueDepth = n } }

// WithMetrics attaches a Metrics collector.
func WithMetrics(m *Metrics) Option { return func(o *RunOptions) { o.Metrics = m } }

// NewRunOptions builds a RunOptions from defaults, environment overrides
// (ENGINE_MAX_CALL_DEPTH, ENGINE_MAX_PARALLELISM), and then the given
// functional options, in that precedence order.
func NewRunOptions(opts ...Option) RunOptions {
	o := RunOptions{
		MaxCallDepth:   defaultMaxCallDepth,
		MaxParallelism: defaultMaxParallelism,
		QueueDepth:     defaultQueueDepth,
	}
	if v, ok := envInt("ENGINE_MAX_CALL_DEPTH"); ok {
		o.MaxCallDepth = v
	}
	if v, ok := envInt("ENGINE_MAX_PARALLELISM"); ok {
		o.MaxParallelism = v
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxCallDepth <= 0 {
		o.MaxCallDepth = defaultMaxCallDepth
	}
	if o.MaxParallelism <= 0 {
		o.MaxParallelism = defaultMaxParallelism
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = defaultQueueDepth
	}
	return o
}

func envInt(key string) (int, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
