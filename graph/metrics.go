package graph

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics for graph execution,
// namespaced "graphengine_":
//
//  1. inflight_nodes (gauge): nodes currently dispatched.
//  2. queue_depth (gauge): pending background-queue jobs.
//  3. node_latency_ms (histogram): per-node dispatch duration. Labels:
//     node_id, status (ok/error).
//  4. gate_pauses_total (counter): times the execution gate transitioned
//     to Paused.
//  5. exec_depth_exceeded_total (counter): call-depth guard trips.
//  6. stream_tasks_inflight (gauge): detached fire-and-forget stream
//     tasks awaiting join.
//
// All methods are safe for concurrent use.
type Metrics struct {
	mu sync.RWMutex

	inflightNodes  prometheus.Gauge
	queueDepth     prometheus.Gauge
	nodeLatency    *prometheus.HistogramVec
	gatePauses     prometheus.Counter
	depthExceeded  *prometheus.CounterVec
	streamInflight prometheus.Gauge
}

// NewMetrics registers the full metric set against registry. Pass nil to
// use prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "graphengine",
			Name:      "inflight_nodes",
			Help:      "Nodes currently dispatched.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "graphengine",
			Name:      "queue_depth",
			Help:      "Pending jobs in the background queue.",
		}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphengine",
			Name:      "node_latency_ms",
			Help:      "Node dispatch duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node_id", "status"}),
		gatePauses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "graphengine",
			Name:      "gate_pauses_total",
			Help:      "Times the execution gate transitioned to Paused.",
		}),
		depthExceeded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphengine",
			Name:      "exec_depth_exceeded_total",
			Help:      "Call-depth guard trips.",
		}, []string{"node_id"}),
		streamInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "graphengine",
			Name:      "stream_tasks_inflight",
			Help:      "Detached fire-and-forget stream tasks awaiting join.",
		}),
	}
}

func (m *Metrics) nodeStarted() {
	if m == nil {
		return
	}
	m.inflightNodes.Inc()
}

func (m *Metrics) nodeFinished(nodeID string, ms float64, ok bool) {
	if m == nil {
		return
	}
	m.inflightNodes.Dec()
	status := "ok"
	if !ok {
		status = "error"
	}
	m.nodeLatency.WithLabelValues(nodeID, status).Observe(ms)
}

func (m *Metrics) gatePaused() {
	if m == nil {
		return
	}
	m.gatePauses.Inc()
}

func (m *Metrics) depthGuardTripped(nodeID string) {
	if m == nil {
		return
	}
	m.depthExceeded.WithLabelValues(nodeID).Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetQueueDepth reports n as the current background-queue depth. Exported
// so a host process can wire queue.Queue.OnDepthChange directly to it
// without reaching into graph package internals.
func (m *Metrics) SetQueueDepth(n int) {
	m.setQueueDepth(n)
}

func (m *Metrics) streamTaskStarted() {
	if m == nil {
		return
	}
	m.streamInflight.Inc()
}

func (m *Metrics) streamTaskFinished() {
	if m == nil {
		return
	}
	m.streamInflight.Dec()
}
