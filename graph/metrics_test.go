package graph

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.nodeStarted()
	m.nodeFinished("n1", 1.5, true)
	m.gatePaused()
	m.depthGuardTripped("n1")
	m.setQueueDepth(3)
	m.streamTaskStarted()
	m.streamTaskFinished()
}

func TestMetricsNodeLifecycleUpdatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.nodeStarted()
	if v := gaugeValue(t, reg, "graphengine_inflight_nodes"); v != 1 {
		t.Errorf("inflight_nodes = %v, want 1", v)
	}

	m.nodeFinished("n1", 12.0, true)
	if v := gaugeValue(t, reg, "graphengine_inflight_nodes"); v != 0 {
		t.Errorf("inflight_nodes = %v, want 0 after nodeFinished", v)
	}
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			metrics := f.GetMetric()
			if len(metrics) == 0 {
				t.Fatalf("metric family %q has no samples", name)
			}
			return gaugeOrCounter(metrics[0])
		}
	}
	t.Fatalf("metric family %q not found", name)
	return 0
}

func gaugeOrCounter(m *dto.Metric) float64 {
	if g := m.GetGauge(); g != nil {
		return g.GetValue()
	}
	return m.GetCounter().GetValue()
}
