package http

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal not initialized")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration not initialized")
	}
	if m.TestsTotal == nil {
		t.Error("TestsTotal not initialized")
	}
	if m.CacheHitsTotal == nil {
		t.Error("CacheHitsTotal not initialized")
	}
	if m.JudgeSamplesTotal == nil {
		t.Error("JudgeSamplesTotal not initialized")
	}
	if m.ActiveWorkers == nil {
		t.Error("ActiveWorkers not initialized")
	}
	if m.QuarantinedTotal == nil {
		t.Error("QuarantinedTotal not initialized")
	}
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("POST", "ok").Inc()
	count := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "ok"))
	if count != 1 {
		t.Errorf("RequestsTotal = %v, want 1", count)
	}

	m.TestsTotal.WithLabelValues("deterministic_pass").Inc()
	passed := testutil.ToFloat64(m.TestsTotal.WithLabelValues("deterministic_pass"))
	if passed != 1 {
		t.Errorf("TestsTotal = %v, want 1", passed)
	}

	m.CacheHitsTotal.WithLabelValues("vcr", "hit").Inc()
	hits := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("vcr", "hit"))
	if hits != 1 {
		t.Errorf("CacheHitsTotal = %v, want 1", hits)
	}

	m.ActiveWorkers.Set(5)
	if got := testutil.ToFloat64(m.ActiveWorkers); got != 5 {
		t.Errorf("ActiveWorkers = %v, want 5", got)
	}

	m.RequestDuration.WithLabelValues("POST").Observe(0.1)
	gathered, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range gathered {
		if strings.Contains(mf.GetName(), "request_duration") {
			found = true
			break
		}
	}
	if !found {
		t.Error("request_duration histogram not found in gathered metrics")
	}
}
