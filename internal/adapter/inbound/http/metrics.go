// Package http provides the optional metrics/health HTTP surface for assay.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics exposed by `assay run --metrics-addr`.
// Pass to the components that need to record them.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	TestsTotal        *prometheus.CounterVec
	CacheHitsTotal    *prometheus.CounterVec
	JudgeSamplesTotal *prometheus.CounterVec
	ActiveWorkers     prometheus.Gauge
	QuarantinedTotal  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assay",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests served, excluding the /metrics and /health endpoints",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "assay",
				Name:      "http_request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		TestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assay",
				Name:      "tests_total",
				Help:      "Total number of test cases evaluated, by final classification",
			},
			[]string{"status"}, // deterministic_pass|flaky|deterministic_fail|unstable|error
		),
		CacheHitsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assay",
				Name:      "cache_hits_total",
				Help:      "Total cache lookups, by cache and outcome",
			},
			[]string{"cache", "outcome"}, // cache=vcr|skip|judge, outcome=hit|miss
		),
		JudgeSamplesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "assay",
				Name:      "judge_samples_total",
				Help:      "Total LLM-as-judge samples drawn for majority-vote scoring",
			},
			[]string{"rubric", "result"}, // result=pass|fail
		),
		ActiveWorkers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "assay",
				Name:      "active_workers",
				Help:      "Number of test-execution worker goroutines currently busy",
			},
		),
		QuarantinedTotal: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "assay",
				Name:      "quarantined_tests",
				Help:      "Number of test cases currently under quarantine",
			},
		),
	}
}
