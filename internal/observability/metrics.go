package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reviewd_analysis_seconds",
		Help:    "Time spent analyzing one source text.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	DiagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewd_diagnostics_total",
		Help: "Total number of diagnostics emitted, by severity.",
	}, []string{"severity"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewd_http_requests_total",
		Help: "Total number of HTTP requests served, by route and status code.",
	}, []string{"route", "code"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewd_rate_limited_total",
		Help: "Total number of requests rejected by the per-client rate limiter.",
	})

	HistoryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reviewd_history_queue_depth",
		Help: "Current number of analysis runs waiting to be persisted.",
	})

	HistoryRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewd_history_recorded_total",
		Help: "Total number of analysis runs written to the history store.",
	})

	HistoryDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewd_history_dropped_total",
		Help: "Total number of analysis runs dropped from the history queue due to backpressure.",
	})
)
