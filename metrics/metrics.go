// Package metrics declares the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts façade requests by route template, method and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_http_requests_total",
		Help: "HTTP requests served.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pitwall_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"route", "method"})

	// SyncOutcomes counts cache-aside lookups: hit, miss, not_found, error, canceled.
	SyncOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_sync_total",
		Help: "Entity cache lookups by outcome.",
	}, []string{"entity", "outcome"})

	SyncRowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_sync_rows_written_total",
		Help: "Rows persisted by cache fills.",
	}, []string{"entity"})

	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_sessions_created_total",
		Help: "Session registry rows created.",
	})

	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_upstream_requests_total",
		Help: "Requests to the timing archive by document kind and result.",
	}, []string{"document", "result"})

	UpstreamCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_upstream_document_cache_hits_total",
		Help: "Archive documents served from the document cache.",
	}, []string{"document"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pitwall_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})

	CircuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_circuit_breaker_transitions_total",
		Help: "Circuit breaker state transitions.",
	}, []string{"name", "from", "to"})

	// RadioArtifacts counts per-artifact pipeline outcomes:
	// transcribed, already_transcribed, failed.
	RadioArtifacts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_radio_artifacts_total",
		Help: "Team radio artifacts processed by outcome.",
	}, []string{"outcome"})

	TranscriptionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pitwall_transcription_duration_seconds",
		Help:    "Speech-to-text latency per artifact.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
