package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event ingestion metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_collector_events_total",
			Help: "Total number of events received",
		},
		[]string{"endpoint", "status"},
	)

	EventBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_collector_event_bytes_total",
			Help: "Total bytes of event data received",
		},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_collector_batch_size",
			Help:    "Number of events per batch submission",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		},
	)

	// Pipeline metrics
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_collector_pipeline_duration_seconds",
			Help:    "Duration of the audit pipeline per event in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_collector_events_suppressed_total",
			Help: "Total number of events dropped by filters",
		},
	)

	ValidationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_collector_validation_errors_total",
			Help: "Total number of events rejected by validation",
		},
	)

	StorageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_collector_storage_errors_total",
			Help: "Total number of storage errors",
		},
	)

	// Auth and rate limiting metrics
	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_collector_auth_failures_total",
			Help: "Total number of rejected authentication attempts",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_collector_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"client"},
	)
)
