package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenshot_dispatch_total",
			Help: "Total number of screenshot requests by outcome",
		},
		[]string{"outcome"}, // outcome: hit, enqueued, invalid, unavailable
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenshot_cache_lookups_total",
			Help: "Total number of cache lookups on the dispatch path",
		},
		[]string{"result"}, // result: hit, miss, stale, bypass, error
	)

	// Render job metrics
	RenderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_jobs_total",
			Help: "Total number of render jobs processed",
		},
		[]string{"status"}, // status: succeeded, failed
	)

	RenderJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "render_job_duration_seconds",
			Help:    "Duration of render jobs in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180},
		},
		[]string{"status"},
	)

	RenderJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "render_jobs_in_flight",
			Help: "Number of render jobs currently executing",
		},
	)

	RenderTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "render_timeouts_total",
			Help: "Total number of render jobs that hit the hard time limit",
		},
	)

	RendererRecycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderer_recycles_total",
			Help: "Total number of renderer restarts",
		},
		[]string{"reason"}, // reason: max_tasks, timeout, crash
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "render_queue_depth",
			Help: "Number of render jobs waiting to be picked up",
		},
	)

	StatusLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenshot_status_lookups_total",
			Help: "Total number of job status lookups by resolved state",
		},
		[]string{"state"}, // state: pending, succeeded, failed, unknown, error
	)

	// Cache store metrics
	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "screenshot_cache_size_bytes",
			Help: "Current size of the screenshot cache in bytes",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "screenshot_cache_entries",
			Help: "Current number of entries in the screenshot cache",
		},
	)

	// Janitor metrics
	JanitorSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_janitor_sweeps_total",
			Help: "Total number of janitor sweeps",
		},
		[]string{"trigger", "status"}, // trigger: schedule, dispatch, admin; status: success, failed
	)

	JanitorEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_janitor_evictions_total",
			Help: "Total number of cache entries removed by the janitor",
		},
	)

	JanitorFreedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_janitor_freed_bytes_total",
			Help: "Total bytes reclaimed by the janitor",
		},
	)

	JanitorDeleteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_janitor_delete_failures_total",
			Help: "Total number of cache deletes that failed during sweeps",
		},
	)

	JanitorSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cache_janitor_sweep_duration_seconds",
			Help:    "Duration of janitor sweeps in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"component"},
	)

	// API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Metrics collection error tracking
	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"collector"}, // collector: cache, queue
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)
)
