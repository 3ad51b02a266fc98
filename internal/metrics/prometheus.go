package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysesTotal counts analysis requests by outcome (started, deduplicated, completed, error, rejected).
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelligenter_analyses_total",
			Help: "Total number of domain analyses by outcome",
		},
		[]string{"outcome"},
	)

	// AnalysisDuration tracks the wall time of detached analyses in seconds.
	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intelligenter_analysis_duration_seconds",
			Help:    "Duration of detached domain analyses in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"status"},
	)

	// ProviderAttempts counts upstream calls by provider and result.
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelligenter_provider_attempts_total",
			Help: "Total number of provider call attempts",
		},
		[]string{"provider", "result"},
	)

	// CacheRequests counts cache lookups by result (hit, miss, error).
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelligenter_cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"result"},
	)

	// WorkersActive tracks the number of analysis workers currently busy.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intelligenter_workers_active",
			Help: "Number of analysis worker goroutines currently running a task",
		},
	)

	// RefreshRecords counts records handled by refresh cycles by outcome.
	RefreshRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelligenter_refresh_records_total",
			Help: "Total number of records handled by refresh cycles",
		},
		[]string{"outcome"},
	)

	// RefreshCycles counts refresh cycles by outcome (completed, failed, skipped).
	RefreshCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelligenter_refresh_cycles_total",
			Help: "Total number of refresh cycles",
		},
		[]string{"outcome"},
	)

	// SchedulerHeartbeat records the unix time of the last scheduler heartbeat.
	SchedulerHeartbeat = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "intelligenter_scheduler_heartbeat_timestamp_seconds",
			Help: "Unix time of the last scheduler heartbeat",
		},
	)

	// StuckAnalysesRecovered counts records moved out of a stale analyzing state.
	StuckAnalysesRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "intelligenter_stuck_analyses_recovered_total",
			Help: "Total number of records failed after being stuck in analyzing",
		},
	)
)

var (
	// HTTPRequestsTotal counts API requests by method, route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intelligenter_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks API latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intelligenter_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
