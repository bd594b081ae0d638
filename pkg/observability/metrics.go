// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the cell execution core.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for cell runs and LLM
// inference latencies, ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RunsStartedTotal counts cell runs dispatched to execution contexts.
	RunsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ainb_runs_started_total",
			Help: "Cell runs dispatched",
		},
	)

	// RunsCompletedTotal counts resolved runs by terminal status.
	RunsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ainb_runs_completed_total",
			Help: "Resolved cell runs",
		},
		[]string{"status"},
	)

	// RunDuration records cell run duration in seconds.
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ainb_run_duration_seconds",
			Help:    "Cell run duration",
			Buckets: LLMBuckets,
		},
	)

	// StaleRepliesTotal counts replies discarded by generation mismatch.
	StaleRepliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ainb_stale_replies_discarded_total",
			Help: "Stale replies discarded",
		},
	)

	// DebounceCoalescedTotal counts scheduled runs replaced before firing.
	DebounceCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ainb_debounce_coalesced_total",
			Help: "Debounced runs coalesced",
		},
	)

	// SandboxLaunchesTotal counts execution contexts launched.
	SandboxLaunchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ainb_sandbox_launches_total",
			Help: "Execution contexts launched",
		},
	)

	// SandboxDestroysTotal counts execution contexts torn down.
	SandboxDestroysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ainb_sandbox_destroys_total",
			Help: "Execution contexts destroyed",
		},
	)

	// SandboxesActive tracks live execution contexts.
	SandboxesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ainb_sandboxes_active",
			Help: "Live execution contexts",
		},
	)

	// ProviderRequestsTotal counts inference provider calls by kind and outcome.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ainb_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"kind", "status"},
	)

	// ProviderLatency records provider call latency in seconds by kind.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ainb_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"kind"},
	)

	// CatalogRefreshTotal counts catalog refreshes by summary status.
	CatalogRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ainb_catalog_refresh_total",
			Help: "Catalog refreshes",
		},
		[]string{"status"},
	)

	// CatalogSize tracks the number of models in the current catalog.
	CatalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ainb_catalog_models",
			Help: "Models in the catalog",
		},
	)

	// CatalogLastRefresh records the unix time of the last successful refresh.
	CatalogLastRefresh = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ainb_catalog_last_refresh_timestamp_seconds",
			Help: "Last catalog refresh time",
		},
	)

	// SettingsOpsTotal counts settings store operations by op and outcome.
	SettingsOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ainb_settings_ops_total",
			Help: "Settings store operations",
		},
		[]string{"op", "status"},
	)

	// RateLimitRejectedTotal counts requests rejected by rate limiting,
	// by service tier.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ainb_ratelimit_rejected_total",
			Help: "Requests rejected by rate limiting",
		},
		[]string{"tier"},
	)

	// HTTPRequestsTotal counts HTTP requests by method and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ainb_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "status"},
	)

	// HTTPRequestDuration records HTTP request duration in seconds by method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ainb_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method"},
	)

	// HTTPInFlight tracks HTTP requests currently being served.
	HTTPInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ainb_http_requests_in_flight",
			Help: "HTTP requests in flight",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RunsStartedTotal,
		RunsCompletedTotal,
		RunDuration,
		StaleRepliesTotal,
		DebounceCoalescedTotal,
		SandboxLaunchesTotal,
		SandboxDestroysTotal,
		SandboxesActive,
		ProviderRequestsTotal,
		ProviderLatency,
		CatalogRefreshTotal,
		CatalogSize,
		CatalogLastRefresh,
		SettingsOpsTotal,
		RateLimitRejectedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPInFlight,
	)
}
