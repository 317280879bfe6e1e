package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Processing results
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDropped = "dropped"

	// HTTP endpoints
	EndpointOAuthStart    = "oauth_start"
	EndpointOAuthCallback = "oauth_callback"
	EndpointWebhook       = "webhook_callback"
	EndpointLeaderboard   = "leaderboard"
	EndpointAdmin         = "admin"
	EndpointHealth        = "health"

	// Batch outcomes
	BatchOutcomeFound    = "found"
	BatchOutcomeNotFound = "not_found"
	BatchOutcomeError    = "error"

	// Rate limit types
	RateLimit15Min = "15min"
	RateLimitDaily = "daily"

	// Rate limit buckets
	BucketLimit = "limit"
	BucketUsage = "usage"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Webhook Processing Metrics
var (
	WebhookEventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_received_total",
			Help: "Total number of webhook events received",
		},
		[]string{"object_type", "aspect_type"},
	)

	WebhookEventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_processed_total",
			Help: "Total number of webhook events processed with outcome",
		},
		[]string{"object_type", "aspect_type", "result"},
	)

	WebhookQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_queue_depth",
			Help: "Number of webhook events waiting for background processing",
		},
	)

	WebhookProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_seconds",
			Help:    "Time spent processing a webhook event",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"result"},
	)

	DispatcherActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_dispatcher_active",
			Help: "Whether the webhook dispatcher is running (1) or not (0)",
		},
	)
)

// Batch Fetch Metrics
var (
	BatchSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_sweeps_total",
			Help: "Total number of batch fetch sweeps run",
		},
	)

	BatchParticipantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_participants_total",
			Help: "Per-participant batch sweep outcomes",
		},
		[]string{"outcome"},
	)

	BatchSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_sweep_duration_seconds",
			Help:    "Duration of a full batch fetch sweep",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)
)

// Strava API Metrics
var (
	StravaRateLimitUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strava_rate_limit_usage",
			Help: "Strava API rate limit usage as reported by response headers",
		},
		[]string{"limit_type", "bucket"},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Total number of OAuth token refreshes",
		},
		[]string{"result"},
	)
)

// Scoring Metrics
var (
	ScoringRefreshesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scoring_refreshes_total",
			Help: "Total number of week standings recomputations",
		},
	)
)
