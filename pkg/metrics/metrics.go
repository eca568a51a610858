package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records sign-in attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_auth_attempts_total",
			Help: "Total number of sign-in attempts",
		},
		[]string{"result"},
	)

	// TokensIssued counts single-use tokens by kind.
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_tokens_issued_total",
			Help: "Total number of single-use tokens issued",
		},
		[]string{"kind"},
	)

	// TokenVerifications counts verification outcomes (valid|invalid|expired).
	TokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_token_verifications_total",
			Help: "Total number of token verification attempts",
		},
		[]string{"kind", "result"},
	)

	// SessionHeartbeats counts session reconciliation calls (updated|missing|error).
	SessionHeartbeats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_session_heartbeats_total",
			Help: "Total number of session metadata reconciliations",
		},
		[]string{"result"},
	)

	// EmailsSent counts outbound email attempts by provider and result.
	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_emails_sent_total",
			Help: "Total number of transactional emails attempted",
		},
		[]string{"provider", "result"},
	)

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_rate_limited_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"route"},
	)

	// MaintenanceRuns counts background job runs by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_maintenance_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "result"},
	)

	// MaintenanceDuration measures how long maintenance jobs take.
	MaintenanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "launchpad_maintenance_duration_seconds",
			Help:    "Maintenance job duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "launchpad_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
