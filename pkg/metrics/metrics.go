package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by method (password|google|github) and result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"method", "result"},
	)

	// Registrations counts account creations by login type.
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_registrations_total",
			Help: "Total number of accounts created",
		},
		[]string{"login_type"},
	)

	// RefreshRotations counts refresh token rotations (success|invalid|reuse).
	RefreshRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_refresh_rotations_total",
			Help: "Total number of refresh token rotations",
		},
		[]string{"result"},
	)

	// PasswordResets counts reset lifecycle events (requested|sent|mail_failed|confirmed|rejected).
	PasswordResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_password_resets_total",
			Help: "Total number of password reset events",
		},
		[]string{"event"},
	)

	// PermissionChecks counts workspace decisions and their outcome (allow|deny).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_permission_checks_total",
			Help: "Total number of workspace permission checks",
		},
		[]string{"check", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authcore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
