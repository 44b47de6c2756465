// Package telemetry provides application-level observability for community-core.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served by
// the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<TEMPLE_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Authorization decisions and super-admin overrides
//   - Membership status transitions
//   - Pledge charge outcomes and job durations
//   - Leaderboard cache hits and misses
//   - Domain events published and reminder emails sent
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/tenants/:tenantId/leaderboard)
// rather than the raw request URL. Tenant and user IDs are never used as labels.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%):        sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authorization metrics.
//
// AuthzDecisionsTotal has labels {decision, source}. decision is "allow" or "deny";
// source names the rule that produced the answer: "super_admin", "role_grant",
// "no_membership", "inactive_membership" or "not_granted".
//
// SuperAdminOverridesTotal counts checks granted only because the caller is a super admin.
// Every increment is paired with an audit record.
var (
	AuthzDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Total number of permission checks, by decision and deciding rule.",
		},
		[]string{"decision", "source"},
	)

	SuperAdminOverridesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_super_admin_overrides_total",
			Help: "Total number of permission checks granted by the super admin override.",
		},
	)
)

// MembershipTransitionsTotal has labels {from, to} using membership status names.
var MembershipTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "membership_transitions_total",
		Help: "Total number of membership status transitions, by source and target status.",
	},
	[]string{"from", "to"},
)

// Pledge metrics, recorded by AdvancePledge and the pledge charge job.
//
// PledgeChargesTotal has label {result}: "succeeded", "failed" or "skipped".
//
// Example PromQL queries:
//   - Failure ratio: sum(rate(pledge_charges_total{result="failed"}[1d])) / sum(rate(pledge_charges_total[1d]))
var (
	PledgeChargesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledge_charges_total",
			Help: "Total number of pledge charge attempts, by result.",
		},
		[]string{"result"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_run_duration_seconds",
			Help:    "Duration of a single background job run, by job name.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	ReminderEmailsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pledge_reminder_emails_sent_total",
			Help: "Total number of upcoming charge reminder emails successfully sent.",
		},
	)
)

// Leaderboard cache metrics. The hit ratio is
// rate(leaderboard_cache_hits_total[5m]) / (rate(leaderboard_cache_hits_total[5m]) + rate(leaderboard_cache_misses_total[5m])).
var (
	LeaderboardCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leaderboard_cache_hits_total",
			Help: "Total number of leaderboard requests served from cache.",
		},
	)

	LeaderboardCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leaderboard_cache_misses_total",
			Help: "Total number of leaderboard requests computed from the database.",
		},
	)
)

// EventsPublishedTotal has labels {type, result} where result is "ok" or "error".
var EventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of domain events published, by event type and result.",
	},
	[]string{"type", "result"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when ctx is cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
