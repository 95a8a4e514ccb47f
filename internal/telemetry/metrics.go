// Package telemetry provides logging setup and Prometheus metrics for the
// identity service.
//
// All metrics are registered against the default Prometheus registry and served
// by the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<IDS_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// The endpoint is not part of the Gin router.
//
// HTTP metrics use c.FullPath() (the route template) rather than the raw URL to
// keep label cardinality bounded.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/identity-service/identity-service/internal/safego"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
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
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)
)

// AuthEventsTotal counts authentication decisions by event (register, login)
// and outcome (success, duplicate, invalid_credentials, validation, error).
//
// Example PromQL queries:
//   - Failed login ratio:  sum(rate(auth_events_total{event="login",outcome="invalid_credentials"}[5m])) / sum(rate(auth_events_total{event="login"}[5m]))
var AuthEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_events_total",
		Help: "Total number of registration and login attempts, by event and outcome.",
	},
	[]string{"event", "outcome"},
)

// Audit trail metrics.
//
// AuditWritesTotal counts audit_logs inserts by action and outcome (ok, error).
// A non-zero error rate for register/login means best-effort writes are being
// dropped; for profile_update it means updates are being rolled back.
//
// AuditShipFailuresTotal counts batches an external shipper failed to deliver.
var (
	AuditWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_writes_total",
			Help: "Total number of audit log writes, by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	AuditShipFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ship_failures_total",
			Help: "Total number of audit entries that failed to reach an external shipper, by shipper.",
		},
		[]string{"shipper"},
	)
)

// DBOpenConnections tracks open connections held by the sql.DB pool. It is
// sampled by StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// DBStatsInterval is how often StartDBStatsCollector samples the pool
const DBStatsInterval = 30 * time.Second

// StartDBStatsCollector samples pool statistics into DBOpenConnections until ctx
// is cancelled.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(DBStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Debug("db stats collector stopped")
				return
			case <-ticker.C:
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	})
}
