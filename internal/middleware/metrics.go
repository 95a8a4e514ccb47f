package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/identity-service/identity-service/internal/telemetry"
)

// unmatchedRoute labels requests that hit no registered route, so probing
// arbitrary URLs cannot grow the path label set.
const unmatchedRoute = "<no-route>"

// MetricsMiddleware records http_requests_total, http_request_duration_seconds
// and http_requests_in_flight. The path label is the gin route template, e.g.
// /api/profile/audit, never the raw URL.
//
// A handler panic is recorded as a 500 and re-raised for gin.Recovery(), which
// must be registered before this middleware.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		telemetry.HTTPRequestsInFlight.Inc()
		start := time.Now()

		defer func() {
			telemetry.HTTPRequestsInFlight.Dec()
			if p := recover(); p != nil {
				observeRequest(c, http.StatusInternalServerError, time.Since(start))
				panic(p)
			}
		}()

		c.Next()
		observeRequest(c, c.Writer.Status(), time.Since(start))
	}
}

func observeRequest(c *gin.Context, status int, elapsed time.Duration) {
	path := c.FullPath()
	if path == "" {
		path = unmatchedRoute
	}
	method := c.Request.Method

	telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
