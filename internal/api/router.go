// Package api wires together all HTTP routes of the identity service.
//
// Route grouping:
//   - /api/auth is unauthenticated; register and login exchange credentials
//     for a bearer token.
//   - /api/profile always requires a bearer token (middleware.RequireAuth) and
//     only ever touches the caller's own account.
//   - /, /health, /ready and /version are public health endpoints.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/identity-service/identity-service/internal/api/account"
	"github.com/identity-service/identity-service/internal/api/profile"
	"github.com/identity-service/identity-service/internal/audit"
	"github.com/identity-service/identity-service/internal/auth"
	"github.com/identity-service/identity-service/internal/config"
	"github.com/identity-service/identity-service/internal/db/repositories"
	"github.com/identity-service/identity-service/internal/middleware"
	"github.com/identity-service/identity-service/internal/services"
	"github.com/identity-service/identity-service/internal/storage"
)

// Version is reported by GET /version and the version subcommand. Release
// builds override it with -ldflags "-X .../internal/api.Version=...".
var Version = "0.1.0"

// readinessCheckPath is a known-absent object used to exercise archive storage
const readinessCheckPath = ".readiness-check"

// BackgroundServices holds the resources that must be drained during graceful
// shutdown. The caller (cmd/server) calls Shutdown after the HTTP server has
// stopped so in-flight requests finish publishing first.
type BackgroundServices struct {
	shippers *audit.MultiShipper
	archive  storage.Storage
}

// Shutdown flushes and closes the audit shippers and the archive backend
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.shippers != nil {
		if err := bg.shippers.Close(); err != nil {
			slog.Error("failed to close audit shippers", "error", err)
		}
	}
	if closer, ok := bg.archive.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Error("failed to close archive storage", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	// ClientIP feeds audit_logs.ip; only configured proxies may override the peer address
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	// Archive storage is only needed when an archive shipper is enabled
	var archive storage.Storage
	if cfg.Audit.ArchiveEnabled() {
		var err error
		archive, err = storage.NewStorage(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize archive storage: %w", err)
		}
		slog.Info("initialized archive storage backend", "backend", cfg.Storage.Backend)
	}

	shippers, err := audit.NewMultiShipper(cfg.Audit.Shippers, archive)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}
	var shipper services.EntryShipper
	if shippers.Len() > 0 {
		shipper = shippers
		slog.Info("audit shipping enabled", "shippers", shippers.Len())
	}

	hasher, err := auth.NewPasswordHasher(cfg.Auth.Password.BcryptCost)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := auth.NewTokenService(cfg.Auth.JWT.Secret, cfg.Auth.JWT.TokenLifetime, cfg.Auth.JWT.Issuer)
	if err != nil {
		return nil, nil, err
	}

	// Audit history reads go through sqlx; writes stay on database/sql
	history := repositories.NewAuditQueryRepository(sqlx.NewDb(db, "postgres"))

	recorder := services.NewAuditRecorder(shipper)
	accountHandlers := account.NewHandlers(services.NewAuthService(db, hasher, tokens, recorder))
	profileHandlers := profile.NewHandlers(services.NewProfileService(db, history, recorder))

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.AuditOriginMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	router.Use(CORSMiddleware(cfg))

	router.GET("/", rootHandler())
	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, archive))
	router.GET("/version", versionHandler())

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", accountHandlers.RegisterHandler())
		authGroup.POST("/login", accountHandlers.LoginHandler())
	}

	profileGroup := router.Group("/api/profile")
	profileGroup.Use(middleware.RequireAuth(tokens))
	{
		profileGroup.GET("", profileHandlers.GetProfileHandler())
		profileGroup.PUT("", profileHandlers.UpdateProfileHandler())
		profileGroup.GET("/audit", profileHandlers.AuditHistoryHandler())
	}

	return router, &BackgroundServices{shippers: shippers, archive: archive}, nil
}

// rootHandler answers the service banner
func rootHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "User Profile Service API running"})
	}
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and, when the audit archive is enabled, its storage backend.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service. archive may be
// nil when no archive shipper is configured.
func readinessHandler(db *sql.DB, archive storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if archive == nil {
			checks["archive_storage"] = "disabled"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			if _, err := archive.Exists(ctx, readinessCheckPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
				slog.WarnContext(c.Request.Context(), "archive storage check failed", "error", err)
				checks["archive_storage"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "archive storage not ready",
				})
				return
			}
			checks["archive_storage"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the service version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": Version})
	}
}

// LoggerMiddleware emits one structured record per request. The output
// format follows the handler installed by telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", status),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
