// Package middleware provides the gin middleware of the identity service.
//
// Ordering is fixed in internal/api/router.go:
//
//	Recovery -> RequestID -> AuditOrigin -> Metrics -> Logger -> Security -> CORS -> (RequireAuth) -> Handler
//
// RequestID and AuditOrigin run first so every log line and audit row carries
// the request id and client address. RequireAuth is attached only to the
// profile group.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/identity-service/identity-service/internal/auth"
)

// Context keys set by RequireAuth
const (
	UserIDKey = "user_id"
	EmailKey  = "email"
)

// RequireAuth rejects requests without a valid bearer token. On success the
// token's account id and email are stored under UserIDKey and EmailKey.
func RequireAuth(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			msg := "Authorization header must start with 'Bearer '"
			if errors.Is(err, auth.ErrMissingAuthHeader) {
				msg = "Missing authorization header"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msg})
			return
		}

		claims, err := tokens.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(EmailKey, claims.Email)
		c.Next()
	}
}

// UserID returns the account id stored by RequireAuth
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}
