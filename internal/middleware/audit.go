// audit.go attaches the request origin to the request context so audit rows
// written anywhere below the handler record the client address and request id.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/identity-service/identity-service/internal/audit"
)

// AuditOriginMiddleware stores the client IP and request id as an
// audit.Origin on the request context. It must run after RequestIDMiddleware.
func AuditOriginMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := audit.Origin{
			IP:        c.ClientIP(),
			RequestID: c.GetString(RequestIDKey),
		}
		c.Request = c.Request.WithContext(audit.WithOrigin(c.Request.Context(), origin))
		c.Next()
	}
}
