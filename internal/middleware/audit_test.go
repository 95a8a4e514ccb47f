package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/identity-service/identity-service/internal/audit"
)

func TestAuditOriginMiddleware_StoresOrigin(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware(), AuditOriginMiddleware())

	var got audit.Origin
	r.GET("/", func(c *gin.Context) {
		got = audit.OriginFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := newRequest(http.MethodGet, "/")
	req.RemoteAddr = "203.0.113.5:41234"
	req.Header.Set(RequestIDHeader, "req-abc")
	w := serveRequest(r, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got.IP != "203.0.113.5" {
		t.Errorf("Origin.IP = %q, want 203.0.113.5", got.IP)
	}
	if got.RequestID != "req-abc" {
		t.Errorf("Origin.RequestID = %q, want req-abc", got.RequestID)
	}
}

func TestAuditOriginMiddleware_WithoutRequestID(t *testing.T) {
	r := gin.New()
	r.Use(AuditOriginMiddleware())

	var got audit.Origin
	r.GET("/", func(c *gin.Context) {
		got = audit.OriginFromContext(c.Request.Context())
	})

	req := newRequest(http.MethodGet, "/")
	req.RemoteAddr = "198.51.100.2:5000"
	serveRequest(r, req)

	if got.IP != "198.51.100.2" || got.RequestID != "" {
		t.Errorf("Origin = %+v, want IP only", got)
	}
}

func originRouter(t *testing.T, trusted []string, got *audit.Origin) *gin.Engine {
	t.Helper()
	r := gin.New()
	if err := r.SetTrustedProxies(trusted); err != nil {
		t.Fatalf("SetTrustedProxies(%v): %v", trusted, err)
	}
	r.Use(AuditOriginMiddleware())
	r.GET("/", func(c *gin.Context) {
		*got = audit.OriginFromContext(c.Request.Context())
	})
	return r
}

func TestAuditOriginMiddleware_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	var got audit.Origin
	r := originRouter(t, nil, &got)

	req := newRequest(http.MethodGet, "/")
	req.RemoteAddr = "203.0.113.9:40000"
	req.Header.Set("X-Forwarded-For", "6.6.6.6")
	req.Header.Set("X-Real-IP", "6.6.6.7")
	serveRequest(r, req)

	if got.IP != "203.0.113.9" {
		t.Errorf("Origin.IP = %q, want peer address 203.0.113.9", got.IP)
	}
}

func TestAuditOriginMiddleware_HonoursForwardedForFromTrustedProxy(t *testing.T) {
	var got audit.Origin
	r := originRouter(t, []string{"10.0.0.0/8"}, &got)

	req := newRequest(http.MethodGet, "/")
	req.RemoteAddr = "10.1.2.3:40000"
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	serveRequest(r, req)

	if got.IP != "198.51.100.4" {
		t.Errorf("Origin.IP = %q, want forwarded client 198.51.100.4", got.IP)
	}
}
