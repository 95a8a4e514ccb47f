package services

import (
	"context"
	"fmt"
	"time"

	"github.com/identity-service/identity-service/internal/audit"
	"github.com/identity-service/identity-service/internal/db"
	"github.com/identity-service/identity-service/internal/db/models"
	"github.com/identity-service/identity-service/internal/db/repositories"
	"github.com/identity-service/identity-service/internal/safego"
	"github.com/identity-service/identity-service/internal/telemetry"
)

const defaultShipTimeout = 10 * time.Second

// EntryShipper delivers committed audit entries to external destinations.
// *audit.MultiShipper satisfies it.
type EntryShipper interface {
	Ship(ctx context.Context, entry *audit.LogEntry) error
}

// AuditEvent is one audit record to append
type AuditEvent struct {
	UserID  int64
	Action  string
	Details string
}

// AuditRecorder appends audit events to audit_logs and forwards committed
// rows to the configured shippers
type AuditRecorder struct {
	shipper     EntryShipper
	shipTimeout time.Duration
}

// NewAuditRecorder creates a recorder. shipper may be nil.
func NewAuditRecorder(shipper EntryShipper) *AuditRecorder {
	return &AuditRecorder{
		shipper:     shipper,
		shipTimeout: defaultShipTimeout,
	}
}

// Record inserts ev on q, which may be the pool or an open transaction. The
// request origin IP is taken from ctx when present.
func (r *AuditRecorder) Record(ctx context.Context, q db.DBTX, ev AuditEvent) (*models.AuditLog, error) {
	if !models.IsKnownAction(ev.Action) {
		return nil, fmt.Errorf("unknown audit action %q", ev.Action)
	}

	log := &models.AuditLog{
		UserID:  ev.UserID,
		Action:  ev.Action,
		Details: ev.Details,
	}
	if origin := audit.OriginFromContext(ctx); origin.IP != "" {
		ip := origin.IP
		log.IP = &ip
	}

	if err := repositories.NewAuditRepository(q).CreateAuditLog(ctx, log); err != nil {
		telemetry.AuditWritesTotal.WithLabelValues(ev.Action, "error").Inc()
		return nil, err
	}

	telemetry.AuditWritesTotal.WithLabelValues(ev.Action, "ok").Inc()
	return log, nil
}

// Publish ships a committed row in the background. It never blocks the
// caller; shipper failures are logged and counted by the shipper.
func (r *AuditRecorder) Publish(ctx context.Context, log *models.AuditLog) {
	if r.shipper == nil || log == nil {
		return
	}

	entry := audit.FromAuditLog(log, audit.OriginFromContext(ctx).RequestID)
	safego.Go("audit-publish", func() {
		shipCtx, cancel := context.WithTimeout(context.Background(), r.shipTimeout)
		defer cancel()
		_ = r.shipper.Ship(shipCtx, entry)
	})
}
