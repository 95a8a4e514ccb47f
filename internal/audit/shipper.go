// Package audit fans committed audit_logs rows out to external destinations.
// The audit_logs table is the system of record; shippers deliver copies to a
// webhook, an append-only file, or an object-storage archive for consumers
// with longer retention than the database. Shipping is asynchronous and a
// failure here never affects the request that produced the event.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/identity-service/identity-service/internal/config"
	"github.com/identity-service/identity-service/internal/db/models"
	"github.com/identity-service/identity-service/internal/storage"
	"github.com/identity-service/identity-service/internal/telemetry"
)

// LogEntry is the shipped form of an audit_logs row
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// FromAuditLog builds a LogEntry from a persisted row
func FromAuditLog(l *models.AuditLog, requestID string) *LogEntry {
	e := &LogEntry{
		ID:        l.ID,
		Timestamp: l.CreatedAt.UTC(),
		UserID:    l.UserID,
		Action:    l.Action,
		Details:   l.Details,
		RequestID: requestID,
	}
	if l.IP != nil {
		e.IPAddress = *l.IP
	}
	return e
}

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Name identifies the shipper in logs and metrics
	Name() string
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close flushes buffered entries and releases resources
	Close() error
}

// MultiShipper ships to multiple destinations
type MultiShipper struct {
	shippers []Shipper
	mu       sync.RWMutex
}

// NewMultiShipper builds the enabled shippers from configs. store is only
// consulted by archive shippers and may be nil when none is enabled.
func NewMultiShipper(configs []config.AuditShipperConfig, store storage.Storage) (*MultiShipper, error) {
	ms := &MultiShipper{
		shippers: make([]Shipper, 0),
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				err = fmt.Errorf("webhook config is required for webhook shipper")
				break
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				err = fmt.Errorf("file config is required for file shipper")
				break
			}
			shipper, err = NewFileShipper(cfg.File)
		case "archive":
			if store == nil {
				err = fmt.Errorf("storage backend is required for archive shipper")
				break
			}
			archiveCfg := cfg.Archive
			if archiveCfg == nil {
				archiveCfg = &config.AuditArchiveConfig{}
			}
			shipper = NewArchiveShipper(archiveCfg, store)
		default:
			err = fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			_ = ms.Close()
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.shippers = append(ms.shippers, shipper)
	}

	return ms, nil
}

// Len reports how many shippers are active
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends an entry to all configured shippers. Every shipper is attempted;
// the last error is returned.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, entry); err != nil {
			lastErr = err
			telemetry.AuditShipFailuresTotal.WithLabelValues(shipper.Name()).Inc()
			slog.Warn("audit shipper failed",
				"shipper", shipper.Name(),
				"audit_id", entry.ID,
				"action", entry.Action,
				"error", err)
		}
	}
	return lastErr
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
