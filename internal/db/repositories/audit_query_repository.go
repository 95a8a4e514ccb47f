// audit_query_repository.go serves the read side of the audit trail: an account
// holder's own history and per-action counts for diagnostics.
package repositories

import (
	"context"
	"fmt"

	"github.com/identity-service/identity-service/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// Audit history paging bounds
const (
	DefaultAuditPageSize = 20
	MaxAuditPageSize     = 100
)

// AuditQueryRepository reads audit events. It never writes.
type AuditQueryRepository struct {
	db *sqlx.DB
}

// NewAuditQueryRepository creates a new AuditQueryRepository
func NewAuditQueryRepository(db *sqlx.DB) *AuditQueryRepository {
	return &AuditQueryRepository{db: db}
}

// ListByUser returns the events recorded for userID, newest first
func (r *AuditQueryRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]models.AuditLog, error) {
	limit, offset = ClampAuditPage(limit, offset)

	query := `
		SELECT id, user_id, action, details, ip, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	logs := []models.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

// CountByUserAndAction returns how many events of action exist for userID
func (r *AuditQueryRepository) CountByUserAndAction(ctx context.Context, userID int64, action string) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM audit_logs WHERE user_id = $1 AND action = $2`
	if err := r.db.GetContext(ctx, &n, query, userID, action); err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return n, nil
}

// ActionCount is the number of events recorded for one action
type ActionCount struct {
	Action string `db:"action"`
	Count  int64  `db:"count"`
}

// CountByAction returns event totals grouped by action
func (r *AuditQueryRepository) CountByAction(ctx context.Context) ([]ActionCount, error) {
	query := `SELECT action, COUNT(*) AS count FROM audit_logs GROUP BY action ORDER BY action`

	counts := []ActionCount{}
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("failed to count audit logs by action: %w", err)
	}
	return counts, nil
}

// ClampAuditPage applies the default and maximum page size and floors offset at zero
func ClampAuditPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultAuditPageSize
	}
	if limit > MaxAuditPageSize {
		limit = MaxAuditPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
