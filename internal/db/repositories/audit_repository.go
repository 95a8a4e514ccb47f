// audit_repository.go appends audit events. Rows are never updated or deleted;
// the audit_logs_append_only trigger rejects both at the database level.
package repositories

import (
	"context"
	"fmt"

	"github.com/identity-service/identity-service/internal/db"
	"github.com/identity-service/identity-service/internal/db/models"
)

// AuditRepository writes audit events on the pool or inside a transaction
type AuditRepository struct {
	db db.DBTX
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(q db.DBTX) *AuditRepository {
	return &AuditRepository{db: q}
}

// WithTx returns a repository bound to tx
func (r *AuditRepository) WithTx(tx db.DBTX) *AuditRepository {
	return &AuditRepository{db: tx}
}

// CreateAuditLog inserts log and fills in its generated id and created_at
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (user_id, action, details, ip)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		log.UserID,
		log.Action,
		log.Details,
		log.IP,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}
