// Package models - audit_log.go defines the append-only audit event record.
package models

import "time"

// Audit actions
const (
	ActionRegister      = "register"
	ActionLogin         = "login"
	ActionProfileView   = "profile_view"
	ActionProfileUpdate = "profile_update"
)

// AuditLog is one immutable audit event. UserID is a soft reference to users.id.
type AuditLog struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Action    string    `db:"action" json:"action"`
	Details   string    `db:"details" json:"details"`
	IP        *string   `db:"ip" json:"ip,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsKnownAction reports whether action belongs to the audit vocabulary
func IsKnownAction(action string) bool {
	switch action {
	case ActionRegister, ActionLogin, ActionProfileView, ActionProfileUpdate:
		return true
	}
	return false
}
