package repositories

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicateEmail is returned when an insert collides with users_email_key
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrUserNotFound is returned by writes that target an account which does not exist
	ErrUserNotFound = errors.New("user not found")
)

const (
	pqUniqueViolation = "23505"
	usersEmailKey     = "users_email_key"
)

// isUniqueViolation reports whether err is a Postgres unique violation on constraint.
// An empty constraint matches any unique violation.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
