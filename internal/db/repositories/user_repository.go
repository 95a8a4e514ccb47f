// Package repositories is the persistence boundary for accounts and audit events.
// Handlers and services never issue SQL directly; every query lives here so it
// can be tested against sqlmock in isolation.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/identity-service/identity-service/internal/db"
	"github.com/identity-service/identity-service/internal/db/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, created_at, updated_at`

// UserRepository handles account database operations
type UserRepository struct {
	db db.DBTX
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(q db.DBTX) *UserRepository {
	return &UserRepository{db: q}
}

// WithTx returns a repository bound to tx. The receiver is not modified.
func (r *UserRepository) WithTx(tx db.DBTX) *UserRepository {
	return &UserRepository{db: tx}
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser inserts a new account and fills in its generated id and timestamps.
// The users_email_key constraint is the source of truth for uniqueness: a
// violation, including one caused by a concurrent insert, yields ErrDuplicateEmail.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if isUniqueViolation(err, usersEmailKey) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID; it returns nil, nil when no row matches
func (r *UserRepository) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by exact email; it returns nil, nil when no row matches
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// UpdateUserNames sets the given names and bumps updated_at in a single statement.
// A nil name keeps its stored value. Returns ErrUserNotFound when the account is gone.
func (r *UserRepository) UpdateUserNames(ctx context.Context, userID int64, firstName, lastName *string) (*models.User, error) {
	query := `
		UPDATE users
		SET first_name = COALESCE($2, first_name),
		    last_name = COALESCE($3, last_name),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID, firstName, lastName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user names: %w", err)
	}
	return user, nil
}

// CountUsers returns the number of registered accounts
func (r *UserRepository) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
