package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/identity-service/identity-service/internal/auth"
	"github.com/identity-service/identity-service/internal/db"
	"github.com/identity-service/identity-service/internal/db/models"
	"github.com/identity-service/identity-service/internal/db/repositories"
	"github.com/identity-service/identity-service/internal/telemetry"
)

// RegisterInput is the payload of a registration request
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AuthResult is a freshly issued token for an authenticated account
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// AuthService registers accounts and exchanges credentials for tokens
type AuthService struct {
	pool     db.DBTX
	users    *repositories.UserRepository
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenService
	recorder *AuditRecorder
}

// NewAuthService creates an AuthService whose reads, inserts and best-effort
// audit writes run on pool
func NewAuthService(pool db.DBTX, hasher *auth.PasswordHasher, tokens *auth.TokenService, recorder *AuditRecorder) *AuthService {
	return &AuthService{
		pool:     pool,
		users:    repositories.NewUserRepository(pool),
		hasher:   hasher,
		tokens:   tokens,
		recorder: recorder,
	}
}

// Register creates an account and returns a token for it.
//
// The email lookup is only a fast path; the users_email_key constraint decides
// concurrent registrations and both paths yield ErrDuplicateEmail. The register
// audit write is best-effort and never fails a registration that succeeded.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if in.Email == "" || in.Password == "" {
		authEvent("register", "validation")
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	existing, err := s.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		authEvent("register", "error")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if existing != nil {
		authEvent("register", "duplicate")
		return nil, ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) || errors.Is(err, auth.ErrEmptyPassword) {
			authEvent("register", "validation")
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		authEvent("register", "error")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	user := &models.User{
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			authEvent("register", "duplicate")
			return nil, ErrDuplicateEmail
		}
		authEvent("register", "error")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		authEvent("register", "error")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.recordBestEffort(ctx, AuditEvent{
		UserID:  user.ID,
		Action:  models.ActionRegister,
		Details: fmt.Sprintf("User %s registered", user.Email),
	})

	authEvent("register", "success")
	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Login verifies credentials and returns a token. Unknown email and wrong
// password both return ErrInvalidCredentials after a full bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		authEvent("login", "error")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if user == nil {
		s.hasher.VerifyDummy(password)
		authEvent("login", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		authEvent("login", "invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		authEvent("login", "error")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.recordBestEffort(ctx, AuditEvent{
		UserID:  user.ID,
		Action:  models.ActionLogin,
		Details: fmt.Sprintf("User %s logged in", user.Email),
	})

	authEvent("login", "success")
	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *AuthService) recordBestEffort(ctx context.Context, ev AuditEvent) {
	log, err := s.recorder.Record(ctx, s.pool, ev)
	if err != nil {
		slog.ErrorContext(ctx, "audit write failed; request not affected",
			"action", ev.Action,
			"user_id", ev.UserID,
			"error", err)
		return
	}
	s.recorder.Publish(ctx, log)
}

func authEvent(event, outcome string) {
	telemetry.AuthEventsTotal.WithLabelValues(event, outcome).Inc()
}
