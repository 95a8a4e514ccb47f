package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/identity-service/identity-service/internal/db"
	"github.com/identity-service/identity-service/internal/db/models"
	"github.com/identity-service/identity-service/internal/db/repositories"
)

// AuditHistory is one page of an account's audit events
type AuditHistory struct {
	Events []models.AuditLog
	Limit  int
	Offset int
}

// ProfileService reads and updates the authenticated account's profile
type ProfileService struct {
	pool     db.Pool
	users    *repositories.UserRepository
	history  *repositories.AuditQueryRepository
	recorder *AuditRecorder
}

// NewProfileService creates a ProfileService. history may be nil when the
// audit history endpoint is not served.
func NewProfileService(pool db.Pool, history *repositories.AuditQueryRepository, recorder *AuditRecorder) *ProfileService {
	return &ProfileService{
		pool:     pool,
		users:    repositories.NewUserRepository(pool),
		history:  history,
		recorder: recorder,
	}
}

// View returns the public fields of the account and records a profile_view
// event. A failed audit write fails the view.
func (s *ProfileService) View(ctx context.Context, userID int64) (*models.PublicProfile, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if user == nil {
		return nil, ErrNotFound
	}

	log, err := s.recorder.Record(ctx, s.pool, AuditEvent{
		UserID:  user.ID,
		Action:  models.ActionProfileView,
		Details: fmt.Sprintf("User %s viewed profile", user.Email),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.recorder.Publish(ctx, log)

	profile := user.Profile()
	return &profile, nil
}

// Update changes the account's names and records a profile_update event in
// one transaction. A nil name keeps the stored value. If either write fails
// nothing is persisted.
func (s *ProfileService) Update(ctx context.Context, userID int64, firstName, lastName *string) (*models.User, error) {
	var (
		updated *models.User
		log     *models.AuditLog
	)

	err := db.WithTx(ctx, s.pool, func(ctx context.Context, tx db.DBTX) error {
		var err error
		updated, err = s.users.WithTx(tx).UpdateUserNames(ctx, userID, firstName, lastName)
		if err != nil {
			return err
		}

		log, err = s.recorder.Record(ctx, tx, AuditEvent{
			UserID:  updated.ID,
			Action:  models.ActionProfileUpdate,
			Details: fmt.Sprintf("Updated name to %s %s", updated.FirstName, updated.LastName),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.recorder.Publish(ctx, log)
	return updated, nil
}

// History lists the account's own audit events, newest first
func (s *ProfileService) History(ctx context.Context, userID int64, limit, offset int) (*AuditHistory, error) {
	if s.history == nil {
		return nil, fmt.Errorf("%w: audit history is not configured", ErrPersistence)
	}

	limit, offset = repositories.ClampAuditPage(limit, offset)
	events, err := s.history.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return &AuditHistory{Events: events, Limit: limit, Offset: offset}, nil
}
