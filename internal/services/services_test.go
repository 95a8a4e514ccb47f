package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/identity-service/identity-service/internal/audit"
	"github.com/identity-service/identity-service/internal/auth"
)

const testSecret = "services-test-secret-of-32-bytes!!"

var errDB = errors.New("db error")

var userCols = []string{"id", "email", "password_hash", "first_name", "last_name", "created_at", "updated_at"}

// chanShipper hands shipped entries to the test
type chanShipper struct {
	ch chan *audit.LogEntry
}

func newChanShipper() *chanShipper {
	return &chanShipper{ch: make(chan *audit.LogEntry, 8)}
}

func (s *chanShipper) Ship(_ context.Context, e *audit.LogEntry) error {
	s.ch <- e
	return nil
}

func (s *chanShipper) next(t *testing.T) *audit.LogEntry {
	t.Helper()
	select {
	case e := <-s.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shipped audit entry")
		return nil
	}
}

func (s *chanShipper) none(t *testing.T) {
	t.Helper()
	select {
	case e := <-s.ch:
		t.Fatalf("unexpected shipped entry: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return db, mock
}

func newHasher(t *testing.T) *auth.PasswordHasher {
	t.Helper()
	h, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func newTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(testSecret, time.Hour, "identity-service")
	require.NoError(t, err)
	return ts
}

func userRow(id int64, email, hash, first, last string) *sqlmock.Rows {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(userCols).AddRow(id, email, hash, first, last, now, now)
}

func auditReturning(id int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "created_at"}).AddRow(id, time.Now())
}
