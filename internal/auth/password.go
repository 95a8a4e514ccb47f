// Package auth holds the credential primitives of the identity service: the
// bcrypt password codec, the HS256 token service, and bearer header parsing.
// Request-time enforcement lives in internal/middleware/auth.go.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when none is configured
const DefaultBcryptCost = 12

// MaxPasswordBytes is the longest plaintext bcrypt can hash without truncation
const MaxPasswordBytes = 72

var (
	// ErrEmptyPassword is returned when hashing an empty plaintext
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned for plaintexts over MaxPasswordBytes
	ErrPasswordTooLong = fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)
)

// PasswordHasher hashes and verifies account passwords with bcrypt.
// It is safe for concurrent use.
type PasswordHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewPasswordHasher returns a hasher using cost, or DefaultBcryptCost when cost is zero
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &PasswordHasher{cost: cost}, nil
}

// Cost returns the configured bcrypt work factor
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt hash of plaintext
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. A malformed hash is a mismatch.
func (h *PasswordHasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// VerifyDummy runs a full-cost comparison against a throwaway hash and always
// reports false. Login calls it for unknown emails so response time does not
// reveal whether an account exists.
func (h *PasswordHasher) VerifyDummy(plaintext string) bool {
	h.dummyOnce.Do(func() {
		// error only possible for invalid cost, already rejected by the constructor
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
	return false
}
