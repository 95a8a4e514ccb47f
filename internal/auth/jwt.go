// Package auth - jwt.go issues and verifies the HS256 bearer tokens that carry an
// account identity between requests. The signing secret is fixed for the life of
// a TokenService; rotating it invalidates every outstanding token.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenLifetime is used when no lifetime is configured
const DefaultTokenLifetime = time.Hour

// ErrInvalidToken covers every verification failure: bad signature, unexpected
// algorithm, malformed structure, wrong issuer, and missing or past expiry.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims represents the JWT claims structure
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService mints and checks bearer tokens
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	issuer   string
	now      func() time.Time
}

// TokenOption customizes a TokenService
type TokenOption func(*TokenService)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a token service signing with secret
func NewTokenService(secret string, lifetime time.Duration, issuer string, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("token signing secret is required")
	}
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}

	s := &TokenService{
		secret:   []byte(secret),
		lifetime: lifetime,
		issuer:   issuer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lifetime returns how long issued tokens stay valid
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs a token for the account and returns it with its expiry
func (s *TokenService) Issue(userID int64, email string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.lifetime)

	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(userID, 10),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify parses tokenString and returns its claims. Any failure yields an error
// wrapping ErrInvalidToken.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}

	return claims, nil
}
