package auth

import (
	"errors"
	"strings"
)

var (
	// ErrMissingAuthHeader is returned when no Authorization header is present
	ErrMissingAuthHeader = errors.New("missing authorization header")
	// ErrMalformedAuthHeader is returned when the header is not "Bearer <token>"
	ErrMalformedAuthHeader = errors.New("authorization header must start with 'Bearer '")
)

// ExtractBearerToken extracts the token from an Authorization header.
// Expected format: "Bearer eyJhbGciOi..."
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthHeader
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrMalformedAuthHeader
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", ErrMalformedAuthHeader
	}

	return token, nil
}
