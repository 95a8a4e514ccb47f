// Package services implements the identity service's business flows:
// registration and login, profile view and update, and the audit recorder
// they share. Handlers call into this package and map its sentinel errors to
// HTTP responses with errors.Is; storage and token errors never leak past it
// unwrapped.
package services

import "errors"

var (
	// ErrValidation marks input the client must fix (missing email or password)
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateEmail is returned whether the clash was found by the pre-check
	// or by the users_email_key constraint
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFound means the account behind a valid token no longer exists
	ErrNotFound = errors.New("user not found")
	// ErrPersistence wraps any unexpected storage or signing failure
	ErrPersistence = errors.New("persistence failure")
)
