package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by the Authenticator. Credential and token
// failures are deliberately coarse-grained so responses never reveal which
// check failed.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountLocked means the account is inside an active lockout window.
	ErrAccountLocked = errors.New("account temporarily locked due to too many failed attempts")

	// ErrEmailTaken means the email is already registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidToken covers expired, malformed, revoked and wrong-type tokens.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrAccountNotFound means no active account matches the id.
	ErrAccountNotFound = errors.New("account not found")
)

// ValidationError carries per-field detail for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// newValidationError builds a ValidationError from field/message pairs.
func newValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}
