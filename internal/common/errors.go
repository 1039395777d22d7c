// Package common defines shared constants and sentinel errors used across
// the store, service and transport layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors.
	ErrorValidation    = errors.New("validation error")
	ErrorBadCredential = errors.New("invalid user credentials")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrorTransient     = errors.New("temporarily unavailable")
	ErrorInternal      = errors.New("internal error")

	// ErrTokenReuseDetected is returned when a refresh token verifies but is not
	// the one currently stored for its owner (stale client or replay).
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")

	// Token verification outcomes.
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenMalformed    = errors.New("token malformed")
)

// IsTokenFailure reports whether err is one of the token verification outcomes.
func IsTokenFailure(err error) bool {
	return errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenBadSignature) ||
		errors.Is(err, ErrTokenMalformed)
}
