package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountDisabled = errors.New("account is disabled")

	// Brute-force mitigation errors
	ErrAddressBanned = errors.New("source address is banned")

	// Verification session errors
	ErrSessionInvalidOrExpired = errors.New("verification session is invalid or expired")

	// ErrLastAdmin is returned when a delete would remove the last admin account.
	// The requested mutation can never succeed as stated; a caller must not retry.
	ErrLastAdmin = errors.New("cannot delete the last admin account")
)

// AccountLockedError indicates a hard-locked account. RetryAfter is always
// populated so clients can show a countdown instead of retrying blindly.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is locked, retry after %s", e.RetryAfter.Round(time.Second))
}

// RateLimitedError indicates a transient limit (banned address, issuance rate).
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// VerificationFailedError indicates a wrong code with attempt budget remaining.
type VerificationFailedError struct {
	AttemptsRemaining int
}

func (e *VerificationFailedError) Error() string {
	return fmt.Sprintf("verification code incorrect, %d attempts remaining", e.AttemptsRemaining)
}

// VerificationLockedError indicates the verification step itself is locked
// after too many wrong codes. Independent of the login hard lock.
type VerificationLockedError struct {
	RetryAfter time.Duration
}

func (e *VerificationLockedError) Error() string {
	return fmt.Sprintf("verification locked, retry after %s", e.RetryAfter.Round(time.Second))
}
