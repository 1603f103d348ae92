package models

import "time"

// Failure reason codes recorded with unsuccessful login attempts.
const (
	FailureReasonBadCredentials = "bad_credentials"
	FailureReasonUnknownUser    = "unknown_user"
	FailureReasonAccountLocked  = "account_locked"
	FailureReasonDisabled       = "account_disabled"
	FailureReasonStepUpPending  = "step_up_pending"
)

// LoginAttempt is one row of the attempt ledger. Rows are append-only: the
// engine never updates or deletes them, retention cleanup aside.
type LoginAttempt struct {
	ID            string
	Email         string // the address as submitted, whether or not it matched a user
	IPAddress     string
	UserAgent     string
	AttemptTime   time.Time
	Success       bool
	FailureReason *string
	ExpiresAt     time.Time
}
