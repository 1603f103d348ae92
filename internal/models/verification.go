package models

import "time"

// VerificationSession is a time-boxed, single-use code challenge held in
// memory for the lifetime of the process. BoundDescription ties the session
// to one specific operation so a confirmed code cannot be replayed against a
// different one.
type VerificationSession struct {
	SessionID        string
	SubjectID        string
	Code             string
	BoundDescription string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	Used             bool
}

// IsExpired checks if the session has expired.
func (s *VerificationSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsActive checks if the session can still accept a code.
func (s *VerificationSession) IsActive(now time.Time) bool {
	return !s.Used && !s.IsExpired(now)
}
