package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/dmarchuk/rentd/internal/models"
	"github.com/google/uuid"
)

const verificationCodeDigits = 6

// VerificationConfig holds configuration for the verification session protocol.
type VerificationConfig struct {
	CodeExpiry            time.Duration
	MaxAttempts           int
	LockoutDuration       time.Duration
	IssuanceWindow        time.Duration
	MaxIssuancesPerWindow int
}

// subjectState is the per-subject verification bookkeeping: active sessions,
// the wrong-code counter, lockout, and recent issuance timestamps. Sessions
// are keyed by sessionID so a racing Issue cannot invalidate an in-flight
// Verify for an older session.
type subjectState struct {
	sessions    map[string]*models.VerificationSession
	failedCount int
	lockedUntil time.Time
	issuedAt    []time.Time
}

// VerificationService implements the shared two-step code protocol: issue a
// short-lived numeric code, verify it, lock the subject after repeated wrong
// codes. State is held in memory for the lifetime of the process; a restart
// discards pending sessions, which only forces callers to re-initiate.
type VerificationService struct {
	mu       sync.Mutex
	subjects map[string]*subjectState

	config VerificationConfig
	email  EmailService
	logger *slog.Logger
	now    func() time.Time
}

// NewVerificationService creates a new VerificationService
func NewVerificationService(config VerificationConfig, email EmailService, logger *slog.Logger) *VerificationService {
	return &VerificationService{
		subjects: make(map[string]*subjectState),
		config:   config,
		email:    email,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue creates a verification session for subjectID and delivers its code to
// destination. boundDescription ties the session to one operation; it is
// echoed in the delivered message. Fails with VerificationLockedError while
// the subject is locked and with RateLimitedError past the issuance budget.
// If delivery fails the session is discarded and an error returned: a code
// that never reached the user must not count as issued.
func (s *VerificationService) Issue(ctx context.Context, subjectID, destination, boundDescription string) (string, error) {
	now := s.now()

	code, err := generateNumericCode(verificationCodeDigits)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}

	session := &models.VerificationSession{
		SessionID:        uuid.New().String(),
		SubjectID:        subjectID,
		Code:             code,
		BoundDescription: boundDescription,
		IssuedAt:         now,
		ExpiresAt:        now.Add(s.config.CodeExpiry),
	}

	s.mu.Lock()
	state := s.subjectLocked(subjectID)

	if remaining := state.lockedUntil.Sub(now); remaining > 0 {
		s.mu.Unlock()
		return "", &models.VerificationLockedError{RetryAfter: remaining}
	}

	state.pruneIssuances(now, s.config.IssuanceWindow)
	if len(state.issuedAt) >= s.config.MaxIssuancesPerWindow {
		retryAfter := state.issuedAt[0].Add(s.config.IssuanceWindow).Sub(now)
		s.mu.Unlock()
		return "", &models.RateLimitedError{RetryAfter: retryAfter}
	}

	state.issuedAt = append(state.issuedAt, now)
	state.pruneSessions(now)
	state.sessions[session.SessionID] = session
	s.mu.Unlock()

	// Delivery happens outside the lock; a slow SMTP round-trip must not
	// stall verification for unrelated subjects.
	expiryMinutes := int(s.config.CodeExpiry.Minutes())
	if err := s.email.SendVerificationCode(ctx, destination, code, expiryMinutes, boundDescription); err != nil {
		s.mu.Lock()
		if st, ok := s.subjects[subjectID]; ok {
			delete(st.sessions, session.SessionID)
		}
		s.mu.Unlock()
		return "", fmt.Errorf("deliver verification code: %w", err)
	}

	s.logger.Info("verification session issued",
		slog.String("subject_id", subjectID),
		slog.String("session_id", session.SessionID))

	return session.SessionID, nil
}

// Verify checks code against the session identified by (subjectID,
// sessionID). A missing, used, or expired session does not consume an
// attempt: stale UI state is not a guessing attempt. A wrong code does, and
// at MaxAttempts the subject locks for LockoutDuration.
func (s *VerificationService) Verify(ctx context.Context, subjectID, sessionID, code string) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.subjects[subjectID]
	if !ok {
		return models.ErrSessionInvalidOrExpired
	}

	if remaining := state.lockedUntil.Sub(now); remaining > 0 {
		return &models.VerificationLockedError{RetryAfter: remaining}
	}

	session, ok := state.sessions[sessionID]
	if !ok || !session.IsActive(now) {
		return models.ErrSessionInvalidOrExpired
	}

	if subtle.ConstantTimeCompare([]byte(session.Code), []byte(code)) != 1 {
		state.failedCount++
		if state.failedCount >= s.config.MaxAttempts {
			state.lockedUntil = now.Add(s.config.LockoutDuration)
			state.failedCount = 0
			s.logger.Warn("verification subject locked",
				slog.String("subject_id", subjectID),
				slog.Time("locked_until", state.lockedUntil))
			return &models.VerificationLockedError{RetryAfter: s.config.LockoutDuration}
		}
		return &models.VerificationFailedError{
			AttemptsRemaining: s.config.MaxAttempts - state.failedCount,
		}
	}

	session.Used = true
	state.failedCount = 0

	s.logger.Info("verification succeeded",
		slog.String("subject_id", subjectID),
		slog.String("session_id", sessionID))

	return nil
}

// Cancel discards all active sessions for subjectID. Idempotent; a Verify
// that already won the race against Cancel stays succeeded.
func (s *VerificationService) Cancel(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.subjects[subjectID]; ok {
		state.sessions = make(map[string]*models.VerificationSession)
	}
}

// BoundDescription returns the description bound to an active session, so a
// confirming caller can check the session matches the operation at hand.
func (s *VerificationService) BoundDescription(subjectID, sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.subjects[subjectID]
	if !ok {
		return "", false
	}
	session, ok := state.sessions[sessionID]
	if !ok || !session.IsActive(s.now()) {
		return "", false
	}
	return session.BoundDescription, true
}

// WithClock overrides the internal clock, used in tests.
func (s *VerificationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// subjectLocked returns the state for subjectID, creating it if absent.
// Caller must hold s.mu.
func (s *VerificationService) subjectLocked(subjectID string) *subjectState {
	state, ok := s.subjects[subjectID]
	if !ok {
		state = &subjectState{sessions: make(map[string]*models.VerificationSession)}
		s.subjects[subjectID] = state
	}
	return state
}

// pruneIssuances drops issuance timestamps older than the rolling window.
func (st *subjectState) pruneIssuances(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	kept := st.issuedAt[:0]
	for _, t := range st.issuedAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.issuedAt = kept
}

// pruneSessions drops used and expired sessions. Expiry is otherwise lazy;
// this just bounds memory on the next issuance for the same subject.
func (st *subjectState) pruneSessions(now time.Time) {
	for id, session := range st.sessions {
		if !session.IsActive(now) {
			delete(st.sessions, id)
		}
	}
}

// generateNumericCode draws a zero-padded numeric code from crypto/rand.
func generateNumericCode(digits int) (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < digits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", digits, n), nil
}
