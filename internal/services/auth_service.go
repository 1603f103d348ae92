package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dmarchuk/rentd/internal/models"
	pkgauth "github.com/dmarchuk/rentd/pkg/auth"
	pkglogger "github.com/dmarchuk/rentd/pkg/logger"
)

// AuthUserRepository is the subset of UserRepository the login flow needs.
type AuthUserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AttemptRecorder is the subset of the attempt ledger the login flow needs.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

// ResponseThrottle computes and tracks the per-address progressive delay.
type ResponseThrottle interface {
	DelayFor(ipAddress string) time.Duration
	RecordFailure(ipAddress string)
	RecordSuccess(ipAddress string)
}

// AddressBlacklist rejects requests from banned source addresses.
type AddressBlacklist interface {
	IsBanned(ipAddress string) (bool, time.Duration)
	EvaluateAndBan(ctx context.Context, ipAddress string) error
}

// LoginGuard drives the per-account lockout state machine.
type LoginGuard interface {
	CheckLock(ctx context.Context, user *models.User) (*GuardDecision, *models.User, error)
	RecordFailure(ctx context.Context, userID string) (*GuardDecision, error)
	RecordSuccess(ctx context.Context, userID string) error
}

// StepUpVerifier is the verification session protocol used for the login
// second factor.
type StepUpVerifier interface {
	Issue(ctx context.Context, subjectID, destination, boundDescription string) (string, error)
	Verify(ctx context.Context, subjectID, sessionID, code string) error
	Cancel(subjectID string)
}

// LoginResult reports the outcome of a credential-valid login attempt.
type LoginResult struct {
	User            *models.User
	StepUpRequired  bool
	StepUpSessionID string
}

// AuthService runs the login pipeline in its fixed order: address blacklist,
// response throttle, account guard and credential check, then the ledger
// write. An attempt rejected by an earlier stage never reaches a later one,
// and the ledger write for accepted attempts always happens before the
// response is returned.
type AuthService struct {
	users     AuthUserRepository
	attempts  AttemptRecorder
	throttle  ResponseThrottle
	blacklist AddressBlacklist
	guard     LoginGuard
	stepUp    StepUpVerifier

	retention   time.Duration
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	// sleep is the blocking point for the throttle delay; injectable so
	// tests do not wait.
	sleep func(time.Duration)
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users AuthUserRepository,
	attempts AttemptRecorder,
	throttle ResponseThrottle,
	blacklist AddressBlacklist,
	guard LoginGuard,
	stepUp StepUpVerifier,
	retention time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		users:       users,
		attempts:    attempts,
		throttle:    throttle,
		blacklist:   blacklist,
		guard:       guard,
		stepUp:      stepUp,
		retention:   retention,
		logger:      logger,
		auditLogger: auditLogger,
		sleep:       time.Sleep,
	}
}

// WithSleeper overrides the throttle sleep, used in tests.
func (s *AuthService) WithSleeper(sleep func(time.Duration)) {
	if sleep != nil {
		s.sleep = sleep
	}
}

// Login authenticates a user. Possible outcomes: a completed login, a
// step-up challenge (correct credentials but soft-locked account), or a
// typed rejection.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrUnauthorized
	}

	// Banned addresses are rejected before any other work. No ledger row:
	// a pre-emptive rejection is not a login attempt.
	if banned, remaining := s.blacklist.IsBanned(ipAddress); banned {
		s.logger.Warn("login rejected: address banned", slog.String("ip_address", ipAddress))
		return nil, &models.RateLimitedError{RetryAfter: remaining}
	}

	// Progressive delay raises attacker cost without rejecting anyone. The
	// sleep blocks only this request.
	if delay := s.throttle.DelayFor(ipAddress); delay > 0 {
		s.sleep(delay)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.rejectAttempt(ctx, "", email, ipAddress, userAgent, models.FailureReasonUnknownUser, models.ErrUnauthorized)
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.IsActive() {
		return nil, s.rejectAttempt(ctx, user.ID, email, ipAddress, userAgent, models.FailureReasonDisabled, models.ErrUnauthorized)
	}

	decision, user, err := s.guard.CheckLock(ctx, user)
	if err != nil {
		s.logger.Error("failed to check account lock", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if decision.Outcome == GuardLocked {
		lockErr := &models.AccountLockedError{RetryAfter: decision.Remaining}
		return nil, s.rejectAttempt(ctx, user.ID, email, ipAddress, userAgent, models.FailureReasonAccountLocked, lockErr)
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		guardDecision, gErr := s.guard.RecordFailure(ctx, user.ID)
		if gErr != nil {
			s.logger.Error("failed to record login failure", slog.Any("error", gErr))
			return nil, models.ErrInternalServer
		}

		var outcome error = models.ErrUnauthorized
		if guardDecision.Outcome == GuardLocked {
			outcome = &models.AccountLockedError{RetryAfter: guardDecision.Remaining}
		}
		return nil, s.rejectAttempt(ctx, user.ID, email, ipAddress, userAgent, models.FailureReasonBadCredentials, outcome)
	}

	// Correct credentials, but a soft-locked account still needs the
	// emailed code before a session is granted.
	if decision.Outcome == GuardRequireStepUp {
		sessionID, err := s.stepUp.Issue(ctx, user.ID, user.Email, "")
		if err != nil {
			if isTypedVerificationError(err) {
				return nil, err
			}
			s.logger.Error("failed to issue step-up challenge", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		if err := s.recordAttempt(ctx, email, ipAddress, userAgent, false, models.FailureReasonStepUpPending); err != nil {
			return nil, err
		}

		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_step_up_required",
			UserID:        user.ID,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: models.FailureReasonStepUpPending,
			Success:       false,
		})

		return &LoginResult{User: user, StepUpRequired: true, StepUpSessionID: sessionID}, nil
	}

	return s.completeLogin(ctx, user, email, ipAddress, userAgent)
}

// VerifyStepUp completes a pending step-up challenge. On success the account
// guard is fully reset and the login counts as successful.
func (s *AuthService) VerifyStepUp(ctx context.Context, email, sessionID, code, ipAddress, userAgent string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if banned, remaining := s.blacklist.IsBanned(ipAddress); banned {
		return nil, &models.RateLimitedError{RetryAfter: remaining}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, models.ErrInternalServer
	}

	decision, user, err := s.guard.CheckLock(ctx, user)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if decision.Outcome == GuardLocked {
		return nil, &models.AccountLockedError{RetryAfter: decision.Remaining}
	}

	if err := s.stepUp.Verify(ctx, user.ID, sessionID, code); err != nil {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "step_up_failed",
			UserID:        user.ID,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: err.Error(),
			Success:       false,
		})
		return nil, err
	}

	return s.completeLogin(ctx, user, email, ipAddress, userAgent)
}

// ResendStepUp issues a fresh step-up challenge for a soft-locked account.
// The verification service's issuance budget bounds abuse.
func (s *AuthService) ResendStepUp(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrUnauthorized
		}
		return "", models.ErrInternalServer
	}

	if !user.StepUpRequired {
		return "", models.ErrBadRequest
	}

	sessionID, err := s.stepUp.Issue(ctx, user.ID, user.Email, "")
	if err != nil {
		if isTypedVerificationError(err) {
			return "", err
		}
		return "", models.ErrInternalServer
	}

	return sessionID, nil
}

// completeLogin resets all mitigation state and writes the success row.
func (s *AuthService) completeLogin(ctx context.Context, user *models.User, email, ipAddress, userAgent string) (*LoginResult, error) {
	if err := s.guard.RecordSuccess(ctx, user.ID); err != nil {
		s.logger.Error("failed to reset guard state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	s.throttle.RecordSuccess(ipAddress)

	if err := s.recordAttempt(ctx, email, ipAddress, userAgent, true, ""); err != nil {
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login",
		UserID:    user.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})

	user.FailedLoginCount = 0
	user.StepUpRequired = false
	user.Locked = false
	user.LockedUntil = nil

	return &LoginResult{User: user}, nil
}

// rejectAttempt records a failed attempt, updates the throttle, re-evaluates
// the blacklist, and returns outcome. The ledger write is mandatory: if it
// fails the caller gets an internal error instead of outcome, because an
// unrecorded failure would corrupt every windowed threshold.
func (s *AuthService) rejectAttempt(ctx context.Context, userID, email, ipAddress, userAgent, reason string, outcome error) error {
	if err := s.recordAttempt(ctx, email, ipAddress, userAgent, false, reason); err != nil {
		return err
	}

	s.throttle.RecordFailure(ipAddress)

	if err := s.blacklist.EvaluateAndBan(ctx, ipAddress); err != nil {
		// The ban is derived state; failing to evaluate must not mask the
		// original outcome.
		s.logger.Error("blacklist evaluation failed", slog.Any("error", err))
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		UserID:        userID,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		FailureReason: reason,
		Success:       false,
	})

	return outcome
}

func (s *AuthService) recordAttempt(ctx context.Context, email, ipAddress, userAgent string, success bool, reason string) error {
	now := time.Now().UTC()
	attempt := &models.LoginAttempt{
		Email:       email,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		AttemptTime: now,
		Success:     success,
		ExpiresAt:   now.Add(s.retention),
	}
	if reason != "" {
		attempt.FailureReason = &reason
	}

	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// isTypedVerificationError reports whether err is one of the typed outcomes
// the verification protocol returns for expected states.
func isTypedVerificationError(err error) bool {
	var rateLimited *models.RateLimitedError
	var verifyLocked *models.VerificationLockedError
	var verifyFailed *models.VerificationFailedError
	return errors.As(err, &rateLimited) || errors.As(err, &verifyLocked) || errors.As(err, &verifyFailed) ||
		errors.Is(err, models.ErrSessionInvalidOrExpired)
}
