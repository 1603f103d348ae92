package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmarchuk/rentd/internal/models"
)

// GuardOutcome is the decision AccountGuard reaches for a login attempt.
type GuardOutcome int

const (
	GuardAllow GuardOutcome = iota
	GuardRequireStepUp
	GuardLocked
)

// GuardDecision pairs an outcome with its remaining lock duration when the
// outcome is GuardLocked.
type GuardDecision struct {
	Outcome   GuardOutcome
	Remaining time.Duration
}

// AccountGuardConfig holds the guard thresholds.
type AccountGuardConfig struct {
	SoftLockThreshold int
	HardLockThreshold int
	HardLockDuration  time.Duration
}

// GuardUserRepository is the subset of UserRepository the guard needs.
type GuardUserRepository interface {
	UpdateLoginGuard(ctx context.Context, id string, mutate func(*models.User)) (*models.User, error)
}

// AccountGuard drives the per-account lockout state machine. All counter
// mutations go through UpdateLoginGuard, which holds a row lock, so two
// concurrent failed logins cannot under-count.
type AccountGuard struct {
	users    GuardUserRepository
	notifier SecurityNotifier
	config   AccountGuardConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewAccountGuard creates a new AccountGuard
func NewAccountGuard(users GuardUserRepository, notifier SecurityNotifier, config AccountGuardConfig, logger *slog.Logger) *AccountGuard {
	return &AccountGuard{
		users:    users,
		notifier: notifier,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckLock reports the lock state of an account at login time, applying
// lazy expiry: an expired hard lock is cleared in place (counter included)
// and the account treated as unlocked.
func (g *AccountGuard) CheckLock(ctx context.Context, user *models.User) (*GuardDecision, *models.User, error) {
	now := g.now()

	if user.Locked && user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return &GuardDecision{Outcome: GuardLocked, Remaining: user.LockedUntil.Sub(now)}, user, nil
	}

	if user.Locked {
		// Lock expired: clear everything on this read.
		updated, err := g.users.UpdateLoginGuard(ctx, user.ID, func(u *models.User) {
			u.FailedLoginCount = 0
			u.StepUpRequired = false
			u.Locked = false
			u.LockedUntil = nil
		})
		if err != nil {
			return nil, nil, err
		}
		g.notifier.AccountUnlocked(updated.ID, updated.Email)
		g.logger.Info("expired hard lock cleared", slog.String("user_id", updated.ID))
		user = updated
	}

	if user.StepUpRequired {
		return &GuardDecision{Outcome: GuardRequireStepUp}, user, nil
	}

	return &GuardDecision{Outcome: GuardAllow}, user, nil
}

// RecordFailure registers one failed login and returns the resulting
// decision: step-up at the soft threshold, a timed hard lock at the hard
// threshold.
func (g *AccountGuard) RecordFailure(ctx context.Context, userID string) (*GuardDecision, error) {
	now := g.now()
	var lockedAt *time.Time

	updated, err := g.users.UpdateLoginGuard(ctx, userID, func(u *models.User) {
		u.FailedLoginCount++
		t := now
		u.LastFailedLoginAt = &t

		if u.FailedLoginCount >= g.config.HardLockThreshold {
			until := now.Add(g.config.HardLockDuration)
			u.Locked = true
			u.LockedUntil = &until
			lockedAt = &until
		} else if u.FailedLoginCount >= g.config.SoftLockThreshold {
			u.StepUpRequired = true
		}
	})
	if err != nil {
		return nil, err
	}

	if lockedAt != nil {
		g.notifier.AccountHardLocked(updated.ID, updated.Email, *lockedAt)
		g.logger.Warn("account hard-locked",
			slog.String("user_id", updated.ID),
			slog.Int("failed_count", updated.FailedLoginCount),
			slog.Time("locked_until", *lockedAt))
		return &GuardDecision{Outcome: GuardLocked, Remaining: lockedAt.Sub(now)}, nil
	}

	if updated.StepUpRequired {
		return &GuardDecision{Outcome: GuardRequireStepUp}, nil
	}

	return &GuardDecision{Outcome: GuardAllow}, nil
}

// RecordSuccess resets all guard state after a fully successful login.
func (g *AccountGuard) RecordSuccess(ctx context.Context, userID string) error {
	_, err := g.users.UpdateLoginGuard(ctx, userID, func(u *models.User) {
		u.FailedLoginCount = 0
		u.LastFailedLoginAt = nil
		u.StepUpRequired = false
		u.Locked = false
		u.LockedUntil = nil
	})
	return err
}

// WithClock overrides the internal clock, used in tests.
func (g *AccountGuard) WithClock(clock func() time.Time) {
	if clock != nil {
		g.now = clock
	}
}
