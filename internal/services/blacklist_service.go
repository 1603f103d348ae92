package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BlacklistConfig holds configuration for temporary address bans.
type BlacklistConfig struct {
	Window      time.Duration // rolling window consulted in the ledger
	Threshold   int           // failures within the window that trigger a ban
	BanDuration time.Duration
}

// BlacklistLedger is the subset of the attempt ledger the blacklist needs.
type BlacklistLedger interface {
	CountFailuresByIP(ctx context.Context, ipAddress string, since time.Time) (int, error)
}

// BlacklistService keeps an in-memory, time-boxed ban list for source
// addresses, fed by ledger failure volume. Entries expire lazily: a read past
// bannedUntil treats the entry as absent. State is lost on restart by design;
// the durable ledger re-derives a ban quickly under a live attack.
type BlacklistService struct {
	mu      sync.Mutex
	entries map[string]time.Time // ip -> bannedUntil

	ledger   BlacklistLedger
	notifier SecurityNotifier
	config   BlacklistConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewBlacklistService creates a new BlacklistService
func NewBlacklistService(ledger BlacklistLedger, notifier SecurityNotifier, config BlacklistConfig, logger *slog.Logger) *BlacklistService {
	return &BlacklistService{
		entries:  make(map[string]time.Time),
		ledger:   ledger,
		notifier: notifier,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// IsBanned reports whether ipAddress is currently banned, returning the
// remaining ban duration when it is.
func (s *BlacklistService) IsBanned(ipAddress string) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.entries[ipAddress]
	if !ok {
		return false, 0
	}

	now := s.now()
	if !now.Before(until) {
		delete(s.entries, ipAddress)
		return false, 0
	}

	return true, until.Sub(now)
}

// EvaluateAndBan consults the ledger for recent failures from ipAddress and
// bans it when the volume crosses the threshold. Called after each recorded
// failure. The ledger read happens outside the map lock.
func (s *BlacklistService) EvaluateAndBan(ctx context.Context, ipAddress string) error {
	now := s.now()

	if banned, _ := s.IsBanned(ipAddress); banned {
		return nil
	}

	failures, err := s.ledger.CountFailuresByIP(ctx, ipAddress, now.Add(-s.config.Window))
	if err != nil {
		return fmt.Errorf("count failures for %s: %w", ipAddress, err)
	}

	if failures < s.config.Threshold {
		return nil
	}

	until := now.Add(s.config.BanDuration)

	s.mu.Lock()
	// Re-check under the lock; a concurrent evaluation may have won.
	if existing, ok := s.entries[ipAddress]; ok && now.Before(existing) {
		s.mu.Unlock()
		return nil
	}
	s.entries[ipAddress] = until
	s.mu.Unlock()

	s.notifier.AddressBanned(ipAddress, failures, until)
	s.logger.Warn("address banned",
		slog.String("ip_address", ipAddress),
		slog.Int("failures", failures),
		slog.Time("banned_until", until))

	return nil
}

// Unban lifts a ban immediately. Administrative override; idempotent.
func (s *BlacklistService) Unban(ipAddress string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, ipAddress)
}

// WithClock overrides the internal clock, used in tests.
func (s *BlacklistService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}
