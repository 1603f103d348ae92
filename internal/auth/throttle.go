package auth

import (
	"sync"
	"time"
)

// ThrottleConfig holds configuration for the per-address response delay.
type ThrottleConfig struct {
	BaseDelay time.Duration // delay after the first consecutive failure
	MaxDelay  time.Duration // cap on the computed delay
	IdleTTL   time.Duration // drop entries not touched for this long
}

// throttleEntry tracks consecutive failures from one source address.
type throttleEntry struct {
	consecutiveFailures int
	lastSeenAt          time.Time
}

// DelayThrottle computes an exponential response delay per source address.
// It is pure bookkeeping: callers are responsible for sleeping for the
// returned duration before proceeding. State lives in process memory and is
// lost on restart, which only resets the progressive delay.
type DelayThrottle struct {
	mu      sync.Mutex
	entries map[string]throttleEntry
	config  ThrottleConfig
	now     func() time.Time
}

// NewDelayThrottle creates a DelayThrottle with the provided config.
func NewDelayThrottle(config ThrottleConfig) *DelayThrottle {
	return &DelayThrottle{
		entries: make(map[string]throttleEntry),
		config:  config,
		now:     time.Now,
	}
}

// DelayFor returns the delay to impose on the next attempt from ipAddress:
// min(maxDelay, baseDelay * 2^(failures-1)) for failures >= 1, else 0.
func (t *DelayThrottle) DelayFor(ipAddress string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.evictIdleLocked(now)

	entry, ok := t.entries[ipAddress]
	if !ok || entry.consecutiveFailures == 0 {
		return 0
	}

	delay := t.config.BaseDelay
	for i := 1; i < entry.consecutiveFailures; i++ {
		delay *= 2
		if delay >= t.config.MaxDelay {
			return t.config.MaxDelay
		}
	}
	if delay > t.config.MaxDelay {
		delay = t.config.MaxDelay
	}
	return delay
}

// RecordFailure increments the consecutive-failure count for ipAddress.
func (t *DelayThrottle) RecordFailure(ipAddress string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entry := t.entries[ipAddress]
	entry.consecutiveFailures++
	entry.lastSeenAt = now
	t.entries[ipAddress] = entry
}

// RecordSuccess clears throttle state for ipAddress.
func (t *DelayThrottle) RecordSuccess(ipAddress string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, ipAddress)
}

// evictIdleLocked drops entries whose last activity is past IdleTTL. Called
// from DelayFor so reclamation happens on access rather than via a timer.
func (t *DelayThrottle) evictIdleLocked(now time.Time) {
	if t.config.IdleTTL <= 0 {
		return
	}
	for ip, entry := range t.entries {
		if now.Sub(entry.lastSeenAt) > t.config.IdleTTL {
			delete(t.entries, ip)
		}
	}
}

// WithClock overrides the internal clock, used in tests.
func (t *DelayThrottle) WithClock(clock func() time.Time) {
	if clock != nil {
		t.now = clock
	}
}
