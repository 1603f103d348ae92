package services_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dmarchuk/rentd/internal/models"
	pkglogger "github.com/dmarchuk/rentd/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

// fakeUserStore is an in-memory stand-in for the user repository
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	store := &fakeUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		copied := *u
		store.users[u.ID] = &copied
	}
	return store
}

func (s *fakeUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *fakeUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *fakeUserStore) UpdateLoginGuard(ctx context.Context, id string, mutate func(*models.User)) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	mutate(user)
	copied := *user
	return &copied, nil
}

func (s *fakeUserStore) CountAdmins(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, user := range s.users {
		if user.Role == models.RoleAdmin && user.IsActive() {
			count++
		}
	}
	return count, nil
}

func (s *fakeUserStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok, nil
}

func (s *fakeUserStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// fakeNotifier records security notifications
type fakeNotifier struct {
	mu         sync.Mutex
	hardLocked []string
	banned     []string
	unlocked   []string
}

func (n *fakeNotifier) AccountHardLocked(userID, email string, until time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hardLocked = append(n.hardLocked, userID)
}

func (n *fakeNotifier) AddressBanned(ipAddress string, failures int, until time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.banned = append(n.banned, ipAddress)
}

func (n *fakeNotifier) AccountUnlocked(userID, email string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unlocked = append(n.unlocked, userID)
}

// fakeLedger is an in-memory attempt ledger
type fakeLedger struct {
	mu       sync.Mutex
	attempts []*models.LoginAttempt
	failErr  error
}

func (l *fakeLedger) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failErr != nil {
		return l.failErr
	}
	l.attempts = append(l.attempts, attempt)
	return nil
}

func (l *fakeLedger) CountFailuresByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, a := range l.attempts {
		if a.IPAddress == ipAddress && !a.Success && a.AttemptTime.After(since) {
			count++
		}
	}
	return count, nil
}

func (l *fakeLedger) lastAttempt() *models.LoginAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.attempts) == 0 {
		return nil
	}
	return l.attempts[len(l.attempts)-1]
}
