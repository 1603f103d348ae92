package services_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarchuk/rentd/internal/models"
	"github.com/dmarchuk/rentd/internal/services"
)

// MockEmailService captures sent codes instead of delivering them
type MockEmailService struct {
	lastDestination string
	lastCode        string
	lastContext     string
	sendCount       int
	failNext        bool
}

func (m *MockEmailService) SendVerificationCode(ctx context.Context, destination, code string, expiryMinutes int, useContext string) error {
	if m.failNext {
		m.failNext = false
		return errors.New("ses unavailable")
	}
	m.lastDestination = destination
	m.lastCode = code
	m.lastContext = useContext
	m.sendCount++
	return nil
}

func newTestVerificationService(email *MockEmailService) *services.VerificationService {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return services.NewVerificationService(services.VerificationConfig{
		CodeExpiry:            15 * time.Minute,
		MaxAttempts:           5,
		LockoutDuration:       30 * time.Minute,
		IssuanceWindow:        time.Hour,
		MaxIssuancesPerWindow: 5,
	}, email, logger)
}

func TestVerificationService_IssueAndVerify(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	sessionID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, "admin@example.com", email.lastDestination)
	assert.Len(t, email.lastCode, 6)

	err = svc.Verify(context.Background(), "subject-1", sessionID, email.lastCode)
	assert.NoError(t, err)
}

func TestVerificationService_VerifiedSessionCannotBeReused(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	sessionID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)

	require.NoError(t, svc.Verify(context.Background(), "subject-1", sessionID, email.lastCode))

	err = svc.Verify(context.Background(), "subject-1", sessionID, email.lastCode)
	assert.ErrorIs(t, err, models.ErrSessionInvalidOrExpired)
}

func TestVerificationService_WrongCodeConsumesAttempt(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	sessionID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)

	err = svc.Verify(context.Background(), "subject-1", sessionID, "000000")
	var failed *models.VerificationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 4, failed.AttemptsRemaining)

	// The right code still works afterwards
	assert.NoError(t, svc.Verify(context.Background(), "subject-1", sessionID, email.lastCode))
}

func TestVerificationService_UnknownSessionDoesNotConsumeAttempt(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	sessionID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		err := svc.Verify(context.Background(), "subject-1", "not-a-session", "000000")
		assert.ErrorIs(t, err, models.ErrSessionInvalidOrExpired)
	}

	// No attempts were consumed by the invalid-session probes
	err = svc.Verify(context.Background(), "subject-1", sessionID, "000000")
	var failed *models.VerificationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 4, failed.AttemptsRemaining)
}

func TestVerificationService_LocksAfterMaxWrongCodes(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	sessionID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < 5; i++ {
		lastErr = svc.Verify(context.Background(), "subject-1", sessionID, "000000")
	}

	var locked *models.VerificationLockedError
	require.ErrorAs(t, lastErr, &locked)
	assert.Equal(t, 30*time.Minute, locked.RetryAfter)

	// While locked even the right code is rejected
	err = svc.Verify(context.Background(), "subject-1", sessionID, email.lastCode)
	assert.ErrorAs(t, err, &locked)

	// And no new session can be issued
	_, err = svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	assert.ErrorAs(t, err, &locked)
}

func TestVerificationService_LockoutExpires(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	current := time.Now()
	svc.WithClock(func() time.Time { return current })

	sessionID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_ = svc.Verify(context.Background(), "subject-1", sessionID, "000000")
	}

	current = current.Add(31 * time.Minute)

	// Lock has lapsed; the issuance budget also rolled over with the clock
	_, err = svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	assert.NoError(t, err)
}

func TestVerificationService_CodeExpires(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	current := time.Now()
	svc.WithClock(func() time.Time { return current })

	sessionID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)

	current = current.Add(16 * time.Minute)

	err = svc.Verify(context.Background(), "subject-1", sessionID, email.lastCode)
	assert.ErrorIs(t, err, models.ErrSessionInvalidOrExpired)
}

func TestVerificationService_IssuanceBudgetEnforced(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	for i := 0; i < 5; i++ {
		_, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
		require.NoError(t, err)
	}

	_, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	var rateLimited *models.RateLimitedError
	require.ErrorAs(t, err, &rateLimited)
	assert.Greater(t, rateLimited.RetryAfter, time.Duration(0))

	// Another subject is unaffected
	_, err = svc.Issue(context.Background(), "subject-2", "other@example.com", "")
	assert.NoError(t, err)
}

func TestVerificationService_DeliveryFailureDiscardsSession(t *testing.T) {
	email := &MockEmailService{failNext: true}
	svc := newTestVerificationService(email)

	_, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.Error(t, err)

	// The next issuance succeeds and its session verifies normally
	sessionID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)
	assert.NoError(t, svc.Verify(context.Background(), "subject-1", sessionID, email.lastCode))
}

func TestVerificationService_SessionsScopedBySubject(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	sessionID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)
	code := email.lastCode

	// A different subject cannot verify against subject-1's session
	err = svc.Verify(context.Background(), "subject-2", sessionID, code)
	assert.ErrorIs(t, err, models.ErrSessionInvalidOrExpired)
}

func TestVerificationService_NewIssueKeepsOlderSessionAlive(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	firstID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)
	firstCode := email.lastCode

	_, err = svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)

	assert.NoError(t, svc.Verify(context.Background(), "subject-1", firstID, firstCode))
}

func TestVerificationService_CancelDiscardsSessions(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	sessionID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", "")
	require.NoError(t, err)

	svc.Cancel("subject-1")
	svc.Cancel("subject-1") // idempotent

	err = svc.Verify(context.Background(), "subject-1", sessionID, email.lastCode)
	assert.ErrorIs(t, err, models.ErrSessionInvalidOrExpired)
}

func TestVerificationService_BoundDescription(t *testing.T) {
	email := &MockEmailService{}
	svc := newTestVerificationService(email)

	want := fmt.Sprintf("hard delete user %s requested by admin@example.com", "abc-123")
	sessionID, err := svc.Issue(context.Background(), "subject-1", "admin@example.com", want)
	require.NoError(t, err)
	assert.Equal(t, want, email.lastContext)

	got, ok := svc.BoundDescription("subject-1", sessionID)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = svc.BoundDescription("subject-1", "unknown")
	assert.False(t, ok)
}
