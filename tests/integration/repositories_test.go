package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarchuk/rentd/internal/models"
	"github.com/dmarchuk/rentd/internal/repositories"
)

func setup(t *testing.T) (*TestDB, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Teardown(ctx) })
	return db, ctx
}

func TestLoginAttemptRepository(t *testing.T) {
	db, ctx := setup(t)
	repo := repositories.NewLoginAttemptRepository(db.DB)

	reason := models.FailureReasonBadCredentials
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		err := repo.RecordAttempt(ctx, &models.LoginAttempt{
			Email:         "alice@example.com",
			IPAddress:     "10.0.0.1",
			UserAgent:     "test-agent",
			AttemptTime:   now,
			Success:       false,
			FailureReason: &reason,
			ExpiresAt:     now.Add(24 * time.Hour),
		})
		require.NoError(t, err)
	}
	require.NoError(t, repo.RecordAttempt(ctx, &models.LoginAttempt{
		Email:       "alice@example.com",
		IPAddress:   "10.0.0.1",
		AttemptTime: now,
		Success:     true,
		ExpiresAt:   now.Add(24 * time.Hour),
	}))

	since := now.Add(-30 * time.Minute)

	byEmail, err := repo.CountFailuresByEmail(ctx, "alice@example.com", since)
	require.NoError(t, err)
	assert.Equal(t, 3, byEmail)

	byIP, err := repo.CountFailuresByIP(ctx, "10.0.0.1", since)
	require.NoError(t, err)
	assert.Equal(t, 3, byIP)

	recent, err := repo.RecentAttempts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 4)

	// Nothing has expired yet
	deleted, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestLoginAttemptRepository_DeleteExpired(t *testing.T) {
	db, ctx := setup(t)
	repo := repositories.NewLoginAttemptRepository(db.DB)

	now := time.Now().UTC()
	require.NoError(t, repo.RecordAttempt(ctx, &models.LoginAttempt{
		Email:       "old@example.com",
		IPAddress:   "10.0.0.1",
		AttemptTime: now.Add(-48 * time.Hour),
		Success:     false,
		ExpiresAt:   now.Add(-24 * time.Hour),
	}))
	require.NoError(t, repo.RecordAttempt(ctx, &models.LoginAttempt{
		Email:       "fresh@example.com",
		IPAddress:   "10.0.0.1",
		AttemptTime: now,
		Success:     false,
		ExpiresAt:   now.Add(24 * time.Hour),
	}))

	deleted, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	recent, err := repo.RecentAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "fresh@example.com", recent[0].Email)
}

func TestUserRepository_GuardRoundTrip(t *testing.T) {
	db, ctx := setup(t)
	repo := repositories.NewUserRepository(db.DB)

	created, err := repo.Create(ctx, &models.User{
		Email:        "alice@example.com",
		PasswordHash: "not-a-real-hash",
		Name:         "Alice",
		Role:         models.RoleManager,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "active", created.Status)

	until := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Second)
	updated, err := repo.UpdateLoginGuard(ctx, created.ID, func(u *models.User) {
		u.FailedLoginCount = 10
		u.StepUpRequired = true
		u.Locked = true
		u.LockedUntil = &until
	})
	require.NoError(t, err)
	assert.Equal(t, 10, updated.FailedLoginCount)
	assert.True(t, updated.Locked)

	fetched, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, fetched.Locked)
	assert.True(t, fetched.StepUpRequired)
	require.NotNil(t, fetched.LockedUntil)
	assert.WithinDuration(t, until, *fetched.LockedUntil, time.Second)
}

func TestUserRepository_CountAdminsAndDelete(t *testing.T) {
	db, ctx := setup(t)
	repo := repositories.NewUserRepository(db.DB)

	a1, err := repo.Create(ctx, &models.User{Email: "a1@example.com", Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &models.User{Email: "a2@example.com", Role: models.RoleAdmin})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &models.User{Email: "t@example.com", Role: models.RoleTenant})
	require.NoError(t, err)

	count, err := repo.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	exists, err := repo.Exists(ctx, a1.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.Delete(ctx, a1.ID))
	assert.ErrorIs(t, repo.Delete(ctx, a1.ID), models.ErrNotFound)

	count, err = repo.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecordRepository(t *testing.T) {
	db, ctx := setup(t)

	buildings, err := repositories.NewRecordRepository(db.DB, "buildings")
	require.NoError(t, err)

	_, err = repositories.NewRecordRepository(db.DB, "users")
	assert.Error(t, err)

	id := "6a1f16a2-58a3-4b9e-9f6b-0f1c2d3e4f5a"
	_, err = db.Pool.Exec(ctx, `INSERT INTO buildings (id, name) VALUES ($1, $2)`, id, "North Tower")
	require.NoError(t, err)

	exists, err := buildings.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, buildings.Delete(ctx, id))
	assert.ErrorIs(t, buildings.Delete(ctx, id), models.ErrNotFound)
}
