package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/dmarchuk/rentd/internal/database"
	"github.com/dmarchuk/rentd/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, password_hash, name, role, status,
	failed_login_count, last_failed_login_at, step_up_required, locked, locked_until,
	created_at, updated_at`

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner interface for scanning user rows (single row or rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var passwordHash *string
	var lastFailedAt, lockedUntil *time.Time

	err := scanner.Scan(
		&user.ID, &user.Email, &passwordHash, &user.Name,
		&user.Role, &user.Status,
		&user.FailedLoginCount, &lastFailedAt, &user.StepUpRequired, &user.Locked, &lockedUntil,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	user.LastFailedLoginAt = lastFailedAt
	user.LockedUntil = lockedUntil

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = models.RoleTenant
	}
	if user.Status == "" {
		user.Status = "active"
	}

	query := `
		INSERT INTO users (id, email, password_hash, name, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns

	var passwordHash *string
	if user.PasswordHash != "" {
		passwordHash = &user.PasswordHash
	}

	created, err := scanUserRow(r.db.Pool.QueryRow(ctx, query,
		user.ID, user.Email, passwordHash, user.Name,
		user.Role, user.Status, user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Delete permanently removes a user. Only the privileged-delete coordinator
// calls this, after a verified confirmation.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Exists reports whether a user row with the given id is present.
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id,
	).Scan(&exists)
	return exists, err
}

// CountAdmins returns the number of active accounts holding the admin role.
func (r *UserRepository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE role = $1 AND status = 'active'`,
		models.RoleAdmin,
	).Scan(&count)
	return count, err
}

// UpdateLoginGuard applies mutate to the guard-owned fields of one account
// under a row lock, so two concurrent failed logins cannot under-count.
// mutate receives the current row and edits the guard fields in place.
func (r *UserRepository) UpdateLoginGuard(ctx context.Context, id string, mutate func(*models.User)) (*models.User, error) {
	var updated *models.User

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
		user, err := scanUserRow(tx.QueryRow(ctx, query, id))
		if err != nil {
			return err
		}

		mutate(user)
		user.UpdatedAt = time.Now().UTC()

		_, err = tx.Exec(ctx, `
			UPDATE users
			SET failed_login_count = $2,
			    last_failed_login_at = $3,
			    step_up_required = $4,
			    locked = $5,
			    locked_until = $6,
			    updated_at = $7
			WHERE id = $1
		`, user.ID, user.FailedLoginCount, user.LastFailedLoginAt,
			user.StepUpRequired, user.Locked, user.LockedUntil, user.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update login guard state: %w", err)
		}

		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}
