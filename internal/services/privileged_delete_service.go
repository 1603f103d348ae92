package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmarchuk/rentd/internal/models"
	pkglogger "github.com/dmarchuk/rentd/pkg/logger"
)

// EntityDeleter performs the irreversible removal of one kind of record.
// The CRUD layer owning each entity registers its own deleter; this package
// only coordinates the verification around the call.
type EntityDeleter interface {
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// AdminCounter reports how many active admin accounts exist.
type AdminCounter interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	CountAdmins(ctx context.Context) (int64, error)
}

// DeleteVerifier is the verification session protocol scoped to privileged
// deletions.
type DeleteVerifier interface {
	Issue(ctx context.Context, subjectID, destination, boundDescription string) (string, error)
	Verify(ctx context.Context, subjectID, sessionID, code string) error
	BoundDescription(subjectID, sessionID string) (string, bool)
}

// Entity types accepted by the coordinator. The set is fixed at wiring time
// through RegisterDeleter.
const (
	EntityUser     = "user"
	EntityBuilding = "building"
	EntityTenant   = "tenant"
)

// PrivilegedDeleteService gates hard deletes behind a fresh emailed code.
// The code is bound to the exact target named at initiation, so a session
// issued for one record can never confirm the deletion of another.
type PrivilegedDeleteService struct {
	verifier    DeleteVerifier
	admins      AdminCounter
	deleters    map[string]EntityDeleter
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewPrivilegedDeleteService creates a new PrivilegedDeleteService
func NewPrivilegedDeleteService(verifier DeleteVerifier, admins AdminCounter, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *PrivilegedDeleteService {
	return &PrivilegedDeleteService{
		verifier:    verifier,
		admins:      admins,
		deleters:    make(map[string]EntityDeleter),
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// RegisterDeleter wires the deletion port for one entity type.
func (s *PrivilegedDeleteService) RegisterDeleter(entityType string, deleter EntityDeleter) {
	s.deleters[entityType] = deleter
}

// Initiate starts a privileged deletion: it checks the actor's role and the
// target's existence, then issues a verification code bound to this exact
// deletion. The returned session ID must accompany the confirmation.
func (s *PrivilegedDeleteService) Initiate(ctx context.Context, actor *models.User, entityType, targetID string) (string, error) {
	if !actor.IsAdmin() {
		return "", models.ErrForbidden
	}

	deleter, ok := s.deleters[entityType]
	if !ok {
		return "", models.ErrBadRequest
	}

	exists, err := deleter.Exists(ctx, targetID)
	if err != nil {
		s.logger.Error("failed to check deletion target", slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	if !exists {
		return "", models.ErrNotFound
	}

	sessionID, err := s.verifier.Issue(ctx, actor.ID, actor.Email, deletionDescription(entityType, targetID, actor.Email))
	if err != nil {
		if isTypedVerificationError(err) {
			return "", err
		}
		s.logger.Error("failed to issue deletion challenge", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.auditLogger.LogSecurityEvent("privileged_delete_initiated", actor.ID, map[string]string{
		"entity_type": entityType,
		"target_id":   targetID,
	})

	return sessionID, nil
}

// Confirm completes a privileged deletion. The session must belong to the
// actor, name this exact target, and carry the right code. The last-admin
// invariant is enforced after verification: a violation consumes the session
// and a retry needs a fresh Initiate.
func (s *PrivilegedDeleteService) Confirm(ctx context.Context, actor *models.User, sessionID, code, entityType, targetID string) error {
	if !actor.IsAdmin() {
		return models.ErrForbidden
	}

	deleter, ok := s.deleters[entityType]
	if !ok {
		return models.ErrBadRequest
	}

	// A session bound to a different target is indistinguishable from a
	// missing one. Checked before Verify so a mismatch does not consume
	// a code attempt.
	bound, ok := s.verifier.BoundDescription(actor.ID, sessionID)
	if !ok || bound != deletionDescription(entityType, targetID, actor.Email) {
		return models.ErrSessionInvalidOrExpired
	}

	if err := s.verifier.Verify(ctx, actor.ID, sessionID, code); err != nil {
		return err
	}

	if entityType == EntityUser {
		if err := s.checkLastAdmin(ctx, targetID); err != nil {
			return err
		}
	}

	if err := deleter.Delete(ctx, targetID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete entity", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogSecurityEvent("privileged_delete_confirmed", actor.ID, map[string]string{
		"entity_type": entityType,
		"target_id":   targetID,
	})

	return nil
}

// checkLastAdmin blocks a deletion that would leave the system without an
// active admin.
func (s *PrivilegedDeleteService) checkLastAdmin(ctx context.Context, targetID string) error {
	target, err := s.admins.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	if !target.IsAdmin() {
		return nil
	}

	count, err := s.admins.CountAdmins(ctx)
	if err != nil {
		s.logger.Error("failed to count admins", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if count <= 1 {
		return models.ErrLastAdmin
	}
	return nil
}

func deletionDescription(entityType, targetID, actorEmail string) string {
	return fmt.Sprintf("hard delete %s %s requested by %s", entityType, targetID, actorEmail)
}
