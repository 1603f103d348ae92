package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmarchuk/rentd/internal/auth"
	"github.com/dmarchuk/rentd/internal/models"
	pkghttp "github.com/dmarchuk/rentd/pkg/http"
)

// DeletionServiceInterface defines the privileged deletion contract.
type DeletionServiceInterface interface {
	Initiate(ctx context.Context, actor *models.User, entityType, targetID string) (string, error)
	Confirm(ctx context.Context, actor *models.User, sessionID, code, entityType, targetID string) error
}

// BlacklistAdminInterface exposes the manual override for address bans.
type BlacklistAdminInterface interface {
	Unban(ipAddress string)
}

// AttemptReaderInterface reads the attempt ledger for the overview endpoint.
type AttemptReaderInterface interface {
	RecentAttempts(ctx context.Context, limit int) ([]*models.LoginAttempt, error)
}

// ActorFetcher resolves the authenticated admin from token claims.
type ActorFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AdminHandler handles admin security HTTP requests.
type AdminHandler struct {
	deletions DeletionServiceInterface
	blacklist BlacklistAdminInterface
	attempts  AttemptReaderInterface
	users     ActorFetcher
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(deletions DeletionServiceInterface, blacklist BlacklistAdminInterface, attempts AttemptReaderInterface, users ActorFetcher) *AdminHandler {
	return &AdminHandler{
		deletions: deletions,
		blacklist: blacklist,
		attempts:  attempts,
		users:     users,
	}
}

// Request DTOs

// InitiateDeletionRequest names the record to hard delete
type InitiateDeletionRequest struct {
	EntityType string `json:"entity_type" validate:"required,oneof=user building tenant"`
	TargetID   string `json:"target_id" validate:"required,uuid"`
}

// ConfirmDeletionRequest carries the emailed code back with the target
type ConfirmDeletionRequest struct {
	EntityType string `json:"entity_type" validate:"required,oneof=user building tenant"`
	TargetID   string `json:"target_id" validate:"required,uuid"`
	SessionID  string `json:"session_id" validate:"required,uuid"`
	Code       string `json:"code" validate:"required,len=6,numeric"`
}

// InitiateDeletionResponse returns the session the confirmation must quote
type InitiateDeletionResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// AttemptSummary is one ledger row in the security overview
type AttemptSummary struct {
	Email         string    `json:"email"`
	IPAddress     string    `json:"ip_address"`
	AttemptTime   time.Time `json:"attempt_time"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// SecurityOverviewResponse summarizes recent authentication activity
type SecurityOverviewResponse struct {
	RecentAttempts []AttemptSummary `json:"recent_attempts"`
}

// InitiateDeletion handles POST /admin/deletions
func (h *AdminHandler) InitiateDeletion(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}

	var req InitiateDeletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sessionID, err := h.deletions.Initiate(r.Context(), actor, req.EntityType, req.TargetID)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, InitiateDeletionResponse{
		SessionID: sessionID,
		Message:   "A confirmation code has been sent to your email address.",
	})
}

// ConfirmDeletion handles POST /admin/deletions/confirm
func (h *AdminHandler) ConfirmDeletion(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}

	var req ConfirmDeletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.deletions.Confirm(r.Context(), actor, req.SessionID, req.Code, req.EntityType, req.TargetID); err != nil {
		writeAdminError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveBan handles DELETE /admin/blacklist/{ip}
func (h *AdminHandler) RemoveBan(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if ip == "" {
		pkghttp.WriteBadRequest(w, "Missing IP address")
		return
	}

	h.blacklist.Unban(ip)
	w.WriteHeader(http.StatusNoContent)
}

// SecurityOverview handles GET /admin/security/overview
// Accepts optional query param ?limit=N (1-100, default 50).
func (h *AdminHandler) SecurityOverview(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	attempts, err := h.attempts.RecentAttempts(r.Context(), limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve recent attempts")
		return
	}

	resp := SecurityOverviewResponse{RecentAttempts: make([]AttemptSummary, 0, len(attempts))}
	for _, a := range attempts {
		summary := AttemptSummary{
			Email:       a.Email,
			IPAddress:   a.IPAddress,
			AttemptTime: a.AttemptTime,
			Success:     a.Success,
		}
		if a.FailureReason != nil {
			summary.FailureReason = *a.FailureReason
		}
		resp.RecentAttempts = append(resp.RecentAttempts, summary)
	}

	writeJSON(w, http.StatusOK, resp)
}

// actor resolves the full user record for the authenticated admin. Writes
// the error response itself and returns nil when resolution fails.
func (h *AdminHandler) actor(w http.ResponseWriter, r *http.Request) *models.User {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return nil
	}

	actor, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return nil
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return nil
	}
	return actor
}

func writeAdminError(w http.ResponseWriter, err error) {
	var rateLimited *models.RateLimitedError
	var verifyLocked *models.VerificationLockedError
	var verifyFailed *models.VerificationFailedError

	switch {
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Admin role required")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Target not found")
	case errors.Is(err, models.ErrLastAdmin):
		pkghttp.WriteConflict(w, "Cannot delete the last remaining admin account")
	case errors.Is(err, models.ErrSessionInvalidOrExpired):
		pkghttp.WriteError(w, http.StatusUnauthorized, "session_invalid",
			"Verification session is invalid or has expired. Initiate the deletion again.")
	case errors.As(err, &verifyFailed):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "Incorrect verification code.")
	case errors.As(err, &verifyLocked):
		pkghttp.WriteRetryAfter(w, http.StatusTooManyRequests, "verification_locked",
			"Too many incorrect codes. Please try again later.", verifyLocked.RetryAfter)
	case errors.As(err, &rateLimited):
		pkghttp.WriteRetryAfter(w, http.StatusTooManyRequests, "rate_limit_exceeded",
			"Too many requests. Please try again later.", rateLimited.RetryAfter)
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
