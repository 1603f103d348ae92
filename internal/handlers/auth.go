package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmarchuk/rentd/internal/auth"
	"github.com/dmarchuk/rentd/internal/models"
	"github.com/dmarchuk/rentd/internal/services"
	pkghttp "github.com/dmarchuk/rentd/pkg/http"
)

// AuthServiceInterface defines the interface for the login pipeline
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.LoginResult, error)
	VerifyStepUp(ctx context.Context, email, sessionID, code, ipAddress, userAgent string) (*services.LoginResult, error)
	ResendStepUp(ctx context.Context, email string) (string, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	tokens   *auth.TokenManager
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, tokens *auth.TokenManager, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		tokens:   tokens,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// StepUpVerifyRequest represents the request body for completing a step-up
// challenge
type StepUpVerifyRequest struct {
	Email     string `json:"email" validate:"required,email"`
	SessionID string `json:"session_id" validate:"required,uuid"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
}

// StepUpResendRequest represents the request body for re-issuing a step-up
// code
type StepUpResendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// LoginResponse represents a completed login
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// StepUpResponse tells the client a verification code was sent
type StepUpResponse struct {
	StepUpRequired bool   `json:"step_up_required"`
	SessionID      string `json:"session_id"`
	Message        string `json:"message"`
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if result.StepUpRequired {
		writeJSON(w, http.StatusAccepted, StepUpResponse{
			StepUpRequired: true,
			SessionID:      result.StepUpSessionID,
			Message:        "A verification code has been sent to your email address.",
		})
		return
	}

	h.writeLoginResponse(w, result)
}

// VerifyStepUp completes a pending step-up challenge
// @Summary Verify step-up code
// @Accept json
// @Param request body StepUpVerifyRequest true "Step-up verification request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/step-up/verify [post]
func (h *AuthHandler) VerifyStepUp(w http.ResponseWriter, r *http.Request) {
	var req StepUpVerifyRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.VerifyStepUp(r.Context(), req.Email, req.SessionID, req.Code, ipAddress, userAgent)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	h.writeLoginResponse(w, result)
}

// ResendStepUp issues a fresh step-up code
// @Summary Resend step-up code
// @Accept json
// @Param request body StepUpResendRequest true "Step-up resend request"
// @Produce json
// @Success 202 {object} StepUpResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/step-up/resend [post]
func (h *AuthHandler) ResendStepUp(w http.ResponseWriter, r *http.Request) {
	var req StepUpResendRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sessionID, err := h.service.ResendStepUp(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, StepUpResponse{
		StepUpRequired: true,
		SessionID:      sessionID,
		Message:        "A verification code has been sent to your email address.",
	})
}

func (h *AuthHandler) writeLoginResponse(w http.ResponseWriter, result *services.LoginResult) {
	token, err := h.tokens.GenerateAccessToken(result.User)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
	})
}

// writeAuthError maps service outcomes to HTTP responses. Rejections that
// carry a retry horizon become 429s with a Retry-After header; everything
// about account existence or state collapses into a generic 401.
func writeAuthError(w http.ResponseWriter, err error) {
	var locked *models.AccountLockedError
	var rateLimited *models.RateLimitedError
	var verifyLocked *models.VerificationLockedError
	var verifyFailed *models.VerificationFailedError

	switch {
	case errors.As(err, &locked):
		pkghttp.WriteRetryAfter(w, http.StatusTooManyRequests, "account_locked",
			"Too many failed login attempts. Please try again later.", locked.RetryAfter)
	case errors.As(err, &rateLimited):
		pkghttp.WriteRetryAfter(w, http.StatusTooManyRequests, "rate_limit_exceeded",
			"Too many requests. Please try again later.", rateLimited.RetryAfter)
	case errors.As(err, &verifyLocked):
		pkghttp.WriteRetryAfter(w, http.StatusTooManyRequests, "verification_locked",
			"Too many incorrect codes. Please try again later.", verifyLocked.RetryAfter)
	case errors.As(err, &verifyFailed):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "Incorrect verification code.")
	case errors.Is(err, models.ErrSessionInvalidOrExpired):
		pkghttp.WriteError(w, http.StatusUnauthorized, "session_invalid",
			"Verification session is invalid or has expired. Request a new code.")
	case errors.Is(err, models.ErrUnauthorized),
		errors.Is(err, models.ErrAccountDisabled):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
