package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/dmarchuk/rentd/internal/auth"
	"github.com/dmarchuk/rentd/internal/handlers"
	"github.com/dmarchuk/rentd/internal/middleware"
	"github.com/dmarchuk/rentd/internal/repositories"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	userRepo *repositories.UserRepository,
	rateLimit middleware.RateLimitConfig,
) {
	// Public routes. The blanket per-IP limit sits in front of the engine's
	// own throttling.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimit))
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/step-up/verify", authHandler.VerifyStepUp)
		r.Post("/auth/step-up/resend", authHandler.ResendStepUp)
	})

	// Admin routes
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))
		r.Use(auth.RequireRole(userRepo, "admin"))

		r.Post("/admin/deletions", adminHandler.InitiateDeletion)
		r.Post("/admin/deletions/confirm", adminHandler.ConfirmDeletion)
		r.Delete("/admin/blacklist/{ip}", adminHandler.RemoveBan)
		r.Get("/admin/security/overview", adminHandler.SecurityOverview)
	})
}
