package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmarchuk/rentd/internal/auth"
	"github.com/dmarchuk/rentd/internal/background"
	"github.com/dmarchuk/rentd/internal/config"
	"github.com/dmarchuk/rentd/internal/database"
	"github.com/dmarchuk/rentd/internal/handlers"
	middlewareCustom "github.com/dmarchuk/rentd/internal/middleware"
	"github.com/dmarchuk/rentd/internal/models"
	"github.com/dmarchuk/rentd/internal/repositories"
	"github.com/dmarchuk/rentd/internal/routes"
	"github.com/dmarchuk/rentd/internal/services"
	pkgauth "github.com/dmarchuk/rentd/pkg/auth"
	pkghttp "github.com/dmarchuk/rentd/pkg/http"
	pkglogger "github.com/dmarchuk/rentd/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)

	// Token manager for the HTTP surface. The engine itself never sees a
	// token.
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	auditLogger := pkglogger.NewAuditLogger(logger)
	notifier := services.NewAuditNotifier(auditLogger)

	// Mitigation components
	throttle := auth.NewDelayThrottle(auth.ThrottleConfig{
		BaseDelay: cfg.Security.DelayBase,
		MaxDelay:  cfg.Security.DelayMax,
		IdleTTL:   cfg.Security.ThrottleIdleTTL,
	})

	blacklist := services.NewBlacklistService(attemptRepo, notifier, services.BlacklistConfig{
		Window:      cfg.Security.BlacklistWindow,
		Threshold:   cfg.Security.BlacklistThreshold,
		BanDuration: cfg.Security.BanDuration,
	}, logger)

	guard := services.NewAccountGuard(userRepo, notifier, services.AccountGuardConfig{
		SoftLockThreshold: cfg.Security.SoftLockThreshold,
		HardLockThreshold: cfg.Security.HardLockThreshold,
		HardLockDuration:  cfg.Security.HardLockDuration,
	}, logger)

	emailService, err := services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	verificationService := services.NewVerificationService(services.VerificationConfig{
		CodeExpiry:            cfg.Security.CodeExpiry,
		MaxAttempts:           cfg.Security.MaxVerifyAttempts,
		LockoutDuration:       cfg.Security.VerifyLockoutDuration,
		IssuanceWindow:        cfg.Security.IssuanceWindow,
		MaxIssuancesPerWindow: cfg.Security.MaxIssuancesPerWindow,
	}, emailService, logger)

	authService := services.NewAuthService(
		userRepo, attemptRepo, throttle, blacklist, guard, verificationService,
		cfg.Security.AttemptRetention, logger, auditLogger,
	)

	deleteService := services.NewPrivilegedDeleteService(verificationService, userRepo, logger, auditLogger)
	deleteService.RegisterDeleter(services.EntityUser, userRepo)
	for _, entity := range []struct{ name, table string }{
		{services.EntityBuilding, "buildings"},
		{services.EntityTenant, "tenants"},
	} {
		port, err := repositories.NewRecordRepository(db, entity.table)
		if err != nil {
			logger.Error("failed to initialize deletion port", slog.Any("error", err))
			os.Exit(1)
		}
		deleteService.RegisterDeleter(entity.name, port)
	}

	// Bootstrap first admin user if configured
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(bootCtx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	bootCancel()

	// Handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, tokenManager, ipConfig)
	adminHandler := handlers.NewAdminHandler(deleteService, blacklist, attemptRepo, userRepo)

	// Router
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, adminHandler, tokenManager, userRepo, middlewareCustom.RateLimitConfig{
		Requests: cfg.Security.RateLimitThreshold,
		Window:   cfg.Security.RateLimitWindow,
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Ledger retention sweep
	cleanupManager := background.NewCleanupManager(attemptRepo, logger, cfg.Security.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and
// ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         models.RoleAdmin,
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
