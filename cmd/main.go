package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prediction-platform/internal/config"
	"prediction-platform/internal/events"
	"prediction-platform/internal/identity"
	"prediction-platform/internal/identity/supabase"
	"prediction-platform/internal/infrastructure/database/postgres"
	"prediction-platform/internal/logger"
	"prediction-platform/internal/mailer"
	"prediction-platform/internal/routes"
	"prediction-platform/internal/storage"
	"prediction-platform/internal/usecase/user"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	env := cfg.Server.Environment
	if env == "" {
		env = "development"
	}
	if err := logger.Init(env); err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("environment", env),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	avatars, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize avatar storage", zap.Error(err))
	}

	publisher, err := events.New(&cfg.MQTT)
	if err != nil {
		// Events are best effort; the API works without a broker.
		logger.Warn("Event publisher unavailable, continuing without events", zap.Error(err))
		publisher = events.Noop{}
	}
	defer publisher.Close()

	deps := user.Deps{
		Users:         postgres.NewUserRepository(db),
		Achievements:  postgres.NewAchievementRepository(db),
		RefreshTokens: postgres.NewRefreshTokenRepository(db),
		Storage:       avatars,
		Mailer:        mailer.New(&cfg.SMTP),
		Events:        publisher,
		Config:        cfg,
	}
	if cfg.Supabase.URL != "" && cfg.Supabase.ServiceKey != "" {
		deps.IdentityAdmin = supabase.NewAdminClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey, identity.DefaultTimeout)
		logger.Info("Hosted identity provider admin enabled",
			zap.String("url", cfg.Supabase.URL),
		)
	}
	userService := user.NewService(deps)

	go userService.StartTokenCleanupJob(ctx, time.Hour)

	router := routes.SetupRoutes(ctx, cfg, db, userService)

	host := cfg.Server.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	addr := net.JoinHostPort(host, port)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			zap.String("address", addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown Server ...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", zap.Error(err))
	}

	logger.Info("Server exited properly")
}
