package routes

import (
	"context"
	"strings"

	"prediction-platform/internal/config"
	"prediction-platform/internal/delivery/http/handler"
	"prediction-platform/internal/logger"
	"prediction-platform/internal/middleware"
	"prediction-platform/internal/usecase/user"

	"github.com/gin-gonic/gin"
)

// SetupRoutes builds the HTTP engine. Background helpers such as the rate
// limiter cleanup stop when ctx is cancelled.
func SetupRoutes(ctx context.Context, cfg *config.Config, db handler.HealthChecker, userService *user.Service) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	generalLimiter := middleware.NewRateLimiter(cfg.RateLimit.GeneralRPS, cfg.RateLimit.GeneralBurst)
	authLimiter := middleware.NewRateLimiter(cfg.RateLimit.AuthRPS, cfg.RateLimit.AuthBurst)
	go generalLimiter.Cleanup(ctx)
	go authLimiter.Cleanup(ctx)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(&cfg.CORS))
	router.Use(middleware.RateLimitMiddleware(generalLimiter))

	router.GET("/health", handler.NewHealthHandler(db).Health)

	if cfg.Storage.Driver == "local" && strings.HasPrefix(cfg.Storage.PublicBaseURL, "/") {
		router.Static(cfg.Storage.PublicBaseURL, cfg.Storage.LocalDir)
	}

	userHandler := handler.NewUserHandler(userService)
	adminHandler := handler.NewAdminHandler(userService)

	auth := middleware.AuthMiddleware(&cfg.JWT)

	api := router.Group("/api")
	{
		userHandler.RegisterRoutes(api, auth, middleware.RateLimitMiddleware(authLimiter))

		admin := api.Group("/admin")
		admin.Use(auth, middleware.AdminOnly(), middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize))
		{
			adminHandler.RegisterRoutes(admin)
		}
	}

	logger.Info("All routes initialized")
	return router
}
