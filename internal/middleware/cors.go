package middleware

import (
	"net/http"
	"time"

	"prediction-platform/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows every origin when the list is empty or contains "*".
// Preflight requests are answered with 200.
func CORSMiddleware(cfg *config.CORSConfig) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:              cfg.AllowedMethods,
		AllowHeaders:              cfg.AllowedHeaders,
		ExposeHeaders:             cfg.ExposedHeaders,
		AllowCredentials:          cfg.AllowCredentials,
		MaxAge:                    time.Duration(cfg.MaxAge) * time.Second,
		OptionsResponseStatusCode: http.StatusOK,
	}

	if allowsAnyOrigin(cfg.AllowedOrigins) {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}

	return cors.New(corsConfig)
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
