package user

import (
	"context"
	"time"

	"prediction-platform/internal/logger"

	"go.uber.org/zap"
)

const tokenRetention = 24 * time.Hour

// StartTokenCleanupJob purges expired and revoked refresh tokens every
// interval until ctx is cancelled.
func (s *Service) StartTokenCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Token cleanup job started",
		zap.Duration("interval", interval),
	)

	s.cleanupExpiredTokens(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Token cleanup job stopped")
			return
		case <-ticker.C:
			s.cleanupExpiredTokens(ctx)
		}
	}
}

func (s *Service) cleanupExpiredTokens(ctx context.Context) {
	if err := s.refreshTokenRepo.DeleteExpired(ctx, tokenRetention); err != nil {
		logger.Error("Failed to delete expired tokens", zap.Error(err))
		return
	}

	logger.Debug("Expired tokens cleaned up",
		zap.Duration("older_than", tokenRetention),
	)
}
