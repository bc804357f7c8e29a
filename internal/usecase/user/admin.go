package user

import (
	"context"
	"errors"
	"strings"

	domainUser "prediction-platform/internal/domain/user"
	"prediction-platform/internal/events"
	"prediction-platform/internal/logger"
	appErrors "prediction-platform/pkg/errors"
	"prediction-platform/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSelfModeration = appErrors.NewValidationError("Administrators cannot change their own account state")

func (s *Service) ListAllUsers(ctx context.Context) ([]*UserResponse, error) {
	users, err := s.userRepo.GetAll(ctx)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to list users", err)
	}

	out := make([]*UserResponse, len(users))
	for i, u := range users {
		out[i] = ToUserResponse(u)
	}
	return out, nil
}

func (s *Service) BanUser(ctx context.Context, actor Actor, target uuid.UUID, req *BanRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}
	var reason *string
	if r := strings.TrimSpace(req.Reason); r != "" {
		reason = &r
	}

	err := s.moderate(ctx, actor, target, "user_banned", map[string]interface{}{
		"is_banned":  true,
		"ban_reason": reason,
	}, true)
	if err != nil {
		return err
	}

	data := map[string]string{}
	if reason != nil {
		data["reason"] = *reason
	}
	s.publish(ctx, events.UserBanned, target, data)
	return nil
}

func (s *Service) UnbanUser(ctx context.Context, actor Actor, target uuid.UUID) error {
	err := s.moderate(ctx, actor, target, "user_unbanned", map[string]interface{}{
		"is_banned":  false,
		"ban_reason": nil,
	}, false)
	if err != nil {
		return err
	}
	s.publish(ctx, events.UserUnbanned, target, nil)
	return nil
}

func (s *Service) DeactivateUser(ctx context.Context, actor Actor, target uuid.UUID) error {
	return s.moderate(ctx, actor, target, "user_deactivated", map[string]interface{}{
		"is_active": false,
	}, true)
}

func (s *Service) ActivateUser(ctx context.Context, actor Actor, target uuid.UUID) error {
	return s.moderate(ctx, actor, target, "user_activated", map[string]interface{}{
		"is_active": true,
	}, false)
}

// DeleteIdentity deactivates the local account and removes it from the
// hosted identity provider. Local rows are never deleted.
func (s *Service) DeleteIdentity(ctx context.Context, actor Actor, target uuid.UUID) error {
	if err := s.DeactivateUser(ctx, actor, target); err != nil {
		return err
	}
	if s.identityAdmin == nil {
		logger.Info("No identity provider admin configured, account only deactivated",
			zap.String("user_id", target.String()),
		)
		return nil
	}
	if err := s.identityAdmin.DeleteUser(ctx, target.String()); err != nil {
		return appErrors.NewServerError("Failed to delete identity", err)
	}

	logger.Info("Identity deleted from provider",
		zap.String("user_id", target.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("event", "identity_deleted"),
	)
	return nil
}

func (s *Service) moderate(ctx context.Context, actor Actor, target uuid.UUID, event string, fields map[string]interface{}, revoke bool) error {
	if !actor.IsAdmin() {
		return appErrors.ErrInsufficientPermissions
	}
	if actor.ID == target {
		return ErrSelfModeration
	}

	if err := s.userRepo.UpdateFields(ctx, target, fields); err != nil {
		if errors.Is(err, domainUser.ErrUserNotFound) {
			return appErrors.ErrUserNotFound
		}
		return appErrors.NewServerError("Failed to update user", err)
	}

	if revoke {
		if err := s.refreshTokenRepo.RevokeAllUserTokens(ctx, target); err != nil {
			logger.Error("Failed to revoke tokens",
				zap.String("user_id", target.String()),
				zap.Error(err),
			)
		}
	}

	logger.Info("User account state changed",
		zap.String("user_id", target.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("event", event),
	)
	return nil
}
