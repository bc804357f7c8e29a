package user

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	domainUser "prediction-platform/internal/domain/user"
	"prediction-platform/internal/logger"
	appErrors "prediction-platform/pkg/errors"
	"prediction-platform/pkg/utils"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MaxAvatarSize = 5 * 1024 * 1024

	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	defaultListLimit        = 20
	maxListLimit            = 50
	searchLimit             = 20
	minSearchLength         = 2
)

var allowedAvatarTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var (
	ErrAvatarTooLarge  = appErrors.NewValidationError("File too large. Maximum size is 5MB")
	ErrAvatarType      = appErrors.NewValidationError("Invalid file type. Only JPEG, PNG, GIF and WebP images are allowed")
	ErrSearchTooShort  = appErrors.NewValidationError(fmt.Sprintf("Search query must be at least %d characters", minSearchLength))
	ErrStorageDisabled = appErrors.NewServerError("File storage is not configured", nil)
)

func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*ProfileResponse, error) {
	p, err := s.userRepo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, domainUser.ErrUserNotFound) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, appErrors.NewServerError("Failed to load profile", err)
	}
	return ToProfileResponse(p), nil
}

// PublicProfile looks a user up by username and includes their achievements.
func (s *Service) PublicProfile(ctx context.Context, username string) (*ProfileResponse, error) {
	p, err := s.userRepo.GetPublicProfile(ctx, username)
	if err != nil {
		if errors.Is(err, domainUser.ErrUserNotFound) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, appErrors.NewServerError("Failed to load profile", err)
	}

	resp := ToProfileResponse(p)
	achievements, err := s.achievementRepo.ListByUser(ctx, p.ID)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to load achievements", err)
	}
	resp.Achievements = toAchievementResponses(achievements)
	return resp, nil
}

// UpdateProfile applies the allow-listed fields of req to target. Only the
// user themselves or an admin may do so.
func (s *Service) UpdateProfile(ctx context.Context, actor Actor, target uuid.UUID, req *UpdateProfileRequest) (*UserResponse, error) {
	if actor.ID != target && !actor.IsAdmin() {
		return nil, appErrors.ErrInsufficientPermissions
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	u, err := s.getUser(ctx, target)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.FirstName != nil {
		fields["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		fields["last_name"] = *req.LastName
	}
	if req.Bio != nil {
		fields["bio"] = *req.Bio
	}
	if req.AvatarURL != nil {
		fields["avatar_url"] = *req.AvatarURL
	}
	if req.Phone != nil {
		fields["phone"] = *req.Phone
	}

	if req.Username != nil && (u.Username == nil || !strings.EqualFold(*u.Username, *req.Username)) {
		taken, err := s.userRepo.UsernameExists(ctx, *req.Username, &u.ID)
		if err != nil {
			return nil, appErrors.NewServerError("Failed to check username", err)
		}
		if taken {
			return nil, appErrors.ErrUsernameTaken
		}
		fields["username"] = *req.Username
	}

	var verifyToken string
	if req.Email != nil && !strings.EqualFold(u.Email, *req.Email) {
		taken, err := s.userRepo.EmailExists(ctx, *req.Email, &u.ID)
		if err != nil {
			return nil, appErrors.NewServerError("Failed to check email", err)
		}
		if taken {
			return nil, appErrors.ErrEmailTaken
		}

		verifyToken, err = utils.GenerateSecureToken()
		if err != nil {
			return nil, appErrors.NewServerError("Failed to update profile", err)
		}
		fields["email"] = *req.Email
		fields["status"] = domainUser.StatusPending
		fields["reset_token"] = verifyToken
		fields["reset_token_purpose"] = string(domainUser.TokenPurposeVerify)
		fields["reset_token_expires"] = s.now().Add(s.verifyTTL())
	}

	if len(fields) == 0 {
		return nil, appErrors.ErrNoFieldsToUpdate
	}

	if err := s.userRepo.UpdateFields(ctx, u.ID, fields); err != nil {
		switch {
		case errors.Is(err, domainUser.ErrEmailTaken):
			return nil, appErrors.ErrEmailTaken
		case errors.Is(err, domainUser.ErrUsernameTaken):
			return nil, appErrors.ErrUsernameTaken
		case errors.Is(err, domainUser.ErrUserNotFound):
			return nil, appErrors.ErrUserNotFound
		}
		return nil, appErrors.NewServerError("Failed to update profile", err)
	}

	updated, err := s.getUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if verifyToken != "" {
		s.sendVerification(ctx, updated, verifyToken)
	}

	logger.Info("Profile updated",
		zap.String("user_id", u.ID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.Int("fields", len(fields)),
		zap.Bool("email_changed", verifyToken != ""),
		zap.String("event", "profile_updated"),
	)
	return ToUserResponse(updated), nil
}

// UploadAvatar stores an image for userID. The file is written before the
// database update and removed again if that update fails.
func (s *Service) UploadAvatar(ctx context.Context, userID uuid.UUID, size int64, r io.Reader) (*AvatarResponse, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}
	if size > MaxAvatarSize {
		return nil, ErrAvatarTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxAvatarSize+1))
	if err != nil {
		return nil, appErrors.NewServerError("Failed to read upload", err)
	}
	if len(data) > MaxAvatarSize {
		return nil, ErrAvatarTooLarge
	}
	if len(data) == 0 {
		return nil, appErrors.NewValidationError("No file uploaded")
	}

	mtype := mimetype.Detect(data)
	ext, ok := allowedAvatarTypes[mtype.String()]
	if !ok {
		logger.Warn("Avatar upload rejected",
			zap.String("user_id", userID.String()),
			zap.String("mime", mtype.String()),
			zap.String("event", "avatar_rejected_type"),
		)
		return nil, ErrAvatarType
	}

	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("avatar_%s_%d%s", userID, s.now().Unix(), ext)
	avatarURL, err := s.storage.Save(ctx, key, bytes.NewReader(data), int64(len(data)), mtype.String())
	if err != nil {
		return nil, appErrors.NewServerError("Failed to save avatar", err)
	}

	if err := s.userRepo.UpdateFields(ctx, userID, map[string]interface{}{"avatar_url": avatarURL}); err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			logger.Error("Failed to remove orphaned avatar",
				zap.String("key", key),
				zap.Error(delErr),
			)
		}
		return nil, appErrors.NewServerError("Failed to update avatar", err)
	}

	if u.AvatarURL != nil {
		if oldKey, ok := s.storage.KeyFromURL(*u.AvatarURL); ok && oldKey != key {
			if err := s.storage.Delete(ctx, oldKey); err != nil {
				logger.Warn("Failed to remove previous avatar",
					zap.String("key", oldKey),
					zap.Error(err),
				)
			}
		}
	}

	logger.Info("Avatar uploaded",
		zap.String("user_id", userID.String()),
		zap.String("key", key),
		zap.Int("size", len(data)),
		zap.String("event", "avatar_uploaded"),
	)
	return &AvatarResponse{AvatarURL: avatarURL}, nil
}

func (s *Service) CheckUsername(ctx context.Context, username string) (*UsernameAvailability, error) {
	if username == "" {
		return nil, appErrors.NewValidationError("Username parameter required",
			appErrors.FieldError{Field: "username", Message: "username is required"})
	}
	exists, err := s.userRepo.UsernameExists(ctx, username, nil)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to check username", err)
	}
	return &UsernameAvailability{Username: username, Available: !exists}, nil
}

func (s *Service) CheckEmail(ctx context.Context, email string) (*EmailAvailability, error) {
	if email == "" {
		return nil, appErrors.NewValidationError("Email parameter required",
			appErrors.FieldError{Field: "email", Message: "email is required"})
	}
	exists, err := s.userRepo.EmailExists(ctx, email, nil)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to check email", err)
	}
	return &EmailAvailability{Email: email, Available: !exists}, nil
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntryResponse, error) {
	limit = clamp(limit, defaultLeaderboardLimit, maxLeaderboardLimit)

	entries, err := s.userRepo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to load leaderboard", err)
	}

	out := make([]*LeaderboardEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = &LeaderboardEntryResponse{
			Rank:      e.Rank,
			UserID:    e.UserID,
			Username:  e.Username,
			FirstName: e.FirstName,
			LastName:  e.LastName,
			AvatarURL: e.AvatarURL,
			Points:    e.Points,
		}
	}
	return out, nil
}

func (s *Service) Achievements(ctx context.Context, userID uuid.UUID) ([]*AchievementResponse, error) {
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	achievements, err := s.achievementRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to load achievements", err)
	}
	return toAchievementResponses(achievements), nil
}

func (s *Service) ListUsers(ctx context.Context, page, limit int) (*UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	limit = clamp(limit, defaultListLimit, maxListLimit)

	profiles, err := s.userRepo.ListProfiles(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to list users", err)
	}
	total, err := s.userRepo.CountActive(ctx)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to list users", err)
	}

	return &UserListResponse{
		Users: toProfileResponses(profiles),
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]*ProfileResponse, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchLength {
		return nil, ErrSearchTooShort
	}
	profiles, err := s.userRepo.SearchProfiles(ctx, query, searchLimit)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to search users", err)
	}
	return toProfileResponses(profiles), nil
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
