package user

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"prediction-platform/internal/config"
	domainUser "prediction-platform/internal/domain/user"
	"prediction-platform/internal/events"
	"prediction-platform/internal/logger"
	"prediction-platform/internal/mailer"
	"prediction-platform/internal/storage"
	appErrors "prediction-platform/pkg/errors"
	"prediction-platform/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	AchievementWelcome  = "welcome"
	AchievementVerified = "verified"

	defaultResetTTL  = time.Hour
	defaultVerifyTTL = 24 * time.Hour
)

// IdentityAdmin removes accounts from the hosted identity provider.
type IdentityAdmin interface {
	DeleteUser(ctx context.Context, userID string) error
}

// Deps groups the collaborators of Service. Storage, Mailer, Events and
// IdentityAdmin are optional.
type Deps struct {
	Users         domainUser.Repository
	Achievements  domainUser.AchievementRepository
	RefreshTokens domainUser.RefreshTokenRepository
	Storage       storage.Storage
	Mailer        mailer.Mailer
	Events        events.Publisher
	IdentityAdmin IdentityAdmin
	Config        *config.Config
}

// Service implements user use cases
type Service struct {
	userRepo         domainUser.Repository
	achievementRepo  domainUser.AchievementRepository
	refreshTokenRepo domainUser.RefreshTokenRepository
	storage          storage.Storage
	mailer           mailer.Mailer
	events           events.Publisher
	identityAdmin    IdentityAdmin
	config           *config.Config
	now              func() time.Time
}

func NewService(deps Deps) *Service {
	s := &Service{
		userRepo:         deps.Users,
		achievementRepo:  deps.Achievements,
		refreshTokenRepo: deps.RefreshTokens,
		storage:          deps.Storage,
		mailer:           deps.Mailer,
		events:           deps.Events,
		identityAdmin:    deps.IdentityAdmin,
		config:           deps.Config,
		now:              time.Now,
	}
	if s.mailer == nil {
		s.mailer = mailer.LogMailer{}
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	return s
}

func (s *Service) Signup(ctx context.Context, req *SignupRequest) (*UserResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	exists, err := s.userRepo.EmailExists(ctx, req.Email, nil)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to check email", err)
	}
	if exists {
		logger.Warn("Signup attempt with existing email",
			zap.String("email", req.Email),
			zap.String("event", "signup_failed_duplicate_email"),
		)
		return nil, appErrors.ErrEmailTaken
	}

	username := req.Username
	if username != "" {
		taken, err := s.userRepo.UsernameExists(ctx, username, nil)
		if err != nil {
			return nil, appErrors.NewServerError("Failed to check username", err)
		}
		if taken {
			return nil, appErrors.ErrUsernameTaken
		}
	} else {
		username, err = s.deriveUsername(ctx, req.Email)
		if err != nil {
			return nil, appErrors.NewServerError("Failed to derive username", err)
		}
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to create account", err)
	}

	now := s.now()
	u := &domainUser.User{
		Email:          req.Email,
		PasswordHashed: hashedPassword,
		Username:       &username,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		Points:         domainUser.StartingPoints,
		Status:         domainUser.StatusPending,
		Role:           domainUser.RoleUser,
		IsActive:       true,
	}
	if s.config.Auth.RegistrationActive() {
		u.Status = domainUser.StatusVerified
	}
	if s.config.Auth.IsAdminEmail(req.Email) {
		u.Role = domainUser.RoleAdmin
	}

	var verifyToken string
	if u.Status == domainUser.StatusPending {
		verifyToken, err = utils.GenerateSecureToken()
		if err != nil {
			return nil, appErrors.NewServerError("Failed to create account", err)
		}
		purpose := domainUser.TokenPurposeVerify
		expires := now.Add(s.verifyTTL())
		u.ResetToken = &verifyToken
		u.ResetTokenPurpose = &purpose
		u.ResetTokenExpires = &expires
	}

	if err := s.userRepo.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, domainUser.ErrEmailTaken):
			return nil, appErrors.ErrEmailTaken
		case errors.Is(err, domainUser.ErrUsernameTaken):
			return nil, appErrors.ErrUsernameTaken
		}
		return nil, appErrors.NewServerError("Failed to create account", err)
	}

	s.award(ctx, u.ID, AchievementWelcome)
	if verifyToken != "" {
		s.sendVerification(ctx, u, verifyToken)
	}
	s.publish(ctx, events.UserRegistered, u.ID, map[string]string{"email": u.Email})

	logger.Info("User registered successfully",
		zap.String("user_id", u.ID.String()),
		zap.String("email", u.Email),
		zap.String("username", username),
		zap.Int("status", u.Status),
		zap.String("role", u.Role),
		zap.String("event", "user_registered"),
	)

	return ToUserResponse(u), nil
}

// deriveUsername builds a username from the email local part, appending a
// number until it is free.
func (s *Service) deriveUsername(ctx context.Context, email string) (string, error) {
	local := strings.ToLower(strings.SplitN(email, "@", 2)[0])

	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '+':
			b.WriteRune('_')
		}
	}
	base := b.String()
	for len(base) < 3 {
		base += "_"
	}
	if len(base) > 24 {
		base = base[:24]
	}

	candidate := base
	for i := 1; i < 10000; i++ {
		taken, err := s.userRepo.UsernameExists(ctx, candidate, nil)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
	return base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:5], nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domainUser.ErrUserNotFound) {
			logger.Warn("Login attempt with non-existent email",
				zap.String("email", req.Email),
				zap.String("event", "login_failed_user_not_found"),
			)
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.NewServerError("Login failed", err)
	}

	if !utils.CheckPassword(u.PasswordHashed, req.Password) {
		logger.Warn("Login attempt with invalid password",
			zap.String("user_id", u.ID.String()),
			zap.String("event", "login_failed_invalid_password"),
		)
		return nil, appErrors.ErrInvalidCredentials
	}

	if err := checkAccountState(u); err != nil {
		logger.Warn("Login attempt for restricted account",
			zap.String("user_id", u.ID.String()),
			zap.Bool("is_active", u.IsActive),
			zap.Bool("is_banned", u.IsBanned),
			zap.String("event", "login_failed_account_state"),
		)
		return nil, err
	}

	tokens, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}

	logger.Info("User logged in successfully",
		zap.String("user_id", u.ID.String()),
		zap.String("role", u.Role),
		zap.String("event", "login_success"),
	)

	return &AuthResponse{
		User:         ToUserResponse(u),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}, nil
}

func checkAccountState(u *domainUser.User) error {
	if u.IsBanned {
		reason := ""
		if u.BanReason != nil {
			reason = *u.BanReason
		}
		return appErrors.NewBannedError(reason)
	}
	if !u.IsActive {
		return appErrors.ErrUserInactive
	}
	return nil
}

func (s *Service) issueTokens(ctx context.Context, u *domainUser.User) (*TokenResponse, error) {
	pair, err := utils.GenerateTokenPair(
		u.ID,
		u.Email,
		u.Role,
		s.config.JWT.Secret,
		s.config.JWT.ExpiryHours,
		s.config.JWT.RefreshExpiryHours,
	)
	if err != nil {
		return nil, appErrors.NewServerError("Failed to generate tokens", err)
	}

	refreshToken := &domainUser.RefreshToken{
		UserID:    u.ID,
		Token:     pair.RefreshToken,
		ExpiresAt: s.now().Add(time.Duration(s.config.JWT.RefreshExpiryHours) * time.Hour),
	}
	if err := s.refreshTokenRepo.Create(ctx, refreshToken); err != nil {
		return nil, appErrors.NewServerError("Failed to store refresh token", err)
	}

	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

func (s *Service) VerifyEmail(ctx context.Context, req *VerifyEmailRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}

	u, err := s.userRepo.GetByToken(ctx, req.Token, domainUser.TokenPurposeVerify)
	if err != nil {
		if errors.Is(err, domainUser.ErrUserNotFound) {
			logger.Warn("Email verification with unknown token",
				zap.String("event", "email_verification_failed_invalid_token"),
			)
			return appErrors.ErrVerifyTokenInvalid
		}
		return appErrors.NewServerError("Verification failed", err)
	}
	if !u.TokenValid(domainUser.TokenPurposeVerify, s.now()) {
		return appErrors.ErrVerifyTokenInvalid
	}

	err = s.userRepo.ConsumeToken(ctx, u.ID, req.Token, map[string]interface{}{
		"status": domainUser.StatusVerified,
	})
	if err != nil {
		if errors.Is(err, domainUser.ErrTokenInvalid) {
			return appErrors.ErrVerifyTokenInvalid
		}
		return appErrors.NewServerError("Verification failed", err)
	}

	s.award(ctx, u.ID, AchievementVerified)
	s.publish(ctx, events.UserEmailVerified, u.ID, nil)

	logger.Info("Email verified",
		zap.String("user_id", u.ID.String()),
		zap.String("event", "email_verified"),
	)
	return nil
}

// ForgotPassword never reports whether the email is registered. Failures
// after the lookup are logged only.
func (s *Service) ForgotPassword(ctx context.Context, req *ForgotPasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}

	u, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domainUser.ErrUserNotFound) {
			logger.Info("Password reset requested for non-existent email",
				zap.String("email", req.Email),
				zap.String("event", "password_reset_requested_non_existent_email"),
			)
			return nil
		}
		return appErrors.NewServerError("Failed to process request", err)
	}

	token, err := utils.GenerateSecureToken()
	if err != nil {
		logger.Error("Failed to generate reset token", zap.Error(err))
		return nil
	}
	expiresAt := s.now().Add(s.resetTTL())
	if err := s.userRepo.SetToken(ctx, u.ID, token, domainUser.TokenPurposeReset, expiresAt); err != nil {
		logger.Error("Failed to store reset token",
			zap.String("user_id", u.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	link := s.frontendLink("/reset-password", token)
	if err := s.mailer.SendPasswordReset(ctx, u.Email, u.FirstName, link); err != nil {
		logger.Error("Failed to send password reset email",
			zap.String("user_id", u.ID.String()),
			zap.Error(err),
		)
	}

	logger.Info("Password reset token generated",
		zap.String("user_id", u.ID.String()),
		zap.Time("expires_at", expiresAt),
		zap.String("event", "password_reset_token_generated"),
	)
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, req *ResetPasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}

	u, err := s.userRepo.GetByToken(ctx, req.Token, domainUser.TokenPurposeReset)
	if err != nil {
		if errors.Is(err, domainUser.ErrUserNotFound) {
			logger.Warn("Password reset attempt with invalid token",
				zap.String("event", "password_reset_failed_invalid_token"),
			)
			return appErrors.ErrResetTokenInvalid
		}
		return appErrors.NewServerError("Password reset failed", err)
	}
	if !u.TokenValid(domainUser.TokenPurposeReset, s.now()) {
		logger.Warn("Password reset attempt with expired token",
			zap.String("user_id", u.ID.String()),
			zap.String("event", "password_reset_failed_expired_token"),
		)
		return appErrors.ErrResetTokenInvalid
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return appErrors.NewServerError("Password reset failed", err)
	}

	err = s.userRepo.ConsumeToken(ctx, u.ID, req.Token, map[string]interface{}{
		"password": hashedPassword,
	})
	if err != nil {
		if errors.Is(err, domainUser.ErrTokenInvalid) {
			return appErrors.ErrResetTokenInvalid
		}
		return appErrors.NewServerError("Password reset failed", err)
	}

	if err := s.refreshTokenRepo.RevokeAllUserTokens(ctx, u.ID); err != nil {
		logger.Error("Failed to revoke tokens after password reset",
			zap.String("user_id", u.ID.String()),
			zap.Error(err),
		)
	}
	s.publish(ctx, events.UserPasswordReset, u.ID, nil)

	logger.Info("Password reset successfully",
		zap.String("user_id", u.ID.String()),
		zap.String("event", "password_reset_success"),
	)
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, req *ChangePasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}

	u, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}

	if !utils.CheckPassword(u.PasswordHashed, req.CurrentPassword) {
		logger.Warn("Password change attempt with invalid current password",
			zap.String("user_id", u.ID.String()),
			zap.String("event", "password_change_failed_invalid_current_password"),
		)
		return appErrors.ErrCurrentPassword
	}

	hashedPassword, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return appErrors.NewServerError("Failed to change password", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, userID, hashedPassword); err != nil {
		return appErrors.NewServerError("Failed to change password", err)
	}

	logger.Info("Password changed successfully",
		zap.String("user_id", u.ID.String()),
		zap.String("event", "password_change_success"),
	)
	return nil
}

func (s *Service) GetMe(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ToUserResponse(u), nil
}

func (s *Service) RefreshToken(ctx context.Context, req *RefreshRequest) (*TokenResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	claims, err := utils.ValidateTokenOfType(req.RefreshToken, s.config.JWT.Secret, utils.TokenTypeRefresh)
	if err != nil {
		logger.Warn("Token refresh attempt with invalid token",
			zap.String("event", "token_refresh_failed_invalid_token"),
			zap.Error(err),
		)
		return nil, appErrors.ErrInvalidToken
	}

	dbToken, err := s.refreshTokenRepo.GetByToken(ctx, req.RefreshToken)
	if err != nil || dbToken.UserID != claims.UserID {
		logger.Warn("Token refresh attempt with unknown token",
			zap.String("user_id", claims.UserID.String()),
			zap.String("event", "token_refresh_failed_token_not_found"),
		)
		return nil, appErrors.ErrInvalidToken
	}

	u, err := s.getUser(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.ErrInvalidToken
	}
	if err := checkAccountState(u); err != nil {
		return nil, err
	}

	if err := s.refreshTokenRepo.Revoke(ctx, dbToken.ID); err != nil {
		if errors.Is(err, domainUser.ErrTokenNotFound) {
			return nil, appErrors.ErrInvalidToken
		}
		return nil, appErrors.NewServerError("Failed to refresh token", err)
	}

	tokens, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}

	logger.Debug("Token refreshed",
		zap.String("user_id", u.ID.String()),
		zap.String("old_token_id", dbToken.ID.String()),
		zap.String("event", "token_refresh_success"),
	)
	return tokens, nil
}

// Logout revokes refreshToken, or every refresh token of the user when it is
// empty.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	if refreshToken == "" {
		if err := s.refreshTokenRepo.RevokeAllUserTokens(ctx, userID); err != nil {
			return appErrors.NewServerError("Logout failed", err)
		}
		logger.Info("All refresh tokens revoked for user",
			zap.String("user_id", userID.String()),
			zap.String("event", "all_tokens_revoked"),
		)
		return nil
	}

	dbToken, err := s.refreshTokenRepo.GetByToken(ctx, refreshToken)
	if err != nil || dbToken.UserID != userID {
		return appErrors.ErrInvalidToken
	}
	if err := s.refreshTokenRepo.Revoke(ctx, dbToken.ID); err != nil && !errors.Is(err, domainUser.ErrTokenNotFound) {
		return appErrors.NewServerError("Logout failed", err)
	}

	logger.Info("Refresh token revoked",
		zap.String("user_id", userID.String()),
		zap.String("token_id", dbToken.ID.String()),
		zap.String("event", "token_revoked"),
	)
	return nil
}

func (s *Service) getUser(ctx context.Context, userID uuid.UUID) (*domainUser.User, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domainUser.ErrUserNotFound) {
			return nil, appErrors.ErrUserNotFound
		}
		return nil, appErrors.NewServerError("Failed to load user", err)
	}
	return u, nil
}

func (s *Service) sendVerification(ctx context.Context, u *domainUser.User, token string) {
	link := s.frontendLink("/verify-email", token)
	if err := s.mailer.SendVerification(ctx, u.Email, u.FirstName, link); err != nil {
		logger.Error("Failed to send verification email",
			zap.String("user_id", u.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) frontendLink(path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", s.config.App.FrontendURL, path, url.QueryEscape(token))
}

// award is best-effort; a missing achievement never fails the caller.
func (s *Service) award(ctx context.Context, userID uuid.UUID, code string) {
	if s.achievementRepo == nil {
		return
	}
	if err := s.achievementRepo.Award(ctx, userID, code); err != nil {
		logger.Warn("Failed to award achievement",
			zap.String("user_id", userID.String()),
			zap.String("achievement", code),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, t events.Type, userID uuid.UUID, data map[string]string) {
	err := s.events.Publish(ctx, events.Event{
		Type:       t,
		UserID:     userID,
		OccurredAt: s.now().UTC(),
		Data:       data,
	})
	if err != nil {
		logger.Warn("Failed to publish event",
			zap.String("type", string(t)),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) resetTTL() time.Duration {
	if s.config.Auth.ResetTokenTTL > 0 {
		return s.config.Auth.ResetTokenTTL
	}
	return defaultResetTTL
}

func (s *Service) verifyTTL() time.Duration {
	if s.config.Auth.VerificationTokenTTL > 0 {
		return s.config.Auth.VerificationTokenTTL
	}
	return defaultVerifyTTL
}
