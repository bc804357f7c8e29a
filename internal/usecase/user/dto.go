package user

import (
	"time"

	domainUser "prediction-platform/internal/domain/user"

	"github.com/google/uuid"
)

type SignupRequest struct {
	Email     string  `json:"email" validate:"required,email,max=255"`
	Password  string  `json:"password" validate:"required,password"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Username  string  `json:"username" validate:"omitempty,username"`
	Phone     *string `json:"phone" validate:"omitempty,phone"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UpdateProfileRequest only carries the fields a user may change. Nil means
// "leave as is".
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	Bio       *string `json:"bio" validate:"omitempty,max=1000"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=500"`
	Phone     *string `json:"phone" validate:"omitempty,phone"`
	Username  *string `json:"username" validate:"omitempty,username"`
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
}

type BanRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == domainUser.RoleAdmin
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Username  *string   `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Bio       string    `json:"bio"`
	AvatarURL *string   `json:"avatar_url"`
	Phone     *string   `json:"phone"`
	Points    int       `json:"points"`
	Status    int       `json:"status"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	IsBanned  bool      `json:"is_banned"`
	BanReason *string   `json:"ban_reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AuthResponse struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresAt    int64         `json:"expires_at"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

type ProfileResponse struct {
	ID                uuid.UUID              `json:"id"`
	Username          *string                `json:"username"`
	FirstName         string                 `json:"first_name"`
	LastName          string                 `json:"last_name"`
	FullName          string                 `json:"full_name"`
	Bio               string                 `json:"bio"`
	AvatarURL         *string                `json:"avatar_url"`
	Points            int                    `json:"points"`
	Status            int                    `json:"status"`
	AchievementsCount int                    `json:"achievements_count"`
	Achievements      []*AchievementResponse `json:"achievements,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

type AchievementResponse struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Points      int       `json:"points"`
	AwardedAt   time.Time `json:"awarded_at"`
}

type LeaderboardEntryResponse struct {
	Rank      int       `json:"rank"`
	UserID    uuid.UUID `json:"user_id"`
	Username  *string   `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	AvatarURL *string   `json:"avatar_url"`
	Points    int       `json:"points"`
}

type UserListResponse struct {
	Users []*ProfileResponse `json:"users"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
	Total int64              `json:"total"`
	Pages int                `json:"pages"`
}

type UsernameAvailability struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

type EmailAvailability struct {
	Email     string `json:"email"`
	Available bool   `json:"available"`
}

type AvatarResponse struct {
	AvatarURL string `json:"avatar_url"`
}

func ToUserResponse(u *domainUser.User) *UserResponse {
	if u == nil {
		return nil
	}
	resp := &UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
		Phone:     u.Phone,
		Points:    u.Points,
		Status:    u.Status,
		Role:      u.Role,
		IsActive:  u.IsActive,
		IsBanned:  u.IsBanned,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.IsBanned {
		resp.BanReason = u.BanReason
	}
	return resp
}

func ToProfileResponse(p *domainUser.Profile) *ProfileResponse {
	if p == nil {
		return nil
	}
	return &ProfileResponse{
		ID:                p.ID,
		Username:          p.Username,
		FirstName:         p.FirstName,
		LastName:          p.LastName,
		FullName:          p.FullName,
		Bio:               p.Bio,
		AvatarURL:         p.AvatarURL,
		Points:            p.Points,
		Status:            p.Status,
		AchievementsCount: p.AchievementsCount,
		CreatedAt:         p.CreatedAt,
	}
}

func toProfileResponses(profiles []*domainUser.Profile) []*ProfileResponse {
	out := make([]*ProfileResponse, len(profiles))
	for i, p := range profiles {
		out[i] = ToProfileResponse(p)
	}
	return out
}

func toAchievementResponses(achievements []*domainUser.Achievement) []*AchievementResponse {
	out := make([]*AchievementResponse, len(achievements))
	for i, a := range achievements {
		out[i] = &AchievementResponse{
			ID:          a.ID,
			Code:        a.Code,
			Name:        a.Name,
			Description: a.Description,
			Icon:        a.Icon,
			Points:      a.Points,
			AwardedAt:   a.AwardedAt,
		}
	}
	return out
}
