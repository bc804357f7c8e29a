package user

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending  = 0
	StatusVerified = 1

	RoleUser  = "user"
	RoleAdmin = "admin"

	StartingPoints = 100
)

// TokenPurpose tells a verification token apart from a password reset token.
// Both live in the same reset_token column.
type TokenPurpose string

const (
	TokenPurposeVerify TokenPurpose = "verify"
	TokenPurposeReset  TokenPurpose = "reset"
)

// User represents a user entity in the domain
type User struct {
	ID                uuid.UUID
	Email             string
	PasswordHashed    string
	Username          *string
	FirstName         string
	LastName          string
	Bio               string
	AvatarURL         *string
	Phone             *string
	Points            int
	Status            int
	Role              string
	IsActive          bool
	IsBanned          bool
	BanReason         *string
	ResetToken        *string
	ResetTokenPurpose *TokenPurpose
	ResetTokenExpires *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// TokenValid reports whether the stored token matches purpose and has not
// expired at now.
func (u *User) TokenValid(purpose TokenPurpose, now time.Time) bool {
	if u.ResetToken == nil || u.ResetTokenPurpose == nil || *u.ResetTokenPurpose != purpose {
		return false
	}
	if u.ResetTokenExpires == nil {
		return false
	}
	return !now.After(*u.ResetTokenExpires)
}

// Profile is a row of the user_profiles view: public data plus stats.
type Profile struct {
	ID                uuid.UUID
	Username          *string
	FirstName         string
	LastName          string
	FullName          string
	Bio               string
	AvatarURL         *string
	Points            int
	Status            int
	AchievementsCount int
	CreatedAt         time.Time
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank      int
	UserID    uuid.UUID
	Username  *string
	FirstName string
	LastName  string
	AvatarURL *string
	Points    int
}

type Achievement struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description string
	Icon        string
	Points      int
	AwardedAt   time.Time
}

// RefreshToken represents a refresh token entity
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (rt *RefreshToken) IsExpired() bool {
	return time.Now().After(rt.ExpiresAt)
}

// IsActive checks if the refresh token is active (not revoked and not expired)
func (rt *RefreshToken) IsActive() bool {
	return !rt.Revoked && !rt.IsExpired()
}
