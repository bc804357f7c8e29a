package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for user repository operations
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, userID uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByToken(ctx context.Context, token string, purpose TokenPurpose) (*User, error)
	GetAll(ctx context.Context) ([]*User, error)

	// EmailExists and UsernameExists ignore the row with excludeID when set.
	EmailExists(ctx context.Context, email string, excludeID *uuid.UUID) (bool, error)
	UsernameExists(ctx context.Context, username string, excludeID *uuid.UUID) (bool, error)

	// UpdateFields writes only the named columns.
	UpdateFields(ctx context.Context, userID uuid.UUID, fields map[string]interface{}) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	SetToken(ctx context.Context, userID uuid.UUID, token string, purpose TokenPurpose, expiresAt time.Time) error
	// ConsumeToken applies fields and clears the token only if the stored
	// token still equals token. It returns ErrTokenInvalid otherwise.
	ConsumeToken(ctx context.Context, userID uuid.UUID, token string, fields map[string]interface{}) error

	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	GetPublicProfile(ctx context.Context, username string) (*Profile, error)
	ListProfiles(ctx context.Context, offset, limit int) ([]*Profile, error)
	CountActive(ctx context.Context) (int64, error)
	SearchProfiles(ctx context.Context, query string, limit int) ([]*Profile, error)
	Leaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error)
}

// AchievementRepository reads and awards achievements.
type AchievementRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Achievement, error)
	Award(ctx context.Context, userID uuid.UUID, code string) error
}

// RefreshTokenRepository defines the interface for refresh token operations
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	GetByToken(ctx context.Context, token string) (*RefreshToken, error)
	Revoke(ctx context.Context, tokenID uuid.UUID) error
	RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context, olderThan time.Duration) error
}
