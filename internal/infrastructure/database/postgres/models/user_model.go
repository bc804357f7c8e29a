package models

import (
	"time"

	"github.com/google/uuid"
)

// UserModel maps the users table
type UserModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Email             string     `gorm:"type:varchar(255);not null"`
	PasswordHashed    string     `gorm:"column:password;type:varchar(255);not null"`
	Username          *string    `gorm:"type:varchar(30)"`
	FirstName         string     `gorm:"type:varchar(100);not null"`
	LastName          string     `gorm:"type:varchar(100);not null"`
	Bio               string     `gorm:"type:text;not null;default:''"`
	AvatarURL         *string    `gorm:"type:text"`
	Phone             *string    `gorm:"type:varchar(32)"`
	Points            int        `gorm:"not null;default:100"`
	Status            int        `gorm:"type:smallint;not null;default:0"`
	Role              string     `gorm:"type:varchar(20);not null;default:'user'"`
	IsActive          bool       `gorm:"default:true;not null"`
	IsBanned          bool       `gorm:"default:false;not null"`
	BanReason         *string    `gorm:"type:text"`
	ResetToken        *string    `gorm:"type:varchar(128)"`
	ResetTokenPurpose *string    `gorm:"type:varchar(16)"`
	ResetTokenExpires *time.Time `gorm:"type:timestamptz"`
	CreatedAt         time.Time  `gorm:"not null"`
	UpdatedAt         time.Time  `gorm:"not null"`
}

func (UserModel) TableName() string {
	return "users"
}

// ProfileModel is read-only and backed by the user_profiles view.
type ProfileModel struct {
	ID                uuid.UUID
	Username          *string
	FirstName         string
	LastName          string
	FullName          string
	Bio               string
	AvatarURL         *string
	Points            int
	Status            int
	IsActive          bool
	IsBanned          bool
	AchievementsCount int
	CreatedAt         time.Time
}

func (ProfileModel) TableName() string {
	return "user_profiles"
}

type AchievementModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Code        string    `gorm:"type:varchar(50);not null;unique"`
	Name        string    `gorm:"type:varchar(100);not null"`
	Description string    `gorm:"type:text"`
	Icon        string    `gorm:"type:varchar(100)"`
	Points      int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (AchievementModel) TableName() string {
	return "achievements"
}

type UserAchievementModel struct {
	UserID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AchievementID uuid.UUID `gorm:"type:uuid;primaryKey"`
	AwardedAt     time.Time `gorm:"not null"`
}

func (UserAchievementModel) TableName() string {
	return "user_achievements"
}

// RefreshTokenModel represents the database model for RefreshToken
type RefreshTokenModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Token     string     `gorm:"type:varchar(500);not null;unique;index"`
	ExpiresAt time.Time  `gorm:"not null;index"`
	Revoked   bool       `gorm:"default:false;index"`
	RevokedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time  `gorm:"not null"`
}

func (RefreshTokenModel) TableName() string {
	return "refresh_tokens"
}
