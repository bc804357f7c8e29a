package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prediction-platform/internal/domain/user"
	"prediction-platform/internal/infrastructure/database/postgres/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

// UserRepository implements user.Repository on top of gorm
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	now := time.Now()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = now
	u.UpdatedAt = now

	dbModel := toUserModel(u)
	if err := r.db.DB.WithContext(ctx).Create(dbModel).Error; err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	u.ID = dbModel.ID
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	var dbModel models.UserModel
	err := r.db.DB.WithContext(ctx).First(&dbModel, "id = ?", userID).Error
	return r.single(&dbModel, err)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var dbModel models.UserModel
	err := r.db.DB.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&dbModel).Error
	return r.single(&dbModel, err)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	var dbModel models.UserModel
	err := r.db.DB.WithContext(ctx).Where("LOWER(username) = LOWER(?)", username).First(&dbModel).Error
	return r.single(&dbModel, err)
}

func (r *UserRepository) GetByToken(ctx context.Context, token string, purpose user.TokenPurpose) (*user.User, error) {
	var dbModel models.UserModel
	err := r.db.DB.WithContext(ctx).
		Where("reset_token = ? AND reset_token_purpose = ?", token, string(purpose)).
		First(&dbModel).Error
	return r.single(&dbModel, err)
}

func (r *UserRepository) GetAll(ctx context.Context) ([]*user.User, error) {
	var dbModels []models.UserModel
	if err := r.db.DB.WithContext(ctx).Order("created_at DESC").Find(&dbModels).Error; err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}

	users := make([]*user.User, len(dbModels))
	for i := range dbModels {
		users[i] = toUserEntity(&dbModels[i])
	}
	return users, nil
}

func (r *UserRepository) EmailExists(ctx context.Context, email string, excludeID *uuid.UUID) (bool, error) {
	return r.exists(ctx, "LOWER(email) = LOWER(?)", email, excludeID)
}

func (r *UserRepository) UsernameExists(ctx context.Context, username string, excludeID *uuid.UUID) (bool, error) {
	return r.exists(ctx, "LOWER(username) = LOWER(?)", username, excludeID)
}

func (r *UserRepository) exists(ctx context.Context, cond string, value string, excludeID *uuid.UUID) (bool, error) {
	var count int64
	q := r.db.DB.WithContext(ctx).Model(&models.UserModel{}).Where(cond, value)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return count > 0, nil
}

func (r *UserRepository) UpdateFields(ctx context.Context, userID uuid.UUID, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_at"] = time.Now()

	result := r.db.DB.WithContext(ctx).Model(&models.UserModel{}).
		Where("id = ?", userID).
		Updates(updates)

	if result.Error != nil {
		if mapped := mapUniqueViolation(result.Error); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	return r.UpdateFields(ctx, userID, map[string]interface{}{"password": passwordHash})
}

func (r *UserRepository) SetToken(ctx context.Context, userID uuid.UUID, token string, purpose user.TokenPurpose, expiresAt time.Time) error {
	return r.UpdateFields(ctx, userID, map[string]interface{}{
		"reset_token":         token,
		"reset_token_purpose": string(purpose),
		"reset_token_expires": expiresAt,
	})
}

func (r *UserRepository) ConsumeToken(ctx context.Context, userID uuid.UUID, token string, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		updates[k] = v
	}
	updates["reset_token"] = nil
	updates["reset_token_purpose"] = nil
	updates["reset_token_expires"] = nil
	updates["updated_at"] = time.Now()

	result := r.db.DB.WithContext(ctx).Model(&models.UserModel{}).
		Where("id = ? AND reset_token = ?", userID, token).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to consume token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return user.ErrTokenInvalid
	}
	return nil
}

func (r *UserRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*user.Profile, error) {
	var dbModel models.ProfileModel
	err := r.db.DB.WithContext(ctx).First(&dbModel, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return toProfileEntity(&dbModel), nil
}

func (r *UserRepository) GetPublicProfile(ctx context.Context, username string) (*user.Profile, error) {
	var dbModel models.ProfileModel
	err := r.db.DB.WithContext(ctx).
		Where("LOWER(username) = LOWER(?) AND is_active = true AND is_banned = false", username).
		First(&dbModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return toProfileEntity(&dbModel), nil
}

func (r *UserRepository) ListProfiles(ctx context.Context, offset, limit int) ([]*user.Profile, error) {
	var dbModels []models.ProfileModel
	err := r.activeProfiles(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return toProfileEntities(dbModels), nil
}

func (r *UserRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	if err := r.activeProfiles(ctx).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return count, nil
}

func (r *UserRepository) SearchProfiles(ctx context.Context, query string, limit int) ([]*user.Profile, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var dbModels []models.ProfileModel
	err := r.activeProfiles(ctx).
		Where("(LOWER(username) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)", pattern, pattern, pattern).
		Order("points DESC").
		Limit(limit).
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search profiles: %w", err)
	}
	return toProfileEntities(dbModels), nil
}

func (r *UserRepository) Leaderboard(ctx context.Context, limit int) ([]*user.LeaderboardEntry, error) {
	var dbModels []models.ProfileModel
	err := r.activeProfiles(ctx).
		Order("points DESC, created_at ASC").
		Limit(limit).
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	entries := make([]*user.LeaderboardEntry, len(dbModels))
	for i, m := range dbModels {
		entries[i] = &user.LeaderboardEntry{
			Rank:      i + 1,
			UserID:    m.ID,
			Username:  m.Username,
			FirstName: m.FirstName,
			LastName:  m.LastName,
			AvatarURL: m.AvatarURL,
			Points:    m.Points,
		}
	}
	return entries, nil
}

func (r *UserRepository) activeProfiles(ctx context.Context) *gorm.DB {
	return r.db.DB.WithContext(ctx).Model(&models.ProfileModel{}).
		Where("is_active = true AND is_banned = false")
}

func (r *UserRepository) single(m *models.UserModel, err error) (*user.User, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return toUserEntity(m), nil
}

// mapUniqueViolation turns a unique index violation into the matching domain
// error, or returns nil when err is something else.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return user.ErrEmailTaken
	case strings.Contains(pgErr.ConstraintName, "username"):
		return user.ErrUsernameTaken
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func toUserModel(u *user.User) *models.UserModel {
	var purpose *string
	if u.ResetTokenPurpose != nil {
		p := string(*u.ResetTokenPurpose)
		purpose = &p
	}

	return &models.UserModel{
		ID:                u.ID,
		Email:             u.Email,
		PasswordHashed:    u.PasswordHashed,
		Username:          u.Username,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Bio:               u.Bio,
		AvatarURL:         u.AvatarURL,
		Phone:             u.Phone,
		Points:            u.Points,
		Status:            u.Status,
		Role:              u.Role,
		IsActive:          u.IsActive,
		IsBanned:          u.IsBanned,
		BanReason:         u.BanReason,
		ResetToken:        u.ResetToken,
		ResetTokenPurpose: purpose,
		ResetTokenExpires: u.ResetTokenExpires,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func toUserEntity(m *models.UserModel) *user.User {
	var purpose *user.TokenPurpose
	if m.ResetTokenPurpose != nil {
		p := user.TokenPurpose(*m.ResetTokenPurpose)
		purpose = &p
	}

	return &user.User{
		ID:                m.ID,
		Email:             m.Email,
		PasswordHashed:    m.PasswordHashed,
		Username:          m.Username,
		FirstName:         m.FirstName,
		LastName:          m.LastName,
		Bio:               m.Bio,
		AvatarURL:         m.AvatarURL,
		Phone:             m.Phone,
		Points:            m.Points,
		Status:            m.Status,
		Role:              m.Role,
		IsActive:          m.IsActive,
		IsBanned:          m.IsBanned,
		BanReason:         m.BanReason,
		ResetToken:        m.ResetToken,
		ResetTokenPurpose: purpose,
		ResetTokenExpires: m.ResetTokenExpires,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toProfileEntity(m *models.ProfileModel) *user.Profile {
	return &user.Profile{
		ID:                m.ID,
		Username:          m.Username,
		FirstName:         m.FirstName,
		LastName:          m.LastName,
		FullName:          m.FullName,
		Bio:               m.Bio,
		AvatarURL:         m.AvatarURL,
		Points:            m.Points,
		Status:            m.Status,
		AchievementsCount: m.AchievementsCount,
		CreatedAt:         m.CreatedAt,
	}
}

func toProfileEntities(ms []models.ProfileModel) []*user.Profile {
	out := make([]*user.Profile, len(ms))
	for i := range ms {
		out[i] = toProfileEntity(&ms[i])
	}
	return out
}
