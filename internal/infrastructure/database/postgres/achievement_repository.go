package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prediction-platform/internal/domain/user"
	"prediction-platform/internal/infrastructure/database/postgres/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AchievementRepository struct {
	db *DB
}

func NewAchievementRepository(db *DB) user.AchievementRepository {
	return &AchievementRepository{db: db}
}

type userAchievementRow struct {
	models.AchievementModel
	AwardedAt time.Time
}

func (r *AchievementRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*user.Achievement, error) {
	var rows []userAchievementRow
	err := r.db.DB.WithContext(ctx).
		Table("user_achievements ua").
		Select("a.id, a.code, a.name, a.description, a.icon, a.points, a.created_at, ua.awarded_at").
		Joins("JOIN achievements a ON a.id = ua.achievement_id").
		Where("ua.user_id = ?", userID).
		Order("ua.awarded_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}

	out := make([]*user.Achievement, len(rows))
	for i, row := range rows {
		out[i] = &user.Achievement{
			ID:          row.ID,
			Code:        row.Code,
			Name:        row.Name,
			Description: row.Description,
			Icon:        row.Icon,
			Points:      row.Points,
			AwardedAt:   row.AwardedAt,
		}
	}
	return out, nil
}

// Award is idempotent: awarding the same code twice keeps the first row.
func (r *AchievementRepository) Award(ctx context.Context, userID uuid.UUID, code string) error {
	var achievement models.AchievementModel
	err := r.db.DB.WithContext(ctx).Where("code = ?", code).First(&achievement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return user.ErrAchievementAbsent
	}
	if err != nil {
		return fmt.Errorf("failed to load achievement: %w", err)
	}

	row := models.UserAchievementModel{
		UserID:        userID,
		AchievementID: achievement.ID,
		AwardedAt:     time.Now(),
	}
	err = r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to award achievement: %w", err)
	}
	return nil
}
