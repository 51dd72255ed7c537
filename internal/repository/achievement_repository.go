package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/sales-quest/internal/models"
)

// AchievementRepository handles achievement catalog and earned-record operations.
type AchievementRepository struct {
	db *DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// Create creates a new achievement in the catalog.
func (r *AchievementRepository) Create(ctx context.Context, achievement *models.Achievement) error {
	return r.db.WithContext(ctx).Create(achievement).Error
}

// Upsert inserts the achievement or updates the catalog entry with the same code.
func (r *AchievementRepository) Upsert(ctx context.Context, achievement *models.Achievement) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "icon", "requirement_type", "requirement_value",
			"xp_reward", "coins_reward", "is_active", "sort_order", "updated_at",
		}),
	}).Create(achievement).Error
	if err != nil {
		return fmt.Errorf("failed to upsert achievement %s: %w", achievement.Code, err)
	}
	return nil
}

// GetByID retrieves an achievement by its ID.
func (r *AchievementRepository) GetByID(ctx context.Context, id uint) (*models.Achievement, error) {
	var achievement models.Achievement
	err := r.db.WithContext(ctx).First(&achievement, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &achievement, nil
}

// GetByCode retrieves an achievement by its code.
func (r *AchievementRepository) GetByCode(ctx context.Context, code string) (*models.Achievement, error) {
	var achievement models.Achievement
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&achievement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &achievement, nil
}

// GetAll retrieves the whole catalog in catalog order.
func (r *AchievementRepository) GetAll(ctx context.Context) ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.WithContext(ctx).Order("sort_order ASC").Order("id ASC").Find(&achievements).Error
	return achievements, err
}

// GetActive retrieves active achievements in catalog order.
func (r *AchievementRepository) GetActive(ctx context.Context) ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC").
		Order("id ASC").
		Find(&achievements).Error
	return achievements, err
}

// Update updates an existing achievement.
func (r *AchievementRepository) Update(ctx context.Context, achievement *models.Achievement) error {
	return r.db.WithContext(ctx).Save(achievement).Error
}

// EarnedCodes returns the set of achievement codes the user already holds.
func (r *AchievementRepository) EarnedCodes(ctx context.Context, userID uint) (map[string]bool, error) {
	var codes []string
	err := r.db.WithContext(ctx).
		Table("earned_achievements").
		Select("achievements.code").
		Joins("JOIN achievements ON achievements.id = earned_achievements.achievement_id").
		Where("earned_achievements.user_id = ?", userID).
		Pluck("achievements.code", &codes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load earned achievements for user %d: %w", userID, err)
	}

	set := make(map[string]bool, len(codes))
	for _, code := range codes {
		set[code] = true
	}
	return set, nil
}

// InsertEarned records that the user earned the achievement.
// It reports false without error when the pair already exists, so a given
// achievement is granted at most once per user even under concurrent calls.
func (r *AchievementRepository) InsertEarned(ctx context.Context, userID, achievementID uint, earnedAt time.Time) (bool, error) {
	earned := &models.EarnedAchievement{
		UserID:        userID,
		AchievementID: achievementID,
		EarnedAt:      earnedAt,
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(earned)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert earned achievement: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetUserAchievements retrieves the achievements a user earned, newest first.
func (r *AchievementRepository) GetUserAchievements(ctx context.Context, userID uint) ([]models.EarnedAchievement, error) {
	var earned []models.EarnedAchievement
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Achievement").
		Order("earned_at DESC").
		Order("id DESC").
		Find(&earned).Error
	return earned, err
}

// HasUserEarned checks if a user holds a specific achievement.
func (r *AchievementRepository) HasUserEarned(ctx context.Context, userID, achievementID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EarnedAchievement{}).
		Where("user_id = ? AND achievement_id = ?", userID, achievementID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetHolders retrieves all users who earned a specific achievement, most recent first.
func (r *AchievementRepository) GetHolders(ctx context.Context, achievementID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Joins("JOIN earned_achievements ON earned_achievements.user_id = users.id").
		Where("earned_achievements.achievement_id = ?", achievementID).
		Order("earned_achievements.earned_at DESC").
		Find(&users).Error
	return users, err
}

// GetHoldersCount returns the number of users who earned a specific achievement.
func (r *AchievementRepository) GetHoldersCount(ctx context.Context, achievementID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EarnedAchievement{}).
		Where("achievement_id = ?", achievementID).
		Count(&count).Error
	return count, err
}

// GetUserAchievementCount returns the number of achievements a user earned.
func (r *AchievementRepository) GetUserAchievementCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EarnedAchievement{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// GetRecentlyEarned retrieves achievements earned since the given time.
func (r *AchievementRepository) GetRecentlyEarned(ctx context.Context, since time.Time) ([]models.EarnedAchievement, error) {
	var earned []models.EarnedAchievement
	err := r.db.WithContext(ctx).
		Where("earned_at >= ?", since).
		Preload("Achievement").
		Preload("User").
		Order("earned_at DESC").
		Find(&earned).Error
	return earned, err
}
