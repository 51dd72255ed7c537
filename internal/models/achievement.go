package models

import (
	"time"
)

// Achievement is a catalog entry that users earn once by reaching a threshold.
type Achievement struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Code             string    `gorm:"uniqueIndex;not null;size:100" json:"code"`
	Name             string    `gorm:"not null;size:255" json:"name"`
	Description      string    `gorm:"type:text" json:"description"`
	Icon             string    `gorm:"size:50" json:"icon"`
	RequirementType  string    `gorm:"size:20;not null" json:"requirement_type"` // 'xp', 'level', 'streak', 'activities'
	RequirementValue int64     `gorm:"not null" json:"requirement_value"`
	XPReward         int64     `gorm:"column:xp_reward;not null;default:0" json:"xp_reward"`
	CoinsReward      int64     `gorm:"not null;default:0" json:"coins_reward"`
	IsActive         bool      `gorm:"not null;index" json:"is_active"`
	SortOrder        int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}

// EarnedAchievement is the once-per-user award of an achievement.
type EarnedAchievement struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	UserID        uint        `gorm:"not null;uniqueIndex:idx_user_achievement,priority:1" json:"user_id"`
	User          User        `gorm:"foreignKey:UserID" json:"-"`
	AchievementID uint        `gorm:"not null;uniqueIndex:idx_user_achievement,priority:2;index" json:"achievement_id"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID" json:"achievement,omitempty"`
	EarnedAt      time.Time   `gorm:"not null" json:"earned_at"`
}

// TableName specifies the table name for EarnedAchievement model.
func (EarnedAchievement) TableName() string {
	return "earned_achievements"
}

// Requirement types.
const (
	RequirementXP         = "xp"
	RequirementLevel      = "level"
	RequirementStreak     = "streak"
	RequirementActivities = "activities"
)

// ValidRequirementType reports whether t is a known requirement type.
func ValidRequirementType(t string) bool {
	switch t {
	case RequirementXP, RequirementLevel, RequirementStreak, RequirementActivities:
		return true
	}
	return false
}
