package models

import (
	"time"
)

// ProgressionState is the per-user XP, level, coin and streak record.
// Level always equals the level table lookup for XP. Version is bumped on
// every write and used as a compare-and-swap token.
type ProgressionState struct {
	ID               uint       `gorm:"primaryKey" json:"-"`
	UserID           uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	User             *User      `gorm:"foreignKey:UserID" json:"-"`
	XP               int64      `gorm:"column:xp;not null;default:0" json:"xp"`
	Level            int        `gorm:"not null;default:1" json:"level"`
	Coins            int64      `gorm:"not null;default:0" json:"coins"`
	Streak           int        `gorm:"not null;default:0" json:"streak"`
	LastActivityDate *time.Time `gorm:"type:date" json:"last_activity_date"`
	TotalActivities  int64      `gorm:"not null;default:0" json:"total_activities"`
	Version          int64      `gorm:"not null;default:0" json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for ProgressionState model.
func (ProgressionState) TableName() string {
	return "user_progression"
}

// ActivityEvent is an append-only record of an XP-earning event.
type ActivityEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Kind      string    `gorm:"size:100;not null" json:"kind"`
	Amount    int64     `gorm:"not null" json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for ActivityEvent model.
func (ActivityEvent) TableName() string {
	return "activity_events"
}

// CoinTransaction records a signed change to a user's coin balance.
type CoinTransaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Amount    int64     `gorm:"not null" json:"amount"` // negative for spends
	Reason    string    `gorm:"size:255" json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for CoinTransaction model.
func (CoinTransaction) TableName() string {
	return "coin_transactions"
}

// Activity kinds used for audit rows that don't come from a configured activity.
const (
	ActivityKindManual      = "manual"
	ActivityKindAchievement = "achievement_reward"
)
