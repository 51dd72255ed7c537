// Package models defines domain models for the sales quest progression engine.
package models

import (
	"time"
)

// User represents a sales user known to the engine.
// ExternalID is the subject issued by the identity provider.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID string    `gorm:"column:external_id;uniqueIndex;not null;size:255" json:"external_id"`
	Username   string    `gorm:"size:255" json:"username"`
	Email      string    `gorm:"size:255" json:"email"`
	Team       string    `gorm:"size:100;index" json:"team"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}
