package repository

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/sales-quest/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
// A single connection keeps every query on the same in-memory database.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is off)
	db.Exec("PRAGMA foreign_keys = ON")

	wrapped := &DB{db}
	if err := wrapped.AutoMigrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if err := wrapped.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	return wrapped
}

// createTestUser creates a test user in the database.
func createTestUser(t *testing.T, db *DB, username, team string) *models.User {
	t.Helper()

	user := &models.User{
		ExternalID: fmt.Sprintf("sub-%s", username),
		Username:   username,
		Email:      username + "@example.com",
		Team:       team,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// createTestAchievement creates an active catalog entry.
func createTestAchievement(t *testing.T, repo *AchievementRepository, code, reqType string, reqValue int64, sortOrder int) *models.Achievement {
	t.Helper()

	achievement := &models.Achievement{
		Code:             code,
		Name:             code,
		RequirementType:  reqType,
		RequirementValue: reqValue,
		XPReward:         20,
		CoinsReward:      5,
		IsActive:         true,
		SortOrder:        sortOrder,
	}
	if err := repo.Create(t.Context(), achievement); err != nil {
		t.Fatalf("Failed to create test achievement: %v", err)
	}
	return achievement
}
