package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/sales-quest/internal/models"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user.
func (r *UserRepository) Create(user *models.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByExternalID retrieves a user by the identity provider subject.
func (r *UserRepository) GetByExternalID(externalID string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by external_id %s: %w", externalID, err)
	}
	return &user, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by id %d: %w", id, err)
	}
	return &user, nil
}

// GetByIDs retrieves users keyed by ID. Missing IDs are absent from the map.
func (r *UserRepository) GetByIDs(ids []uint) (map[uint]models.User, error) {
	result := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []models.User
	if err := r.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get users by ids: %w", err)
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

// Update updates a user.
func (r *UserRepository) Update(user *models.User) error {
	if err := r.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// List retrieves all users, optionally restricted to one team.
func (r *UserRepository) List(team string) ([]models.User, error) {
	query := r.db.Model(&models.User{})

	if team != "" {
		query = query.Where("team = ?", team)
	}

	var users []models.User
	if err := query.Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// CreateOrUpdate creates a user if its external ID is unknown, or refreshes
// the profile fields of the existing record. The stored record is copied
// back into user so callers get the database ID.
func (r *UserRepository) CreateOrUpdate(user *models.User) error {
	var existing models.User

	err := r.db.Where("external_id = ?", user.ExternalID).First(&existing).Error
	if err == nil && existing.Username == user.Username && existing.Email == user.Email && existing.Team == user.Team {
		*user = existing
		return nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up user %s: %w", user.ExternalID, err)
	}

	return r.upsert(user)
}

// upsert writes user keyed by external ID. A row inserted concurrently by
// another request is updated instead of failing on the unique index.
func (r *UserRepository) upsert(user *models.User) error {
	candidate := models.User{
		ExternalID: user.ExternalID,
		Username:   user.Username,
		Email:      user.Email,
		Team:       user.Team,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "team", "updated_at"}),
	}).Create(&candidate).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ExternalID, err)
	}

	stored, err := r.GetByExternalID(user.ExternalID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}
