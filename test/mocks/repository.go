package mocks

import (
	"context"
	"errors"

	"github.com/aimd54/sales-quest/internal/models"
	"github.com/aimd54/sales-quest/internal/repository"
)

// MockUserRepository is a simple mock for user repository
type MockUserRepository struct {
	GetByIDFunc         func(id uint) (*models.User, error)
	GetByExternalIDFunc func(externalID string) (*models.User, error)
	CreateOrUpdateFunc  func(user *models.User) error
	ListFunc            func(team string) ([]models.User, error)
}

func (m *MockUserRepository) GetByID(id uint) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(id)
	}
	return nil, errors.New("user not found")
}

func (m *MockUserRepository) GetByExternalID(externalID string) (*models.User, error) {
	if m.GetByExternalIDFunc != nil {
		return m.GetByExternalIDFunc(externalID)
	}
	return nil, errors.New("user not found")
}

func (m *MockUserRepository) CreateOrUpdate(user *models.User) error {
	if m.CreateOrUpdateFunc != nil {
		return m.CreateOrUpdateFunc(user)
	}
	return nil
}

func (m *MockUserRepository) List(team string) ([]models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(team)
	}
	return []models.User{}, nil
}

// MockProgressionStore is a function-field mock for the progression store.
type MockProgressionStore struct {
	GetOrCreateFunc          func(ctx context.Context, userID uint) (*models.ProgressionState, error)
	MutateFunc               func(ctx context.Context, userID uint, fn repository.MutateFunc) (*models.ProgressionState, error)
	ListAllFunc              func(ctx context.Context) ([]models.ProgressionState, error)
	ListActivitiesFunc       func(ctx context.Context, userID uint, limit int) ([]models.ActivityEvent, error)
	ListCoinTransactionsFunc func(ctx context.Context, userID uint, limit int) ([]models.CoinTransaction, error)
}

func (m *MockProgressionStore) GetOrCreate(ctx context.Context, userID uint) (*models.ProgressionState, error) {
	if m.GetOrCreateFunc != nil {
		return m.GetOrCreateFunc(ctx, userID)
	}
	return &models.ProgressionState{UserID: userID, Level: 1}, nil
}

func (m *MockProgressionStore) Mutate(ctx context.Context, userID uint, fn repository.MutateFunc) (*models.ProgressionState, error) {
	if m.MutateFunc != nil {
		return m.MutateFunc(ctx, userID, fn)
	}
	state := &models.ProgressionState{UserID: userID, Level: 1}
	if _, err := fn(state); err != nil {
		return nil, err
	}
	return state, nil
}

func (m *MockProgressionStore) ListAll(ctx context.Context) ([]models.ProgressionState, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx)
	}
	return []models.ProgressionState{}, nil
}

func (m *MockProgressionStore) ListActivities(ctx context.Context, userID uint, limit int) ([]models.ActivityEvent, error) {
	if m.ListActivitiesFunc != nil {
		return m.ListActivitiesFunc(ctx, userID, limit)
	}
	return []models.ActivityEvent{}, nil
}

func (m *MockProgressionStore) ListCoinTransactions(ctx context.Context, userID uint, limit int) ([]models.CoinTransaction, error) {
	if m.ListCoinTransactionsFunc != nil {
		return m.ListCoinTransactionsFunc(ctx, userID, limit)
	}
	return []models.CoinTransaction{}, nil
}
