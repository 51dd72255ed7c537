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

// ErrVersionConflict is returned when a progression row changed between read and write
// more times than the retry budget allows.
var ErrVersionConflict = errors.New("progression state was modified concurrently")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DefaultMaxRetries bounds compare-and-swap attempts per mutation.
const DefaultMaxRetries = 5

// Journal holds the audit rows written in the same transaction as a state update.
type Journal struct {
	Activity *models.ActivityEvent
	Coins    *models.CoinTransaction
}

// MutateFunc receives a fresh copy of the persisted state and edits it in place.
// Returning an error aborts the mutation without writing anything.
type MutateFunc func(state *models.ProgressionState) (Journal, error)

// Standing is a user's leaderboard row.
type Standing struct {
	UserID          uint
	Username        string
	Team            string
	XP              int64
	Level           int
	Coins           int64
	Streak          int
	TotalActivities int64
}

// XPGain is the XP a user earned over a period.
type XPGain struct {
	UserID   uint
	Username string
	XP       int64
}

// ProgressionRepository handles progression state, activity and coin ledger rows.
type ProgressionRepository struct {
	db         *DB
	maxRetries int
	onConflict func()
}

// NewProgressionRepository creates a new progression repository.
func NewProgressionRepository(db *DB) *ProgressionRepository {
	return &ProgressionRepository{db: db, maxRetries: DefaultMaxRetries}
}

// SetMaxRetries changes the compare-and-swap attempt budget. Values below 1 are ignored.
func (r *ProgressionRepository) SetMaxRetries(n int) {
	if n >= 1 {
		r.maxRetries = n
	}
}

// OnConflict registers a hook called on every lost compare-and-swap attempt.
func (r *ProgressionRepository) OnConflict(fn func()) {
	r.onConflict = fn
}

// GetOrCreate returns the user's progression row, creating a level 1 row on first access.
func (r *ProgressionRepository) GetOrCreate(ctx context.Context, userID uint) (*models.ProgressionState, error) {
	return getOrCreateState(r.db.WithContext(ctx), userID)
}

// GetByUserID returns the user's progression row or ErrNotFound.
func (r *ProgressionRepository) GetByUserID(ctx context.Context, userID uint) (*models.ProgressionState, error) {
	var state models.ProgressionState
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progression for user %d: %w", userID, err)
	}
	return &state, nil
}

func getOrCreateState(tx *gorm.DB, userID uint) (*models.ProgressionState, error) {
	var state models.ProgressionState
	err := tx.Where("user_id = ?", userID).First(&state).Error
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to get progression for user %d: %w", userID, err)
	}

	// A concurrent first access may win the insert; the re-read below picks up its row.
	fresh := models.ProgressionState{UserID: userID, Level: 1}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return nil, fmt.Errorf("failed to create progression for user %d: %w", userID, err)
	}

	state = models.ProgressionState{}
	if err := tx.Where("user_id = ?", userID).First(&state).Error; err != nil {
		return nil, fmt.Errorf("failed to reload progression for user %d: %w", userID, err)
	}
	return &state, nil
}

// Mutate applies fn to the latest persisted state and writes the result with a
// compare-and-swap on the version column, together with the journal rows.
// A lost race re-reads and re-applies fn, up to the retry budget.
func (r *ProgressionRepository) Mutate(ctx context.Context, userID uint, fn MutateFunc) (*models.ProgressionState, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		state, err := r.mutateOnce(ctx, userID, fn)
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
		if r.onConflict != nil {
			r.onConflict()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return nil, fmt.Errorf("user %d after %d attempts: %w", userID, r.maxRetries, lastErr)
}

func (r *ProgressionRepository) mutateOnce(ctx context.Context, userID uint, fn MutateFunc) (*models.ProgressionState, error) {
	var result *models.ProgressionState

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := getOrCreateState(tx, userID)
		if err != nil {
			return err
		}

		next := *current
		journal, err := fn(&next)
		if err != nil {
			return err
		}
		next.ID = current.ID
		next.UserID = current.UserID
		next.Version = current.Version + 1
		next.UpdatedAt = time.Now()

		res := tx.Model(&models.ProgressionState{}).
			Where("id = ? AND version = ?", current.ID, current.Version).
			Updates(map[string]interface{}{
				"xp":                 next.XP,
				"level":              next.Level,
				"coins":              next.Coins,
				"streak":             next.Streak,
				"last_activity_date": next.LastActivityDate,
				"total_activities":   next.TotalActivities,
				"version":            next.Version,
				"updated_at":         next.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update progression for user %d: %w", userID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		if journal.Activity != nil {
			journal.Activity.UserID = userID
			if err := tx.Create(journal.Activity).Error; err != nil {
				return fmt.Errorf("failed to record activity for user %d: %w", userID, err)
			}
		}
		if journal.Coins != nil {
			journal.Coins.UserID = userID
			if err := tx.Create(journal.Coins).Error; err != nil {
				return fmt.Errorf("failed to record coin transaction for user %d: %w", userID, err)
			}
		}

		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAll returns every progression row ordered by user.
func (r *ProgressionRepository) ListAll(ctx context.Context) ([]models.ProgressionState, error) {
	var states []models.ProgressionState
	if err := r.db.WithContext(ctx).Order("user_id ASC").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("failed to list progression: %w", err)
	}
	return states, nil
}

// leaderboardColumns maps leaderboard metrics to their sort column.
var leaderboardColumns = map[string]string{
	"xp":         "user_progression.xp",
	"level":      "user_progression.level",
	"coins":      "user_progression.coins",
	"streak":     "user_progression.streak",
	"activities": "user_progression.total_activities",
}

// Top returns the best standings for metric, optionally restricted to a team.
// Ties are broken by XP and then by user ID.
func (r *ProgressionRepository) Top(ctx context.Context, metric, team string, limit int) ([]Standing, error) {
	column, ok := leaderboardColumns[metric]
	if !ok {
		return nil, fmt.Errorf("unknown leaderboard metric %q", metric)
	}

	query := r.db.WithContext(ctx).
		Table("user_progression").
		Select("user_progression.user_id, users.username, users.team, user_progression.xp, " +
			"user_progression.level, user_progression.coins, user_progression.streak, user_progression.total_activities").
		Joins("JOIN users ON users.id = user_progression.user_id")

	if team != "" {
		query = query.Where("users.team = ?", team)
	}

	query = query.Order(column + " DESC").
		Order("user_progression.xp DESC").
		Order("user_progression.user_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var standings []Standing
	if err := query.Scan(&standings).Error; err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	return standings, nil
}

// XPGainedSince sums activity XP per user since the given time, best first.
func (r *ProgressionRepository) XPGainedSince(ctx context.Context, since time.Time, limit int) ([]XPGain, error) {
	query := r.db.WithContext(ctx).
		Table("activity_events").
		Select("activity_events.user_id, users.username, SUM(activity_events.amount) AS xp").
		Joins("JOIN users ON users.id = activity_events.user_id").
		Where("activity_events.created_at >= ?", since).
		Group("activity_events.user_id, users.username").
		Order("xp DESC").
		Order("activity_events.user_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var gains []XPGain
	if err := query.Scan(&gains).Error; err != nil {
		return nil, fmt.Errorf("failed to sum xp gains: %w", err)
	}
	return gains, nil
}

// ListActivities returns the user's most recent activity events.
func (r *ProgressionRepository) ListActivities(ctx context.Context, userID uint, limit int) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list activities for user %d: %w", userID, err)
	}
	return events, nil
}

// ListCoinTransactions returns the user's most recent coin ledger entries.
func (r *ProgressionRepository) ListCoinTransactions(ctx context.Context, userID uint, limit int) ([]models.CoinTransaction, error) {
	var txs []models.CoinTransaction
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list coin transactions for user %d: %w", userID, err)
	}
	return txs, nil
}
