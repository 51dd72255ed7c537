// Package progression implements the activity ledger: XP, levels, streaks and coins.
package progression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aimd54/sales-quest/internal/cache"
	prommetrics "github.com/aimd54/sales-quest/internal/metrics"
	"github.com/aimd54/sales-quest/internal/models"
	"github.com/aimd54/sales-quest/internal/repository"
	"github.com/aimd54/sales-quest/internal/service/levels"
	"github.com/aimd54/sales-quest/internal/service/rewards"
	"github.com/aimd54/sales-quest/pkg/logger"
)

// ProgressionStore persists progression state.
type ProgressionStore interface {
	GetOrCreate(ctx context.Context, userID uint) (*models.ProgressionState, error)
	Mutate(ctx context.Context, userID uint, fn repository.MutateFunc) (*models.ProgressionState, error)
	ListActivities(ctx context.Context, userID uint, limit int) ([]models.ActivityEvent, error)
	ListCoinTransactions(ctx context.Context, userID uint, limit int) ([]models.CoinTransaction, error)
}

// AchievementChecker evaluates the catalog against a freshly persisted state.
type AchievementChecker interface {
	CheckAchievements(ctx context.Context, userID uint, state *models.ProgressionState) ([]models.Achievement, error)
}

// Options configures the ledger.
type Options struct {
	Table      *levels.Table
	Activities map[string]int64 // activity kind -> XP
	Location   *time.Location   // calendar for streak days
	Clock      clockwork.Clock
	CacheTTL   time.Duration
}

// XPResult is the outcome of an XP-earning event.
type XPResult struct {
	State        *models.ProgressionState `json:"state"`
	LeveledUp    bool                     `json:"leveled_up"`
	NewLevel     int                      `json:"new_level"`
	Progress     levels.Progress          `json:"progress"`
	Achievements []models.Achievement     `json:"achievements,omitempty"`
}

// Snapshot is the read view of a user's progression.
type Snapshot struct {
	UserID           uint            `json:"user_id"`
	XP               int64           `json:"xp"`
	Level            int             `json:"level"`
	MaxLevel         int             `json:"max_level"`
	NextLevelXP      *int64          `json:"next_level_xp"`
	Coins            int64           `json:"coins"`
	Streak           int             `json:"streak"`
	LastActivityDate *string         `json:"last_activity_date"`
	TotalActivities  int64           `json:"total_activities"`
	Progress         levels.Progress `json:"progress"`
}

// Service implements the activity ledger.
type Service struct {
	store      ProgressionStore
	cache      cache.Cache
	queue      *rewards.Queue
	checker    AchievementChecker
	table      *levels.Table
	activities map[string]int64
	loc        *time.Location
	clock      clockwork.Clock
	cacheTTL   time.Duration
	log        *logger.Logger
}

// NewService creates a new progression service.
func NewService(
	repo *repository.ProgressionRepository,
	c cache.Cache,
	queue *rewards.Queue,
	opts Options,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(repo, c, queue, opts, log)
}

// NewServiceWithInterfaces creates a new progression service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	store ProgressionStore,
	c cache.Cache,
	queue *rewards.Queue,
	opts Options,
	log *logger.Logger,
) *Service {
	if opts.Table == nil {
		opts.Table = levels.DefaultTable()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Activities == nil {
		opts.Activities = map[string]int64{}
	}
	if queue == nil {
		queue = rewards.NewQueue(0)
	}

	return &Service{
		store:      store,
		cache:      c,
		queue:      queue,
		table:      opts.Table,
		activities: opts.Activities,
		loc:        opts.Location,
		clock:      opts.Clock,
		cacheTTL:   opts.CacheTTL,
		log:        log,
	}
}

// SetAchievementChecker wires the evaluator run after every XP event.
func (s *Service) SetAchievementChecker(checker AchievementChecker) {
	s.checker = checker
}

// Table returns the level table in use.
func (s *Service) Table() *levels.Table {
	return s.table
}

// Queue returns the pending reward queue.
func (s *Service) Queue() *rewards.Queue {
	return s.queue
}

// Activities returns the configured activity kinds and their XP.
func (s *Service) Activities() map[string]int64 {
	out := make(map[string]int64, len(s.activities))
	for k, v := range s.activities {
		out[k] = v
	}
	return out
}

// GetProgress returns the user's progression, creating it on first read.
func (s *Service) GetProgress(ctx context.Context, userID uint) (*Snapshot, error) {
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}

	if snap := s.cachedSnapshot(ctx, userID); snap != nil {
		return snap, nil
	}

	state, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, persistenceError(err)
	}

	snap := s.Snapshot(state)
	s.storeSnapshot(ctx, snap)
	return snap, nil
}

// Snapshot builds the read view of a state.
func (s *Service) Snapshot(state *models.ProgressionState) *Snapshot {
	snap := &Snapshot{
		UserID:          state.UserID,
		XP:              state.XP,
		Level:           state.Level,
		MaxLevel:        s.table.MaxLevel(),
		Coins:           state.Coins,
		Streak:          state.Streak,
		TotalActivities: state.TotalActivities,
		Progress:        s.table.Progress(state.XP, state.Level),
	}
	if state.Level < s.table.MaxLevel() {
		next := s.table.Threshold(state.Level + 1)
		snap.NextLevelXP = &next
	}
	if state.LastActivityDate != nil {
		day := storedDay(*state.LastActivityDate).Format(time.DateOnly)
		snap.LastActivityDate = &day
	}
	return snap
}

// AddXP records a manual XP grant.
func (s *Service) AddXP(ctx context.Context, userID uint, amount int64) (*XPResult, error) {
	return s.recordXP(ctx, userID, amount, models.ActivityKindManual)
}

// RecordActivity records a sales event; its XP comes from the configured activity table.
func (s *Service) RecordActivity(ctx context.Context, userID uint, kind string) (*XPResult, error) {
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}
	amount, ok := s.activities[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActivity, kind)
	}
	return s.recordXP(ctx, userID, amount, kind)
}

func (s *Service) recordXP(ctx context.Context, userID uint, amount int64, kind string) (*XPResult, error) {
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	today := calendarDay(s.clock.Now(), s.loc)
	var prevLevel, prevStreak int

	state, err := s.store.Mutate(ctx, userID, func(st *models.ProgressionState) (repository.Journal, error) {
		prevLevel = st.Level
		prevStreak = st.Streak

		xp, err := addBounded(st.XP, amount)
		if err != nil {
			return repository.Journal{}, err
		}
		st.XP = xp
		st.Level = s.table.Level(st.XP)
		st.Streak, st.LastActivityDate = advanceStreak(st.Streak, st.LastActivityDate, today)
		st.TotalActivities++

		return repository.Journal{
			Activity: &models.ActivityEvent{Kind: kind, Amount: amount},
		}, nil
	})
	if err != nil {
		prommetrics.RecordOperationError("add_xp")
		s.log.Error().Err(err).
			Uint("user_id", userID).
			Int64("xp", amount).
			Str("kind", kind).
			Msg("Failed to record XP")
		return nil, persistenceError(err)
	}

	leveledUp := state.Level > prevLevel
	s.invalidate(ctx, userID)

	source := "activity"
	if kind == models.ActivityKindManual {
		source = "manual"
	}
	prommetrics.RecordXPAwarded(source, amount)
	prommetrics.RecordActivity(kind)

	s.queue.Enqueue(userID, rewards.PendingReward{
		Type:    rewards.TypeXP,
		Value:   fmt.Sprintf("+%d XP", amount),
		XPDelta: amount,
	})
	if state.Streak > prevStreak && state.Streak > 1 {
		s.queue.Enqueue(userID, rewards.PendingReward{
			Type:  rewards.TypeStreak,
			Value: strconv.Itoa(state.Streak),
		})
	}
	if leveledUp {
		prommetrics.RecordLevelUp(strconv.Itoa(state.Level))
		s.queue.Enqueue(userID, rewards.PendingReward{
			Type:  rewards.TypeLevelUp,
			Value: strconv.Itoa(state.Level),
		})
	}

	s.log.Info().
		Uint("user_id", userID).
		Str("kind", kind).
		Int64("xp", amount).
		Int64("total_xp", state.XP).
		Int("level", state.Level).
		Int("streak", state.Streak).
		Bool("leveled_up", leveledUp).
		Msg("XP recorded")

	result := &XPResult{
		State:     state,
		LeveledUp: leveledUp,
		NewLevel:  state.Level,
	}

	if s.checker != nil {
		awarded, err := s.checker.CheckAchievements(ctx, userID, state)
		if err != nil {
			// XP is already committed; achievement failures are logged only.
			s.log.Warn().Err(err).Uint("user_id", userID).Msg("Achievement check after XP event failed")
		}
		if len(awarded) > 0 {
			result.Achievements = awarded
			if fresh, err := s.store.GetOrCreate(ctx, userID); err == nil {
				result.State = fresh
			} else {
				s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to reload state after achievement rewards")
			}
		}
	}

	result.Progress = s.table.Progress(result.State.XP, result.State.Level)
	return result, nil
}

// AddCoins grants coins to the user.
func (s *Service) AddCoins(ctx context.Context, userID uint, amount int64, reason string) (*models.ProgressionState, error) {
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if reason == "" {
		reason = "grant"
	}

	state, err := s.store.Mutate(ctx, userID, func(st *models.ProgressionState) (repository.Journal, error) {
		coins, err := addBounded(st.Coins, amount)
		if err != nil {
			return repository.Journal{}, err
		}
		st.Coins = coins
		return repository.Journal{
			Coins: &models.CoinTransaction{Amount: amount, Reason: reason},
		}, nil
	})
	if err != nil {
		prommetrics.RecordOperationError("add_coins")
		s.log.Error().Err(err).Uint("user_id", userID).Int64("coins", amount).Msg("Failed to add coins")
		return nil, persistenceError(err)
	}

	s.invalidate(ctx, userID)
	prommetrics.RecordCoinsGranted(amount)
	s.queue.Enqueue(userID, rewards.PendingReward{
		Type:       rewards.TypeCoins,
		Value:      strconv.FormatInt(amount, 10),
		CoinsDelta: amount,
	})

	s.log.Info().
		Uint("user_id", userID).
		Int64("coins", amount).
		Int64("balance", state.Coins).
		Str("reason", reason).
		Msg("Coins granted")

	return state, nil
}

// SpendCoins removes coins from the user's balance. It fails with
// ErrInsufficientBalance and changes nothing when the balance is too low.
func (s *Service) SpendCoins(ctx context.Context, userID uint, amount int64, reason string) (*models.ProgressionState, error) {
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if reason == "" {
		reason = "purchase"
	}

	state, err := s.store.Mutate(ctx, userID, func(st *models.ProgressionState) (repository.Journal, error) {
		if st.Coins < amount {
			return repository.Journal{}, ErrInsufficientBalance
		}
		st.Coins -= amount
		return repository.Journal{
			Coins: &models.CoinTransaction{Amount: -amount, Reason: reason},
		}, nil
	})
	if errors.Is(err, ErrInsufficientBalance) {
		prommetrics.RecordSpendRejected()
		s.log.Info().Uint("user_id", userID).Int64("coins", amount).Msg("Spend rejected, insufficient balance")
		return nil, ErrInsufficientBalance
	}
	if err != nil {
		prommetrics.RecordOperationError("spend_coins")
		s.log.Error().Err(err).Uint("user_id", userID).Int64("coins", amount).Msg("Failed to spend coins")
		return nil, persistenceError(err)
	}

	s.invalidate(ctx, userID)
	prommetrics.RecordCoinsSpent(amount)

	s.log.Info().
		Uint("user_id", userID).
		Int64("coins", amount).
		Int64("balance", state.Coins).
		Str("reason", reason).
		Msg("Coins spent")

	return state, nil
}

// ApplyAchievementReward folds an achievement's XP and coin reward into the
// latest persisted state. A resulting level-up is queued like any other.
func (s *Service) ApplyAchievementReward(ctx context.Context, userID uint, achievement *models.Achievement) (*models.ProgressionState, error) {
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}
	if achievement.XPReward <= 0 && achievement.CoinsReward <= 0 {
		state, err := s.store.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, persistenceError(err)
		}
		return state, nil
	}

	var prevLevel int
	state, err := s.store.Mutate(ctx, userID, func(st *models.ProgressionState) (repository.Journal, error) {
		prevLevel = st.Level
		xp, err := addBounded(st.XP, achievement.XPReward)
		if err != nil {
			return repository.Journal{}, err
		}
		coins, err := addBounded(st.Coins, achievement.CoinsReward)
		if err != nil {
			return repository.Journal{}, err
		}
		st.XP, st.Coins = xp, coins
		st.Level = s.table.Level(st.XP)

		var journal repository.Journal
		if achievement.XPReward > 0 {
			journal.Activity = &models.ActivityEvent{Kind: models.ActivityKindAchievement, Amount: achievement.XPReward}
		}
		if achievement.CoinsReward > 0 {
			journal.Coins = &models.CoinTransaction{Amount: achievement.CoinsReward, Reason: "achievement:" + achievement.Code}
		}
		return journal, nil
	})
	if err != nil {
		return nil, persistenceError(err)
	}

	s.invalidate(ctx, userID)
	if achievement.XPReward > 0 {
		prommetrics.RecordXPAwarded("achievement", achievement.XPReward)
	}
	if achievement.CoinsReward > 0 {
		prommetrics.RecordCoinsGranted(achievement.CoinsReward)
	}
	if state.Level > prevLevel {
		prommetrics.RecordLevelUp(strconv.Itoa(state.Level))
		s.queue.Enqueue(userID, rewards.PendingReward{
			Type:  rewards.TypeLevelUp,
			Value: strconv.Itoa(state.Level),
		})
	}

	return state, nil
}

// ListActivities returns the user's recent ledger events.
func (s *Service) ListActivities(ctx context.Context, userID uint, limit int) ([]models.ActivityEvent, error) {
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}
	events, err := s.store.ListActivities(ctx, userID, limit)
	if err != nil {
		return nil, persistenceError(err)
	}
	return events, nil
}

// ListCoinTransactions returns the user's recent coin ledger entries.
func (s *Service) ListCoinTransactions(ctx context.Context, userID uint, limit int) ([]models.CoinTransaction, error) {
	if userID == 0 {
		return nil, ErrNotAuthenticated
	}
	txs, err := s.store.ListCoinTransactions(ctx, userID, limit)
	if err != nil {
		return nil, persistenceError(err)
	}
	return txs, nil
}

func (s *Service) cachedSnapshot(ctx context.Context, userID uint) *Snapshot {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, cache.ProgressKey(userID))
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to read progress cache")
		return nil
	}
	if raw == "" {
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Discarding malformed cached progress")
		return nil
	}
	return &snap
}

func (s *Service) storeSnapshot(ctx context.Context, snap *Snapshot) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cache.ProgressKey(snap.UserID), string(payload), s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Uint("user_id", snap.UserID).Msg("Failed to cache progress")
	}
}

func (s *Service) invalidate(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cache.UserKeys(userID)...); err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to invalidate cached views")
	}
}

// addBounded adds a non-negative delta to a balance, rejecting sums that
// would overflow int64.
func addBounded(total, delta int64) (int64, error) {
	if delta > math.MaxInt64-total {
		return total, ErrInvalidAmount
	}
	return total + delta, nil
}

// persistenceError tags store failures so callers can match ErrPersistence
// while keeping the underlying cause.
func persistenceError(err error) error {
	if err == nil || errors.Is(err, ErrPersistence) || errors.Is(err, ErrInvalidAmount) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
