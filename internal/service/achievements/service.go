// Package achievements evaluates the achievement catalog against user progression
// and grants each achievement at most once per user.
package achievements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aimd54/sales-quest/internal/cache"
	prommetrics "github.com/aimd54/sales-quest/internal/metrics"
	"github.com/aimd54/sales-quest/internal/models"
	"github.com/aimd54/sales-quest/internal/repository"
	"github.com/aimd54/sales-quest/internal/service/progression"
	"github.com/aimd54/sales-quest/internal/service/rewards"
	"github.com/aimd54/sales-quest/pkg/logger"
)

// AchievementRepository interface for catalog and earned-record operations.
type AchievementRepository interface {
	GetAll(ctx context.Context) ([]models.Achievement, error)
	GetActive(ctx context.Context) ([]models.Achievement, error)
	GetByID(ctx context.Context, id uint) (*models.Achievement, error)
	EarnedCodes(ctx context.Context, userID uint) (map[string]bool, error)
	InsertEarned(ctx context.Context, userID, achievementID uint, earnedAt time.Time) (bool, error)
	GetUserAchievements(ctx context.Context, userID uint) ([]models.EarnedAchievement, error)
	GetHolders(ctx context.Context, achievementID uint) ([]models.User, error)
	GetHoldersCount(ctx context.Context, achievementID uint) (int64, error)
}

// StateSource lists and loads progression state.
type StateSource interface {
	GetOrCreate(ctx context.Context, userID uint) (*models.ProgressionState, error)
	ListAll(ctx context.Context) ([]models.ProgressionState, error)
}

// RewardApplier folds an achievement reward into persisted progression.
type RewardApplier interface {
	ApplyAchievementReward(ctx context.Context, userID uint, achievement *models.Achievement) (*models.ProgressionState, error)
}

// UserRepository interface for user operations.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
}

// Service handles achievement evaluation and awarding.
type Service struct {
	repo     AchievementRepository
	states   StateSource
	applier  RewardApplier
	userRepo UserRepository
	queue    *rewards.Queue
	cache    cache.Cache
	cacheTTL time.Duration
	clock    clockwork.Clock
	log      *logger.Logger
}

// NewService creates a new achievement service.
func NewService(
	repo *repository.AchievementRepository,
	states *repository.ProgressionRepository,
	applier *progression.Service,
	userRepo *repository.UserRepository,
	c cache.Cache,
	cacheTTL time.Duration,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(repo, states, applier, userRepo, applier.Queue(), c, cacheTTL, clockwork.NewRealClock(), log)
}

// NewServiceWithInterfaces creates a new achievement service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	repo AchievementRepository,
	states StateSource,
	applier RewardApplier,
	userRepo UserRepository,
	queue *rewards.Queue,
	c cache.Cache,
	cacheTTL time.Duration,
	clock clockwork.Clock,
	log *logger.Logger,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if queue == nil {
		queue = rewards.NewQueue(0)
	}
	return &Service{
		repo:     repo,
		states:   states,
		applier:  applier,
		userRepo: userRepo,
		queue:    queue,
		cache:    c,
		cacheTTL: cacheTTL,
		clock:    clock,
		log:      log,
	}
}

// CheckAchievements awards every active achievement the user newly qualifies for.
// Candidates are taken in catalog order and awarded one after another. An
// achievement already earned, including one granted concurrently, is skipped
// without reward. A failed reward fold is returned as an error, but the
// achievement stays earned and the remaining candidates are still processed.
func (s *Service) CheckAchievements(ctx context.Context, userID uint, state *models.ProgressionState) ([]models.Achievement, error) {
	if userID == 0 {
		return nil, progression.ErrNotAuthenticated
	}
	start := time.Now()
	defer func() {
		prommetrics.ObserveAchievementEvaluation(time.Since(start).Seconds())
	}()

	if state == nil {
		loaded, err := s.states.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", progression.ErrPersistence, err)
		}
		state = loaded
	}

	earned, err := s.repo.EarnedCodes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", progression.ErrPersistence, err)
	}

	catalog, err := s.repo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get achievements: %w", progression.ErrPersistence, err)
	}

	candidates := Qualifying(catalog, earned, state)
	if len(candidates) == 0 {
		return nil, nil
	}

	var (
		awarded []models.Achievement
		errs    []error
	)
	for i := range candidates {
		achievement := candidates[i]

		inserted, err := s.repo.InsertEarned(ctx, userID, achievement.ID, s.clock.Now())
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("achievement", achievement.Code).
				Msg("Failed to record earned achievement")
			errs = append(errs, fmt.Errorf("%w: %s: %w", progression.ErrPersistence, achievement.Code, err))
			continue
		}
		if !inserted {
			s.log.Debug().
				Uint("user_id", userID).
				Str("achievement", achievement.Code).
				Msg("Achievement already earned, skipping reward")
			continue
		}

		awarded = append(awarded, achievement)
		s.recordAward(ctx, userID, &achievement)

		reward := rewards.PendingReward{
			Type:  rewards.TypeAchievement,
			Value: achievement.Name,
		}
		if achievement.XPReward > 0 || achievement.CoinsReward > 0 {
			if _, err := s.applier.ApplyAchievementReward(ctx, userID, &achievement); err != nil {
				prommetrics.RecordRewardFoldFailure()
				s.log.Error().
					Err(err).
					Uint("user_id", userID).
					Str("achievement", achievement.Code).
					Int64("xp_reward", achievement.XPReward).
					Int64("coins_reward", achievement.CoinsReward).
					Msg("Achievement earned but reward could not be applied")
				errs = append(errs, fmt.Errorf("reward for %s: %w", achievement.Code, err))
			} else {
				reward.XPDelta = achievement.XPReward
				reward.CoinsDelta = achievement.CoinsReward
			}
		}
		s.queue.Enqueue(userID, reward)

		s.log.Info().
			Uint("user_id", userID).
			Str("achievement", achievement.Code).
			Int64("xp_reward", reward.XPDelta).
			Int64("coins_reward", reward.CoinsDelta).
			Msg("Achievement awarded")
	}

	if len(awarded) > 0 {
		s.invalidate(ctx, userID)
	}

	return awarded, errors.Join(errs...)
}

// Qualifying returns the active achievements not yet earned whose requirement
// state meets, in catalog order.
func Qualifying(catalog []models.Achievement, earned map[string]bool, state *models.ProgressionState) []models.Achievement {
	var out []models.Achievement
	for _, a := range catalog {
		if !a.IsActive || earned[a.Code] {
			continue
		}
		if Meets(&a, state) {
			out = append(out, a)
		}
	}
	return out
}

// Meets reports whether state satisfies the achievement's requirement.
func Meets(a *models.Achievement, state *models.ProgressionState) bool {
	var value int64
	switch a.RequirementType {
	case models.RequirementXP:
		value = state.XP
	case models.RequirementLevel:
		value = int64(state.Level)
	case models.RequirementStreak:
		value = int64(state.Streak)
	case models.RequirementActivities:
		value = state.TotalActivities
	default:
		return false
	}
	return value >= a.RequirementValue
}

// EvaluateAll re-checks every user against the catalog.
// This is typically run as a scheduled job.
// Returns the number of achievements awarded.
func (s *Service) EvaluateAll(ctx context.Context) (int, error) {
	s.log.Info().Msg("Starting achievement evaluation for all users")
	start := time.Now()

	states, err := s.states.ListAll(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list progression")
		return 0, fmt.Errorf("failed to list progression: %w", err)
	}

	awardsCount := 0
	for i := range states {
		if err := ctx.Err(); err != nil {
			return awardsCount, err
		}

		state := states[i]
		awarded, err := s.CheckAchievements(ctx, state.UserID, &state)
		awardsCount += len(awarded)
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", state.UserID).
				Msg("Failed to evaluate achievements")
			continue
		}
	}

	s.RefreshHolderMetrics(ctx)

	s.log.Info().
		Int("users_evaluated", len(states)).
		Int("achievements_awarded", awardsCount).
		Dur("duration", time.Since(start)).
		Msg("Achievement evaluation complete")

	return awardsCount, nil
}

// RefreshHolderMetrics sets the holders gauge for every catalog entry.
func (s *Service) RefreshHolderMetrics(ctx context.Context) {
	catalog, err := s.repo.GetAll(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load catalog for holder metrics")
		return
	}
	for _, a := range catalog {
		count, err := s.repo.GetHoldersCount(ctx, a.ID)
		if err != nil {
			continue
		}
		prommetrics.SetAchievementHolders(a.Code, count)
	}
}

// GetCatalog retrieves all achievements in catalog order.
func (s *Service) GetCatalog(ctx context.Context) ([]models.Achievement, error) {
	return s.repo.GetAll(ctx)
}

// GetAchievement retrieves an achievement by its ID.
func (s *Service) GetAchievement(ctx context.Context, id uint) (*models.Achievement, error) {
	return s.repo.GetByID(ctx, id)
}

// GetUserAchievements retrieves the achievements a user earned, newest first.
func (s *Service) GetUserAchievements(ctx context.Context, userID uint) ([]models.EarnedAchievement, error) {
	if userID == 0 {
		return nil, progression.ErrNotAuthenticated
	}

	key := cache.AchievementsKey(userID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil && raw != "" {
			var earned []models.EarnedAchievement
			if err := json.Unmarshal([]byte(raw), &earned); err == nil {
				return earned, nil
			}
		}
	}

	earned, err := s.repo.GetUserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", progression.ErrPersistence, err)
	}

	if s.cache != nil {
		if payload, err := json.Marshal(earned); err == nil {
			if err := s.cache.Set(ctx, key, string(payload), s.cacheTTL); err != nil {
				s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to cache achievements")
			}
		}
	}
	return earned, nil
}

// GetHolders retrieves users who have earned a specific achievement.
func (s *Service) GetHolders(ctx context.Context, achievementID uint) ([]models.User, error) {
	if _, err := s.repo.GetByID(ctx, achievementID); err != nil {
		return nil, err
	}
	return s.repo.GetHolders(ctx, achievementID)
}

func (s *Service) recordAward(ctx context.Context, userID uint, achievement *models.Achievement) {
	team := "unknown"
	if s.userRepo != nil {
		if user, err := s.userRepo.GetByID(userID); err == nil && user != nil && user.Team != "" {
			team = user.Team
		}
	}
	prommetrics.RecordAchievementAwarded(achievement.Code, team)

	if count, err := s.repo.GetHoldersCount(ctx, achievement.ID); err == nil {
		prommetrics.SetAchievementHolders(achievement.Code, count)
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
