// Package leaderboard provides leaderboard and ranking services.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aimd54/sales-quest/internal/models"
	"github.com/aimd54/sales-quest/internal/repository"
	"github.com/aimd54/sales-quest/pkg/logger"
)

// ErrUnknownMetric is returned for a leaderboard metric that cannot be ranked.
var ErrUnknownMetric = errors.New("unknown leaderboard metric")

// ErrUnknownPeriod is returned for a period name that cannot be resolved.
var ErrUnknownPeriod = errors.New("unknown leaderboard period")

// ErrNotRanked is returned when a user has no progression row to rank.
var ErrNotRanked = errors.New("user not found in leaderboard")

// Supported metrics.
const (
	MetricXP         = "xp"
	MetricLevel      = "level"
	MetricCoins      = "coins"
	MetricStreak     = "streak"
	MetricActivities = "activities"
)

// ProgressionRepository interface for standings queries.
type ProgressionRepository interface {
	Top(ctx context.Context, metric, team string, limit int) ([]repository.Standing, error)
	XPGainedSince(ctx context.Context, since time.Time, limit int) ([]repository.XPGain, error)
	GetByUserID(ctx context.Context, userID uint) (*models.ProgressionState, error)
}

// AchievementRepository interface for earned achievement lookups.
type AchievementRepository interface {
	GetUserAchievementCount(ctx context.Context, userID uint) (int64, error)
	GetUserAchievements(ctx context.Context, userID uint) ([]models.EarnedAchievement, error)
}

// UserRepository interface for user operations.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
}

// Entry represents a single entry in a leaderboard.
type Entry struct {
	UserID           uint   `json:"user_id"`
	Username         string `json:"username"`
	Team             string `json:"team"`
	XP               int64  `json:"xp"`
	Level            int    `json:"level"`
	Coins            int64  `json:"coins"`
	Streak           int    `json:"streak"`
	TotalActivities  int64  `json:"total_activities"`
	AchievementCount int    `json:"achievement_count"`
	Rank             int    `json:"rank"`
}

// PeriodEntry is a user's XP gained over a period.
type PeriodEntry struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	XPGained int64  `json:"xp_gained"`
	Rank     int    `json:"rank"`
}

// Service handles leaderboard generation and user statistics.
type Service struct {
	progressionRepo ProgressionRepository
	achievementRepo AchievementRepository
	userRepo        UserRepository
	clock           clockwork.Clock
	log             *logger.Logger
}

// NewService creates a new leaderboard service with concrete repository types.
func NewService(
	progressionRepo *repository.ProgressionRepository,
	achievementRepo *repository.AchievementRepository,
	userRepo *repository.UserRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		progressionRepo: progressionRepo,
		achievementRepo: achievementRepo,
		userRepo:        userRepo,
		clock:           clockwork.NewRealClock(),
		log:             log,
	}
}

// NewServiceWithInterfaces creates a new leaderboard service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	progressionRepo ProgressionRepository,
	achievementRepo AchievementRepository,
	userRepo UserRepository,
	clock clockwork.Clock,
	log *logger.Logger,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		progressionRepo: progressionRepo,
		achievementRepo: achievementRepo,
		userRepo:        userRepo,
		clock:           clock,
		log:             log,
	}
}

// ValidMetric reports whether metric can be ranked. An empty metric means xp.
func ValidMetric(metric string) bool {
	switch metric {
	case "", MetricXP, MetricLevel, MetricCoins, MetricStreak, MetricActivities:
		return true
	}
	return false
}

// GetGlobalLeaderboard returns the global leaderboard for a metric.
func (s *Service) GetGlobalLeaderboard(ctx context.Context, metric string, limit int) ([]Entry, error) {
	return s.getLeaderboard(ctx, "", metric, limit)
}

// GetTeamLeaderboard returns the leaderboard for a specific team.
func (s *Service) GetTeamLeaderboard(ctx context.Context, team, metric string, limit int) ([]Entry, error) {
	return s.getLeaderboard(ctx, team, metric, limit)
}

func (s *Service) getLeaderboard(ctx context.Context, team, metric string, limit int) ([]Entry, error) {
	if !ValidMetric(metric) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	if metric == "" {
		metric = MetricXP
	}

	standings, err := s.progressionRepo.Top(ctx, metric, team, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get standings: %w", err)
	}

	entries := make([]Entry, 0, len(standings))
	for i, st := range standings {
		entry := Entry{
			UserID:          st.UserID,
			Username:        st.Username,
			Team:            st.Team,
			XP:              st.XP,
			Level:           st.Level,
			Coins:           st.Coins,
			Streak:          st.Streak,
			TotalActivities: st.TotalActivities,
			Rank:            i + 1,
		}

		count, err := s.achievementRepo.GetUserAchievementCount(ctx, st.UserID)
		if err != nil {
			s.log.Warn().Err(err).Uint("user_id", st.UserID).Msg("Failed to get achievement count")
		} else {
			entry.AchievementCount = int(count)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// GetPeriodLeaderboard ranks users by XP gained within the period.
func (s *Service) GetPeriodLeaderboard(ctx context.Context, period string, limit int) ([]PeriodEntry, error) {
	since, err := s.periodStart(period)
	if err != nil {
		return nil, err
	}

	gains, err := s.progressionRepo.XPGainedSince(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get xp gains: %w", err)
	}

	entries := make([]PeriodEntry, 0, len(gains))
	for i, g := range gains {
		entries = append(entries, PeriodEntry{
			UserID:   g.UserID,
			Username: g.Username,
			XPGained: g.XP,
			Rank:     i + 1,
		})
	}
	return entries, nil
}

// GetUserRank returns the rank of a user for a metric, globally or within team.
func (s *Service) GetUserRank(ctx context.Context, userID uint, team, metric string) (int, error) {
	leaderboard, err := s.getLeaderboard(ctx, team, metric, 0)
	if err != nil {
		return 0, err
	}

	for _, entry := range leaderboard {
		if entry.UserID == userID {
			return entry.Rank, nil
		}
	}

	return 0, ErrNotRanked
}

// periodStart resolves a period name against the service clock.
func (s *Service) periodStart(period string) (time.Time, error) {
	now := s.clock.Now()

	switch period {
	case "day":
		return now.Add(-24 * time.Hour), nil
	case "week":
		return now.Add(-7 * 24 * time.Hour), nil
	case "month":
		return now.Add(-30 * 24 * time.Hour), nil
	case "year":
		return now.Add(-365 * 24 * time.Hour), nil
	case "all_time", "":
		return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}
}
