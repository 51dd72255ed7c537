package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/aimd54/sales-quest/internal/models"
	"github.com/aimd54/sales-quest/internal/repository"
)

// UserStats represents comprehensive statistics for a user.
type UserStats struct {
	UserID          uint                 `json:"user_id"`
	Username        string               `json:"username"`
	Team            string               `json:"team"`
	XP              int64                `json:"xp"`
	Level           int                  `json:"level"`
	Coins           int64                `json:"coins"`
	Streak          int                  `json:"streak"`
	TotalActivities int64                `json:"total_activities"`
	Achievements    []models.Achievement `json:"achievements"`
	GlobalRank      int                  `json:"global_rank"`
	TeamRank        int                  `json:"team_rank"`
}

// GetUserStats returns comprehensive statistics for a user.
// A user without any recorded progression gets zeroed level 1 stats and no rank.
func (s *Service) GetUserStats(ctx context.Context, userID uint) (*UserStats, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, repository.ErrNotFound
	}

	stats := &UserStats{
		UserID:   userID,
		Username: user.Username,
		Team:     user.Team,
		Level:    1,
	}

	state, err := s.progressionRepo.GetByUserID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return stats, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get progression: %w", err)
	}

	stats.XP = state.XP
	stats.Level = state.Level
	stats.Coins = state.Coins
	stats.Streak = state.Streak
	stats.TotalActivities = state.TotalActivities

	earned, err := s.achievementRepo.GetUserAchievements(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get user achievements")
	} else {
		for _, e := range earned {
			if e.Achievement.ID != 0 {
				stats.Achievements = append(stats.Achievements, e.Achievement)
			}
		}
	}

	globalRank, err := s.GetUserRank(ctx, userID, "", MetricXP)
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get global rank")
	} else {
		stats.GlobalRank = globalRank
	}

	if user.Team != "" {
		teamRank, err := s.GetUserRank(ctx, userID, user.Team, MetricXP)
		if err != nil {
			s.log.Warn().Err(err).Uint("user_id", userID).Str("team", user.Team).Msg("Failed to get team rank")
		} else {
			stats.TeamRank = teamRank
		}
	}

	return stats, nil
}
