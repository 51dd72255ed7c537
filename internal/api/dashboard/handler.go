// Package dashboard provides REST API handlers for the gamification dashboard.
// It exposes endpoints for leaderboards, user progress, the achievement catalog,
// achievement holders and the level table.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sales-quest/internal/models"
	"github.com/aimd54/sales-quest/internal/repository"
	"github.com/aimd54/sales-quest/internal/service/achievements"
	"github.com/aimd54/sales-quest/internal/service/leaderboard"
	"github.com/aimd54/sales-quest/internal/service/levels"
	"github.com/aimd54/sales-quest/internal/service/progression"
	"github.com/aimd54/sales-quest/pkg/logger"
)

// AchievementService interface for achievement operations.
type AchievementService interface {
	GetUserAchievements(ctx context.Context, userID uint) ([]models.EarnedAchievement, error)
	GetCatalog(ctx context.Context) ([]models.Achievement, error)
	GetAchievement(ctx context.Context, id uint) (*models.Achievement, error)
	GetHolders(ctx context.Context, achievementID uint) ([]models.User, error)
}

// LeaderboardService interface for leaderboard operations.
type LeaderboardService interface {
	GetGlobalLeaderboard(ctx context.Context, metric string, limit int) ([]leaderboard.Entry, error)
	GetTeamLeaderboard(ctx context.Context, team, metric string, limit int) ([]leaderboard.Entry, error)
	GetPeriodLeaderboard(ctx context.Context, period string, limit int) ([]leaderboard.PeriodEntry, error)
	GetUserStats(ctx context.Context, userID uint) (*leaderboard.UserStats, error)
}

// ProgressService interface for progression reads.
type ProgressService interface {
	GetProgress(ctx context.Context, userID uint) (*progression.Snapshot, error)
	Table() *levels.Table
}

// UserRepository interface for user lookups.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
}

// Handler handles dashboard API requests.
type Handler struct {
	achievementService AchievementService
	leaderboardService LeaderboardService
	progressService    ProgressService
	userRepo           UserRepository
	log                *logger.Logger
}

// NewHandler creates a new dashboard handler.
func NewHandler(
	achievementService *achievements.Service,
	leaderboardService *leaderboard.Service,
	progressService *progression.Service,
	userRepo *repository.UserRepository,
	log *logger.Logger,
) *Handler {
	return &Handler{
		achievementService: achievementService,
		leaderboardService: leaderboardService,
		progressService:    progressService,
		userRepo:           userRepo,
		log:                log,
	}
}

// NewHandlerWithInterfaces creates a new dashboard handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	achievementService AchievementService,
	leaderboardService LeaderboardService,
	progressService ProgressService,
	userRepo UserRepository,
	log *logger.Logger,
) *Handler {
	return &Handler{
		achievementService: achievementService,
		leaderboardService: leaderboardService,
		progressService:    progressService,
		userRepo:           userRepo,
		log:                log,
	}
}

// RegisterRoutes mounts the read-only routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/leaderboard", h.GetGlobalLeaderboard)
	rg.GET("/leaderboard/:team", h.GetTeamLeaderboard)
	rg.GET("/users/:id/progress", h.GetUserProgress)
	rg.GET("/users/:id/stats", h.GetUserStats)
	rg.GET("/users/:id/achievements", h.GetUserAchievements)
	rg.GET("/achievements", h.GetAchievementCatalog)
	rg.GET("/achievements/:id", h.GetAchievementByID)
	rg.GET("/achievements/:id/holders", h.GetAchievementHolders)
	rg.GET("/levels", h.GetLevels)
}

// GetGlobalLeaderboard returns the global leaderboard.
// GET /api/v1/leaderboard?metric=xp&limit=10, or ?period=week for XP gained in a period.
func (h *Handler) GetGlobalLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if period := c.Query("period"); period != "" && period != "all_time" {
		h.getPeriodLeaderboard(c, period, limit)
		return
	}

	metric := c.DefaultQuery("metric", leaderboard.MetricXP)
	if err := h.validateMetric(metric); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboardService.GetGlobalLeaderboard(c.Request.Context(), metric, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get global leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	h.log.Debug().
		Str("metric", metric).
		Int("limit", limit).
		Int("entries", len(entries)).
		Msg("Retrieved global leaderboard")

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"metric":        metric,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

func (h *Handler) getPeriodLeaderboard(c *gin.Context, period string, limit int) {
	if err := h.validatePeriod(period); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboardService.GetPeriodLeaderboard(c.Request.Context(), period, limit)
	if err != nil {
		h.log.Error().Err(err).Str("period", period).Msg("Failed to get period leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"period":        period,
		"metric":        "xp_gained",
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetTeamLeaderboard returns the leaderboard for a specific team.
// GET /api/v1/leaderboard/:team?metric=xp&limit=10.
func (h *Handler) GetTeamLeaderboard(c *gin.Context) {
	team := c.Param("team")
	if team == "" {
		h.errorResponse(c, http.StatusBadRequest, "team parameter is required")
		return
	}

	metric := c.DefaultQuery("metric", leaderboard.MetricXP)
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validateMetric(metric); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboardService.GetTeamLeaderboard(c.Request.Context(), team, metric, limit)
	if err != nil {
		h.log.Error().Err(err).Str("team", team).Msg("Failed to get team leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve team leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"team":          team,
		"leaderboard":   entries,
		"metric":        metric,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetUserProgress returns another user's progression.
// GET /api/v1/users/:id/progress.
func (h *Handler) GetUserProgress(c *gin.Context) {
	userID, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.userRepo.GetByID(userID); err != nil {
		h.errorResponse(c, http.StatusNotFound, "User not found")
		return
	}

	snapshot, err := h.progressService.GetProgress(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user progress")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user progress")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"progress":     snapshot,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserStats returns statistics and ranks for a specific user.
// GET /api/v1/users/:id/stats.
func (h *Handler) GetUserStats(c *gin.Context) {
	userID, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.leaderboardService.GetUserStats(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.errorResponse(c, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user stats")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":        stats,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserAchievements returns achievements earned by a specific user.
// GET /api/v1/users/:id/achievements.
func (h *Handler) GetUserAchievements(c *gin.Context) {
	userID, err := h.parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	earned, err := h.achievementService.GetUserAchievements(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user achievements")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user achievements")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":            userID,
		"achievements":       earned,
		"total_achievements": len(earned),
		"generated_at":       time.Now().UTC(),
	})
}

// GetAchievementCatalog returns the whole achievement catalog in catalog order.
// GET /api/v1/achievements.
func (h *Handler) GetAchievementCatalog(c *gin.Context) {
	catalog, err := h.achievementService.GetCatalog(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get achievement catalog")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve achievement catalog")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"achievements":       catalog,
		"total_achievements": len(catalog),
		"generated_at":       time.Now().UTC(),
	})
}

// GetAchievementByID returns details for a specific achievement.
// GET /api/v1/achievements/:id.
func (h *Handler) GetAchievementByID(c *gin.Context) {
	achievementID, err := h.parseID(c, "achievement")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	achievement, err := h.achievementService.GetAchievement(c.Request.Context(), achievementID)
	if err != nil {
		h.notFoundOrError(c, err, "Achievement not found", "Failed to retrieve achievement")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"achievement":  achievement,
		"generated_at": time.Now().UTC(),
	})
}

// GetAchievementHolders returns users who have earned a specific achievement.
// GET /api/v1/achievements/:id/holders?limit=50.
func (h *Handler) GetAchievementHolders(c *gin.Context) {
	achievementID, err := h.parseID(c, "achievement")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := h.parseLimit(c, 50)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	holders, err := h.achievementService.GetHolders(c.Request.Context(), achievementID)
	if err != nil {
		h.notFoundOrError(c, err, "Achievement not found", "Failed to retrieve achievement holders")
		return
	}

	totalHolders := len(holders)
	if limit > 0 && len(holders) > limit {
		holders = holders[:limit]
	}

	c.JSON(http.StatusOK, gin.H{
		"achievement_id": achievementID,
		"holders":        holders,
		"total_holders":  totalHolders,
		"limited_to":     len(holders),
		"generated_at":   time.Now().UTC(),
	})
}

// GetLevels returns the level table.
// GET /api/v1/levels.
func (h *Handler) GetLevels(c *gin.Context) {
	table := h.progressService.Table()

	type level struct {
		Level int   `json:"level"`
		MinXP int64 `json:"min_xp"`
	}
	thresholds := table.Thresholds()
	out := make([]level, 0, len(thresholds))
	for i, t := range thresholds {
		out = append(out, level{Level: i + 1, MinXP: t})
	}

	c.JSON(http.StatusOK, gin.H{
		"levels":    out,
		"max_level": table.MaxLevel(),
	})
}

// Helper functions

func (h *Handler) notFoundOrError(c *gin.Context, err error, notFound, failed string) {
	if errors.Is(err, repository.ErrNotFound) {
		h.errorResponse(c, http.StatusNotFound, notFound)
		return
	}
	h.log.Error().Err(err).Str("path", c.FullPath()).Msg(failed)
	h.errorResponse(c, http.StatusInternalServerError, failed)
}

// parseID extracts and validates a numeric ID from the URL parameter.
func (h *Handler) parseID(c *gin.Context, kind string) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", kind, idStr)
	}
	return uint(id), nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}

	if limit > 1000 {
		return 0, fmt.Errorf("limit cannot exceed 1000")
	}

	return limit, nil
}

// validatePeriod validates the period parameter.
func (h *Handler) validatePeriod(period string) error {
	validPeriods := map[string]bool{
		"day":      true,
		"week":     true,
		"month":    true,
		"year":     true,
		"all_time": true,
	}

	if !validPeriods[period] {
		return fmt.Errorf("invalid period: %s (valid: day, week, month, year, all_time)", period)
	}
	return nil
}

// validateMetric validates the metric parameter.
func (h *Handler) validateMetric(metric string) error {
	if !leaderboard.ValidMetric(metric) {
		return fmt.Errorf("invalid metric: %s (valid: xp, level, coins, streak, activities)", metric)
	}
	return nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
