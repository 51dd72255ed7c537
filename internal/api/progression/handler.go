// Package progression provides the authenticated REST API for a user's own
// XP, coins, achievements and pending rewards.
package progression

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/sales-quest/internal/auth"
	"github.com/aimd54/sales-quest/internal/models"
	"github.com/aimd54/sales-quest/internal/repository"
	"github.com/aimd54/sales-quest/internal/service/achievements"
	ledger "github.com/aimd54/sales-quest/internal/service/progression"
	"github.com/aimd54/sales-quest/internal/service/rewards"
	"github.com/aimd54/sales-quest/pkg/logger"
)

// LedgerService interface for progression operations.
type LedgerService interface {
	GetProgress(ctx context.Context, userID uint) (*ledger.Snapshot, error)
	AddXP(ctx context.Context, userID uint, amount int64) (*ledger.XPResult, error)
	RecordActivity(ctx context.Context, userID uint, kind string) (*ledger.XPResult, error)
	AddCoins(ctx context.Context, userID uint, amount int64, reason string) (*models.ProgressionState, error)
	SpendCoins(ctx context.Context, userID uint, amount int64, reason string) (*models.ProgressionState, error)
	ListActivities(ctx context.Context, userID uint, limit int) ([]models.ActivityEvent, error)
	ListCoinTransactions(ctx context.Context, userID uint, limit int) ([]models.CoinTransaction, error)
}

// AchievementService interface for achievement operations.
type AchievementService interface {
	CheckAchievements(ctx context.Context, userID uint, state *models.ProgressionState) ([]models.Achievement, error)
	GetUserAchievements(ctx context.Context, userID uint) ([]models.EarnedAchievement, error)
}

// RewardQueue interface for pending reward access.
type RewardQueue interface {
	Peek(userID uint) []rewards.PendingReward
	Dequeue(userID uint) (rewards.PendingReward, bool)
}

// Handler handles the /me API requests.
type Handler struct {
	ledger       LedgerService
	achievements AchievementService
	queue        RewardQueue
	log          *logger.Logger
}

// NewHandler creates a new progression handler.
func NewHandler(ledgerService *ledger.Service, achievementService *achievements.Service, log *logger.Logger) *Handler {
	return &Handler{
		ledger:       ledgerService,
		achievements: achievementService,
		queue:        ledgerService.Queue(),
		log:          log,
	}
}

// NewHandlerWithInterfaces creates a new progression handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(ledgerService LedgerService, achievementService AchievementService, queue RewardQueue, log *logger.Logger) *Handler {
	return &Handler{
		ledger:       ledgerService,
		achievements: achievementService,
		queue:        queue,
		log:          log,
	}
}

// RegisterRoutes mounts the /me routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	me := rg.Group("/me")
	me.GET("/progress", h.GetProgress)
	me.POST("/xp", h.AddXP)
	me.GET("/activities", h.ListActivities)
	me.POST("/activities", h.RecordActivity)
	me.POST("/coins", h.AddCoins)
	me.POST("/coins/spend", h.SpendCoins)
	me.GET("/coins/transactions", h.ListCoinTransactions)
	me.GET("/achievements", h.GetAchievements)
	me.POST("/achievements/check", h.CheckAchievements)
	me.GET("/rewards", h.PeekRewards)
	me.POST("/rewards/next", h.NextReward)
}

type xpRequest struct {
	Amount int64 `json:"amount"`
}

type activityRequest struct {
	Kind string `json:"kind" binding:"required"`
}

type coinsRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// GetProgress returns the caller's progression.
// GET /api/v1/me/progress.
func (h *Handler) GetProgress(c *gin.Context) {
	userID := auth.UserID(c)

	snapshot, err := h.ledger.GetProgress(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "Failed to get progress")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"progress":     snapshot,
		"generated_at": time.Now().UTC(),
	})
}

// AddXP awards XP to the caller.
// POST /api/v1/me/xp {"amount": 50}.
func (h *Handler) AddXP(c *gin.Context) {
	var req xpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := auth.UserID(c)
	result, err := h.ledger.AddXP(c.Request.Context(), userID, req.Amount)
	if err != nil {
		h.fail(c, err, "Failed to add XP")
		return
	}

	c.JSON(http.StatusOK, result)
}

// RecordActivity records a sales event for the caller.
// POST /api/v1/me/activities {"kind": "order_paid"}.
func (h *Handler) RecordActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "kind is required")
		return
	}

	userID := auth.UserID(c)
	result, err := h.ledger.RecordActivity(c.Request.Context(), userID, req.Kind)
	if err != nil {
		h.fail(c, err, "Failed to record activity")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListActivities returns the caller's recent ledger events.
// GET /api/v1/me/activities?limit=50.
func (h *Handler) ListActivities(c *gin.Context) {
	limit, err := parseLimit(c, 50)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	userID := auth.UserID(c)
	events, err := h.ledger.ListActivities(c.Request.Context(), userID, limit)
	if err != nil {
		h.fail(c, err, "Failed to list activities")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"activities": events,
		"total":      len(events),
	})
}

// AddCoins grants coins to the caller.
// POST /api/v1/me/coins {"amount": 10, "reason": "bonus"}.
func (h *Handler) AddCoins(c *gin.Context) {
	var req coinsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := auth.UserID(c)
	state, err := h.ledger.AddCoins(c.Request.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		h.fail(c, err, "Failed to add coins")
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": state})
}

// SpendCoins spends the caller's coins.
// POST /api/v1/me/coins/spend {"amount": 10, "reason": "mug"}.
func (h *Handler) SpendCoins(c *gin.Context) {
	var req coinsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := auth.UserID(c)
	state, err := h.ledger.SpendCoins(c.Request.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		h.fail(c, err, "Failed to spend coins")
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": state})
}

// ListCoinTransactions returns the caller's coin ledger.
// GET /api/v1/me/coins/transactions?limit=50.
func (h *Handler) ListCoinTransactions(c *gin.Context) {
	limit, err := parseLimit(c, 50)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	userID := auth.UserID(c)
	txs, err := h.ledger.ListCoinTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		h.fail(c, err, "Failed to list coin transactions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"total":        len(txs),
	})
}

// GetAchievements returns the achievements the caller earned.
// GET /api/v1/me/achievements.
func (h *Handler) GetAchievements(c *gin.Context) {
	userID := auth.UserID(c)

	earned, err := h.achievements.GetUserAchievements(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "Failed to get achievements")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"achievements":       earned,
		"total_achievements": len(earned),
	})
}

// CheckAchievements evaluates the catalog against the caller's current state.
// POST /api/v1/me/achievements/check.
func (h *Handler) CheckAchievements(c *gin.Context) {
	userID := auth.UserID(c)

	awarded, err := h.achievements.CheckAchievements(c.Request.Context(), userID, nil)
	if err != nil && len(awarded) == 0 {
		h.fail(c, err, "Failed to check achievements")
		return
	}
	if err != nil {
		// Awards are committed even when a reward could not be applied.
		h.log.Warn().Err(err).Uint("user_id", userID).Msg("Achievement check completed with errors")
	}

	c.JSON(http.StatusOK, gin.H{
		"awarded": awarded,
		"count":   len(awarded),
	})
}

// PeekRewards lists the caller's pending rewards without consuming them.
// GET /api/v1/me/rewards.
func (h *Handler) PeekRewards(c *gin.Context) {
	userID := auth.UserID(c)
	if userID == 0 {
		h.fail(c, ledger.ErrNotAuthenticated, "Failed to list rewards")
		return
	}

	pending := h.queue.Peek(userID)
	c.JSON(http.StatusOK, gin.H{
		"rewards": pending,
		"total":   len(pending),
	})
}

// NextReward consumes the caller's oldest pending reward.
// POST /api/v1/me/rewards/next. Responds 204 when nothing is pending.
func (h *Handler) NextReward(c *gin.Context) {
	userID := auth.UserID(c)
	if userID == 0 {
		h.fail(c, ledger.ErrNotAuthenticated, "Failed to dequeue reward")
		return
	}

	reward, ok := h.queue.Dequeue(userID)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, reward)
}

// fail maps service errors to HTTP responses.
func (h *Handler) fail(c *gin.Context, err error, logMsg string) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Uint("user_id", auth.UserID(c)).Msg(logMsg)
	} else {
		h.log.Debug().Err(err).Uint("user_id", auth.UserID(c)).Int("status", status).Msg(logMsg)
	}
	h.errorResponse(c, status, message)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrNotAuthenticated):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrUnknownActivity):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusConflict, err.Error()
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// parseLimit extracts and validates the limit query parameter.
func parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 || limit > 500 {
		return 0, fmt.Errorf("limit must be between 1 and 500")
	}
	return limit, nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
