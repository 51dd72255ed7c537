// Package scheduler runs the periodic achievement sweep and the daily leaderboard digest.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/sales-quest/internal/config"
	"github.com/aimd54/sales-quest/internal/mattermost"
	prommetrics "github.com/aimd54/sales-quest/internal/metrics"
	"github.com/aimd54/sales-quest/internal/service/leaderboard"
	"github.com/aimd54/sales-quest/pkg/logger"
)

const (
	jobDigest      = "daily_digest"
	jobAchievement = "achievement_sweep"
)

// AchievementEvaluator re-checks every user against the catalog.
type AchievementEvaluator interface {
	EvaluateAll(ctx context.Context) (int, error)
}

// LeaderboardSource provides the standings for the digest.
type LeaderboardSource interface {
	GetGlobalLeaderboard(ctx context.Context, metric string, limit int) ([]leaderboard.Entry, error)
}

// DigestSender delivers the digest to chat.
type DigestSender interface {
	Enabled() bool
	SendDailyDigest(ctx context.Context, title string, entries []mattermost.DigestEntry) error
}

// Service handles scheduled jobs.
type Service struct {
	config      *config.Config
	achievement AchievementEvaluator
	leaderboard LeaderboardSource
	notifier    DigestSender
	log         *logger.Logger
	cron        *cron.Cron
	location    *time.Location

	// ctx is handed to every job and cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new scheduler service.
func NewService(
	cfg *config.Config,
	achievement AchievementEvaluator,
	leaderboardSource LeaderboardSource,
	notifier DigestSender,
	log *logger.Logger,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config:      cfg,
		achievement: achievement,
		leaderboard: leaderboardSource,
		notifier:    notifier,
		log:         log,
		location:    time.UTC,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := time.LoadLocation(s.config.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}
	s.location = location
	s.cron = cron.New(cron.WithLocation(location))

	cronExpr, err := s.buildCronExpression()
	if err != nil {
		return fmt.Errorf("failed to build cron expression: %w", err)
	}

	_, err = s.cron.AddFunc(cronExpr, s.digestJob)
	if err != nil {
		return fmt.Errorf("failed to register daily digest job: %w", err)
	}

	if s.config.Scheduler.AchievementEvaluationTime != "" && s.achievement != nil {
		_, err = s.cron.AddFunc(s.config.Scheduler.AchievementEvaluationTime, s.achievementJob)
		if err != nil {
			return fmt.Errorf("failed to register achievement evaluation job: %w", err)
		}
		s.log.Info().
			Str("schedule", s.config.Scheduler.AchievementEvaluationTime).
			Msg("Achievement evaluation job registered")
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", cronExpr).
		Str("timezone", s.config.Scheduler.Timezone).
		Str("time", s.config.Scheduler.DigestTime).
		Bool("skip_weekends", s.config.Scheduler.SkipWeekends).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Service) Stop() {
	s.cancel()
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// buildCronExpression generates the digest cron expression from config.
func (s *Service) buildCronExpression() (string, error) {
	// Parse time string (format: "HH:MM")
	parts := strings.Split(s.config.Scheduler.DigestTime, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", s.config.Scheduler.DigestTime)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %q", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %q", parts[1])
	}

	// Format: "minute hour day month weekday"
	if s.config.Scheduler.SkipWeekends {
		return fmt.Sprintf("%d %d * * 1-5", minute, hour), nil
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// runDailyDigest posts the top of the XP leaderboard to Mattermost.
func (s *Service) runDailyDigest(ctx context.Context) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSchedulerJobDuration(jobDigest, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(jobDigest)
	}()

	if s.notifier == nil || !s.notifier.Enabled() {
		s.log.Debug().Msg("Mattermost disabled, skipping daily digest")
		prommetrics.RecordSchedulerJobRun(jobDigest, "skipped")
		return
	}

	s.log.Info().Msg("Running daily digest job")

	size := s.config.Scheduler.DigestSize
	if size <= 0 {
		size = 10
	}

	standings, err := s.leaderboard.GetGlobalLeaderboard(ctx, leaderboard.MetricXP, size)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load leaderboard for digest")
		prommetrics.RecordSchedulerJobRun(jobDigest, "error")
		prommetrics.RecordSchedulerNotificationFailed("query_error")
		return
	}

	entries := buildDigestEntries(standings)
	if len(entries) == 0 {
		s.log.Debug().Msg("No active sellers to put in the digest")
		prommetrics.RecordSchedulerJobRun(jobDigest, "success")
		return
	}

	title := digestTitle(time.Now().In(s.location))
	sendStart := time.Now()
	if err := s.notifier.SendDailyDigest(ctx, title, entries); err != nil {
		s.log.Error().
			Err(err).
			Dur("send_duration", time.Since(sendStart)).
			Msg("Failed to send daily digest")
		prommetrics.RecordSchedulerJobRun(jobDigest, "error")
		prommetrics.RecordSchedulerNotificationFailed("mattermost_error")
		return
	}

	prommetrics.RecordSchedulerJobRun(jobDigest, "success")
	s.log.Info().
		Int("entries", len(entries)).
		Dur("total_duration", time.Since(start)).
		Msg("Successfully sent daily digest")
}

func (s *Service) digestJob() {
	s.runDailyDigest(s.ctx)
}

func (s *Service) achievementJob() {
	s.runAchievementEvaluation(s.ctx)
}

// runAchievementEvaluation executes the achievement sweep.
func (s *Service) runAchievementEvaluation(ctx context.Context) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSchedulerJobDuration(jobAchievement, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(jobAchievement)
	}()

	s.log.Info().Msg("Running achievement evaluation job")

	awardsCount, err := s.achievement.EvaluateAll(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Achievement evaluation job failed")
		prommetrics.RecordSchedulerJobRun(jobAchievement, "error")
		return
	}

	prommetrics.RecordSchedulerJobRun(jobAchievement, "success")
	s.log.Info().
		Int("achievements_awarded", awardsCount).
		Dur("duration", time.Since(start)).
		Msg("Achievement evaluation job completed successfully")
}
