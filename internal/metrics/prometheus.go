// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the progression engine.
var (
	// Ledger counters.
	XPAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_xp_awarded_total",
			Help: "Total XP awarded, by source",
		},
		[]string{"source"},
	)

	ActivitiesRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_activities_recorded_total",
			Help: "Total ledger events recorded, by activity kind",
		},
		[]string{"kind"},
	)

	LevelUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_level_ups_total",
			Help: "Total level-ups, by level reached",
		},
		[]string{"level"},
	)

	CoinsGrantedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_coins_granted_total",
			Help: "Total coins granted",
		},
	)

	CoinsSpentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_coins_spent_total",
			Help: "Total coins spent",
		},
	)

	SpendRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_spend_rejections_total",
			Help: "Total spend attempts rejected for insufficient balance",
		},
	)

	VersionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_version_conflicts_total",
			Help: "Total compare-and-swap attempts lost to a concurrent writer",
		},
	)

	OperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_operation_errors_total",
			Help: "Total failed ledger operations, by operation",
		},
		[]string{"operation"},
	)

	// Reward queue.
	PendingRewards = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "progression_pending_rewards",
			Help: "Current number of undelivered pending rewards",
		},
	)

	RewardsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_rewards_enqueued_total",
			Help: "Total pending rewards enqueued, by type",
		},
		[]string{"type"},
	)

	// Scheduler metrics.
	SchedulerJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_run_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerNotificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_notifications_failed_total",
			Help: "Total failed notification attempts",
		},
		[]string{"reason"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Unix timestamp of last scheduler run",
		},
		[]string{"job"},
	)

	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Time taken to execute a scheduler job",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"job"},
	)

	// Achievement metrics.
	AchievementsAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievements_awarded_total",
			Help: "Total number of achievements awarded",
		},
		[]string{"achievement", "team"},
	)

	AchievementHolders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "achievement_holders",
			Help: "Current number of users holding each achievement",
		},
		[]string{"achievement"},
	)

	RewardFoldFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "achievement_reward_fold_failures_total",
			Help: "Total awarded achievements whose reward could not be applied",
		},
	)

	AchievementEvaluationDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "achievement_evaluation_duration_seconds",
			Help:    "Time taken to evaluate achievements for one user",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
	)
)

// RecordXPAwarded records XP granted from a source ("activity", "achievement", "manual").
func RecordXPAwarded(source string, amount int64) {
	XPAwardedTotal.WithLabelValues(source).Add(float64(amount))
}

// RecordActivity records one ledger event.
func RecordActivity(kind string) {
	ActivitiesRecordedTotal.WithLabelValues(kind).Inc()
}

// RecordLevelUp records a level-up.
func RecordLevelUp(level string) {
	LevelUpsTotal.WithLabelValues(level).Inc()
}

// RecordCoinsGranted records coins added to a balance.
func RecordCoinsGranted(amount int64) {
	CoinsGrantedTotal.Add(float64(amount))
}

// RecordCoinsSpent records coins removed from a balance.
func RecordCoinsSpent(amount int64) {
	CoinsSpentTotal.Add(float64(amount))
}

// RecordSpendRejected records a spend refused for insufficient balance.
func RecordSpendRejected() {
	SpendRejectionsTotal.Inc()
}

// RecordVersionConflict records a lost compare-and-swap attempt.
func RecordVersionConflict() {
	VersionConflictsTotal.Inc()
}

// RecordOperationError records a failed ledger operation.
func RecordOperationError(operation string) {
	OperationErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordRewardEnqueued records a new pending reward.
func RecordRewardEnqueued(rewardType string) {
	RewardsEnqueuedTotal.WithLabelValues(rewardType).Inc()
	PendingRewards.Inc()
}

// RecordRewardsDelivered records pending rewards leaving the queue.
func RecordRewardsDelivered(count int) {
	PendingRewards.Sub(float64(count))
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobsRunTotal.WithLabelValues(job, status).Inc()
}

// RecordSchedulerNotificationFailed records a failed notification attempt.
func RecordSchedulerNotificationFailed(reason string) {
	SchedulerNotificationsFailedTotal.WithLabelValues(reason).Inc()
}

// SetSchedulerLastRun sets the timestamp of the last run of a job.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSchedulerJobDuration observes the duration of a scheduler job.
func ObserveSchedulerJobDuration(job string, seconds float64) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}

// RecordAchievementAwarded records an achievement award event.
func RecordAchievementAwarded(code, team string) {
	AchievementsAwardedTotal.WithLabelValues(code, team).Inc()
}

// SetAchievementHolders sets the number of holders for an achievement.
func SetAchievementHolders(code string, count int64) {
	AchievementHolders.WithLabelValues(code).Set(float64(count))
}

// RecordRewardFoldFailure records an achievement reward that could not be applied.
func RecordRewardFoldFailure() {
	RewardFoldFailuresTotal.Inc()
}

// ObserveAchievementEvaluation observes the duration of one evaluation.
func ObserveAchievementEvaluation(seconds float64) {
	AchievementEvaluationDurationSeconds.Observe(seconds)
}
