package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordXPAwarded(t *testing.T) {
	XPAwardedTotal.Reset()

	RecordXPAwarded("activity", 50)
	RecordXPAwarded("activity", 25)
	RecordXPAwarded("achievement", 20)

	if got := testutil.ToFloat64(XPAwardedTotal.WithLabelValues("activity")); got != 75 {
		t.Errorf("Expected activity xp = 75, got %f", got)
	}
	if got := testutil.ToFloat64(XPAwardedTotal.WithLabelValues("achievement")); got != 20 {
		t.Errorf("Expected achievement xp = 20, got %f", got)
	}
}

func TestRecordActivityAndLevelUp(t *testing.T) {
	ActivitiesRecordedTotal.Reset()
	LevelUpsTotal.Reset()

	RecordActivity("order_paid")
	RecordActivity("order_paid")
	RecordLevelUp("2")

	if got := testutil.ToFloat64(ActivitiesRecordedTotal.WithLabelValues("order_paid")); got != 2 {
		t.Errorf("Expected order_paid count = 2, got %f", got)
	}
	if got := testutil.ToFloat64(LevelUpsTotal.WithLabelValues("2")); got != 1 {
		t.Errorf("Expected level 2 count = 1, got %f", got)
	}
}

func TestCoinCounters(t *testing.T) {
	grantedBefore := testutil.ToFloat64(CoinsGrantedTotal)
	spentBefore := testutil.ToFloat64(CoinsSpentTotal)
	rejectedBefore := testutil.ToFloat64(SpendRejectionsTotal)

	RecordCoinsGranted(40)
	RecordCoinsSpent(15)
	RecordSpendRejected()

	if got := testutil.ToFloat64(CoinsGrantedTotal) - grantedBefore; got != 40 {
		t.Errorf("Expected 40 coins granted, got %f", got)
	}
	if got := testutil.ToFloat64(CoinsSpentTotal) - spentBefore; got != 15 {
		t.Errorf("Expected 15 coins spent, got %f", got)
	}
	if got := testutil.ToFloat64(SpendRejectionsTotal) - rejectedBefore; got != 1 {
		t.Errorf("Expected 1 rejection, got %f", got)
	}
}

func TestPendingRewardsGauge(t *testing.T) {
	PendingRewards.Set(0)
	RewardsEnqueuedTotal.Reset()

	RecordRewardEnqueued("xp")
	RecordRewardEnqueued("level-up")
	RecordRewardEnqueued("xp")
	RecordRewardsDelivered(2)

	if got := testutil.ToFloat64(PendingRewards); got != 1 {
		t.Errorf("Expected 1 pending reward, got %f", got)
	}
	if got := testutil.ToFloat64(RewardsEnqueuedTotal.WithLabelValues("xp")); got != 2 {
		t.Errorf("Expected 2 xp rewards enqueued, got %f", got)
	}
}

func TestAchievementMetrics(t *testing.T) {
	AchievementsAwardedTotal.Reset()
	AchievementHolders.Reset()

	RecordAchievementAwarded("first-steps", "north")
	SetAchievementHolders("first-steps", 12)

	if got := testutil.ToFloat64(AchievementsAwardedTotal.WithLabelValues("first-steps", "north")); got != 1 {
		t.Errorf("Expected 1 award, got %f", got)
	}
	if got := testutil.ToFloat64(AchievementHolders.WithLabelValues("first-steps")); got != 12 {
		t.Errorf("Expected 12 holders, got %f", got)
	}

	ObserveAchievementEvaluation(0.01)
	if count := testutil.CollectAndCount(AchievementEvaluationDurationSeconds); count != 1 {
		t.Errorf("Expected 1 histogram series, got %d", count)
	}
}

func TestSchedulerMetrics(t *testing.T) {
	SchedulerJobsRunTotal.Reset()

	RecordSchedulerJobRun("achievement_sweep", "success")
	RecordSchedulerJobRun("achievement_sweep", "failure")
	RecordSchedulerJobRun("daily_digest", "success")
	SetSchedulerLastRun("daily_digest")
	ObserveSchedulerJobDuration("daily_digest", 0.5)

	if got := testutil.ToFloat64(SchedulerJobsRunTotal.WithLabelValues("achievement_sweep", "success")); got != 1 {
		t.Errorf("Expected 1 successful sweep, got %f", got)
	}
	if got := testutil.ToFloat64(SchedulerLastRunTimestamp.WithLabelValues("daily_digest")); got <= 0 {
		t.Errorf("Expected last run timestamp to be set, got %f", got)
	}
}
