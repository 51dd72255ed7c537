package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aimd54/sales-quest/internal/config"
	"github.com/aimd54/sales-quest/internal/mattermost"
	"github.com/aimd54/sales-quest/internal/service/leaderboard"
	"github.com/aimd54/sales-quest/pkg/logger"
)

type stubEvaluator struct {
	calls int
	err   error
}

func (s *stubEvaluator) EvaluateAll(context.Context) (int, error) {
	s.calls++
	return 2, s.err
}

type stubLeaderboard struct {
	entries []leaderboard.Entry
	err     error
	limit   int
}

func (s *stubLeaderboard) GetGlobalLeaderboard(_ context.Context, _ string, limit int) ([]leaderboard.Entry, error) {
	s.limit = limit
	return s.entries, s.err
}

type stubSender struct {
	enabled bool
	err     error
	title   string
	sent    [][]mattermost.DigestEntry
}

func (s *stubSender) Enabled() bool { return s.enabled }

func (s *stubSender) SendDailyDigest(_ context.Context, title string, entries []mattermost.DigestEntry) error {
	s.title = title
	s.sent = append(s.sent, entries)
	return s.err
}

func newTestService(cfg *config.Config, ev *stubEvaluator, lb *stubLeaderboard, sender *stubSender) *Service {
	return NewService(cfg, ev, lb, sender, logger.Nop())
}

func TestBuildCronExpression(t *testing.T) {
	tests := []struct {
		name         string
		time         string
		skipWeekends bool
		want         string
		wantErr      bool
	}{
		{name: "daily at 9am", time: "09:00", want: "0 9 * * *"},
		{name: "weekdays at 9am", time: "09:00", skipWeekends: true, want: "0 9 * * 1-5"},
		{name: "daily at 14:30", time: "14:30", want: "30 14 * * *"},
		{name: "invalid format no colon", time: "0900", wantErr: true},
		{name: "invalid hour", time: "25:00", wantErr: true},
		{name: "invalid minute", time: "09:60", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Scheduler: config.SchedulerConfig{
					DigestTime:   tt.time,
					SkipWeekends: tt.skipWeekends,
				},
			}

			s := &Service{config: cfg}

			got, err := s.buildCronExpression()

			if (err != nil) != tt.wantErr {
				t.Errorf("buildCronExpression() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if got != tt.want {
				t.Errorf("buildCronExpression() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildDigestEntries(t *testing.T) {
	standings := []leaderboard.Entry{
		{Rank: 1, Username: "alice", XP: 500, Level: 4, Streak: 3},
		{Rank: 2, Username: "", XP: 120, Level: 2},
		{Rank: 3, Username: "carol", XP: 0, Level: 1},
	}

	got := buildDigestEntries(standings)

	if len(got) != 2 {
		t.Fatalf("buildDigestEntries() returned %d entries, want 2", len(got))
	}
	if got[0].Username != "alice" || got[0].Rank != 1 || got[0].Streak != 3 {
		t.Errorf("Unexpected first entry: %+v", got[0])
	}
	if got[1].Username != "unknown" {
		t.Errorf("Expected 'unknown' for empty username, got %q", got[1].Username)
	}
}

func TestDigestTitle(t *testing.T) {
	title := digestTitle(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	if title != "Sales leaderboard, Monday, Mar 10" {
		t.Errorf("Unexpected title %q", title)
	}
}

func TestRunDailyDigest(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{DigestSize: 5}}
	lb := &stubLeaderboard{entries: []leaderboard.Entry{
		{Rank: 1, Username: "alice", XP: 300, Level: 3},
		{Rank: 2, Username: "bob", XP: 0, Level: 1},
	}}
	sender := &stubSender{enabled: true}

	s := newTestService(cfg, &stubEvaluator{}, lb, sender)
	s.runDailyDigest(context.Background())

	if lb.limit != 5 {
		t.Errorf("Expected digest size 5, got %d", lb.limit)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("Expected one digest, got %d", len(sender.sent))
	}
	if len(sender.sent[0]) != 1 || sender.sent[0][0].Username != "alice" {
		t.Errorf("Unexpected digest entries: %+v", sender.sent[0])
	}
	if !strings.HasPrefix(sender.title, "Sales leaderboard") {
		t.Errorf("Unexpected digest title %q", sender.title)
	}
}

func TestRunDailyDigest_SkipsWhenDisabled(t *testing.T) {
	lb := &stubLeaderboard{}
	sender := &stubSender{enabled: false}

	s := newTestService(&config.Config{}, &stubEvaluator{}, lb, sender)
	s.runDailyDigest(context.Background())

	if len(sender.sent) != 0 || lb.limit != 0 {
		t.Error("Expected no leaderboard query and no digest when Mattermost is disabled")
	}
}

func TestRunDailyDigest_NothingToSend(t *testing.T) {
	lb := &stubLeaderboard{entries: []leaderboard.Entry{{Rank: 1, Username: "bob"}}}
	sender := &stubSender{enabled: true}

	s := newTestService(&config.Config{}, &stubEvaluator{}, lb, sender)
	s.runDailyDigest(context.Background())

	if lb.limit != 10 {
		t.Errorf("Expected default digest size 10, got %d", lb.limit)
	}
	if len(sender.sent) != 0 {
		t.Error("Expected no digest without active sellers")
	}
}

func TestRunDailyDigest_Failures(t *testing.T) {
	t.Run("leaderboard error", func(t *testing.T) {
		sender := &stubSender{enabled: true}
		s := newTestService(&config.Config{}, &stubEvaluator{}, &stubLeaderboard{err: errors.New("db down")}, sender)
		s.runDailyDigest(context.Background())

		if len(sender.sent) != 0 {
			t.Error("Expected no digest when the leaderboard fails")
		}
	})

	t.Run("send error", func(t *testing.T) {
		lb := &stubLeaderboard{entries: []leaderboard.Entry{{Rank: 1, Username: "alice", XP: 10}}}
		sender := &stubSender{enabled: true, err: errors.New("webhook down")}
		s := newTestService(&config.Config{}, &stubEvaluator{}, lb, sender)

		// Must not panic; the failure is only logged.
		s.runDailyDigest(context.Background())

		if len(sender.sent) != 1 {
			t.Errorf("Expected one attempt, got %d", len(sender.sent))
		}
	})
}

func TestRunAchievementEvaluation(t *testing.T) {
	ev := &stubEvaluator{}
	s := newTestService(&config.Config{}, ev, &stubLeaderboard{}, &stubSender{})

	s.runAchievementEvaluation(context.Background())
	ev.err = errors.New("db down")
	s.runAchievementEvaluation(context.Background())

	if ev.calls != 2 {
		t.Errorf("Expected 2 evaluations, got %d", ev.calls)
	}
}

// blockingEvaluator runs until its context is cancelled.
type blockingEvaluator struct {
	started chan struct{}
}

func (b *blockingEvaluator) EvaluateAll(ctx context.Context) (int, error) {
	close(b.started)
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestStop_CancelsRunningSweep(t *testing.T) {
	ev := &blockingEvaluator{started: make(chan struct{})}
	s := NewService(&config.Config{}, ev, &stubLeaderboard{}, &stubSender{}, logger.Nop())

	done := make(chan struct{})
	go func() {
		s.achievementJob()
		close(done)
	}()

	select {
	case <-ev.started:
	case <-time.After(time.Second):
		t.Fatal("Sweep did not start")
	}

	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not cancel the running sweep")
	}
	if s.ctx.Err() == nil {
		t.Error("Expected job context to be cancelled after Stop")
	}
}

func TestStart(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestService(&config.Config{}, &stubEvaluator{}, &stubLeaderboard{}, &stubSender{})
		if err := s.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if s.cron != nil {
			t.Error("Expected no cron when the scheduler is disabled")
		}
		s.Stop()
	})

	t.Run("registers both jobs", func(t *testing.T) {
		cfg := &config.Config{Scheduler: config.SchedulerConfig{
			Enabled:                   true,
			DigestTime:                "09:00",
			AchievementEvaluationTime: "*/30 * * * *",
			Timezone:                  "Europe/Moscow",
		}}
		s := newTestService(cfg, &stubEvaluator{}, &stubLeaderboard{}, &stubSender{})
		if err := s.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		defer s.Stop()

		if got := len(s.cron.Entries()); got != 2 {
			t.Errorf("Expected 2 cron entries, got %d", got)
		}
	})

	t.Run("invalid timezone", func(t *testing.T) {
		cfg := &config.Config{Scheduler: config.SchedulerConfig{Enabled: true, DigestTime: "09:00", Timezone: "Mars/Olympus"}}
		s := newTestService(cfg, &stubEvaluator{}, &stubLeaderboard{}, &stubSender{})
		if err := s.Start(); err == nil {
			t.Error("Expected error for invalid timezone")
		}
	})

	t.Run("invalid achievement schedule", func(t *testing.T) {
		cfg := &config.Config{Scheduler: config.SchedulerConfig{
			Enabled:                   true,
			DigestTime:                "09:00",
			AchievementEvaluationTime: "every now and then",
			Timezone:                  "UTC",
		}}
		s := newTestService(cfg, &stubEvaluator{}, &stubLeaderboard{}, &stubSender{})
		if err := s.Start(); err == nil {
			t.Error("Expected error for invalid cron expression")
		}
	})
}
