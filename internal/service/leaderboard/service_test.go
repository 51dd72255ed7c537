package leaderboard

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aimd54/sales-quest/internal/models"
	"github.com/aimd54/sales-quest/internal/repository"
	"github.com/aimd54/sales-quest/pkg/logger"
)

// Mock repositories for testing
type mockProgressionRepository struct {
	standings []repository.Standing
	gains     []repository.XPGain
	since     time.Time
	topErr    error
}

func (m *mockProgressionRepository) Top(_ context.Context, metric, team string, limit int) ([]repository.Standing, error) {
	if m.topErr != nil {
		return nil, m.topErr
	}
	var out []repository.Standing
	for _, st := range m.standings {
		if team == "" || st.Team == team {
			out = append(out, st)
		}
	}
	value := func(st repository.Standing) int64 {
		switch metric {
		case MetricLevel:
			return int64(st.Level)
		case MetricCoins:
			return st.Coins
		case MetricStreak:
			return int64(st.Streak)
		case MetricActivities:
			return st.TotalActivities
		default:
			return st.XP
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if value(out[i]) != value(out[j]) {
			return value(out[i]) > value(out[j])
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockProgressionRepository) XPGainedSince(_ context.Context, since time.Time, limit int) ([]repository.XPGain, error) {
	m.since = since
	if limit > 0 && len(m.gains) > limit {
		return m.gains[:limit], nil
	}
	return m.gains, nil
}

func (m *mockProgressionRepository) GetByUserID(_ context.Context, userID uint) (*models.ProgressionState, error) {
	for _, st := range m.standings {
		if st.UserID == userID {
			return &models.ProgressionState{
				UserID:          st.UserID,
				XP:              st.XP,
				Level:           st.Level,
				Coins:           st.Coins,
				Streak:          st.Streak,
				TotalActivities: st.TotalActivities,
			}, nil
		}
	}
	return nil, repository.ErrNotFound
}

type mockAchievementRepository struct {
	counts map[uint]int64
	earned map[uint][]models.EarnedAchievement
}

func (m *mockAchievementRepository) GetUserAchievementCount(_ context.Context, userID uint) (int64, error) {
	return m.counts[userID], nil
}

func (m *mockAchievementRepository) GetUserAchievements(_ context.Context, userID uint) ([]models.EarnedAchievement, error) {
	return m.earned[userID], nil
}

type mockUserRepository struct {
	users map[uint]*models.User
}

func (m *mockUserRepository) GetByID(id uint) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return user, nil
}

// Test setup helper
func setupTestService() (*Service, *mockProgressionRepository, *mockAchievementRepository, *clockwork.FakeClock) {
	progressionRepo := &mockProgressionRepository{
		standings: []repository.Standing{
			{UserID: 1, Username: "alice", Team: "north", XP: 300, Level: 3, Coins: 10, Streak: 5, TotalActivities: 12},
			{UserID: 2, Username: "bob", Team: "north", XP: 500, Level: 4, Coins: 80, Streak: 1, TotalActivities: 9},
			{UserID: 3, Username: "charlie", Team: "south", XP: 300, Level: 3, Coins: 40, Streak: 2, TotalActivities: 20},
		},
	}
	achievementRepo := &mockAchievementRepository{
		counts: map[uint]int64{1: 2, 2: 4},
		earned: map[uint][]models.EarnedAchievement{
			1: {
				{AchievementID: 7, Achievement: models.Achievement{ID: 7, Code: "century"}},
				{AchievementID: 8},
			},
		},
	}
	userRepo := &mockUserRepository{users: map[uint]*models.User{
		1: {ID: 1, Username: "alice", Team: "north"},
		2: {ID: 2, Username: "bob", Team: "north"},
		3: {ID: 3, Username: "charlie", Team: "south"},
		4: {ID: 4, Username: "dana", Team: "south"},
	}}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	service := NewServiceWithInterfaces(progressionRepo, achievementRepo, userRepo, clock, logger.Nop())
	return service, progressionRepo, achievementRepo, clock
}

func TestGetGlobalLeaderboard(t *testing.T) {
	service, _, _, _ := setupTestService()

	leaderboard, err := service.GetGlobalLeaderboard(context.Background(), MetricXP, 10)
	if err != nil {
		t.Fatalf("GetGlobalLeaderboard failed: %v", err)
	}

	if len(leaderboard) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(leaderboard))
	}
	if leaderboard[0].Username != "bob" || leaderboard[0].Rank != 1 {
		t.Errorf("Expected bob at rank 1, got %s at %d", leaderboard[0].Username, leaderboard[0].Rank)
	}
	if leaderboard[0].AchievementCount != 4 {
		t.Errorf("Expected 4 achievements for bob, got %d", leaderboard[0].AchievementCount)
	}

	// alice and charlie tie on XP; the lower user ID ranks first
	if leaderboard[1].Username != "alice" || leaderboard[2].Username != "charlie" {
		t.Errorf("Unexpected tie order: %s, %s", leaderboard[1].Username, leaderboard[2].Username)
	}
	if leaderboard[2].Rank != 3 {
		t.Errorf("Expected rank 3, got %d", leaderboard[2].Rank)
	}
}

func TestGetGlobalLeaderboard_DefaultsToXP(t *testing.T) {
	service, _, _, _ := setupTestService()

	leaderboard, err := service.GetGlobalLeaderboard(context.Background(), "", 1)
	if err != nil {
		t.Fatalf("GetGlobalLeaderboard failed: %v", err)
	}
	if len(leaderboard) != 1 || leaderboard[0].Username != "bob" {
		t.Errorf("Expected only bob, got %+v", leaderboard)
	}
}

func TestGetGlobalLeaderboard_Metrics(t *testing.T) {
	tests := []struct {
		metric string
		first  string
	}{
		{MetricCoins, "bob"},
		{MetricStreak, "alice"},
		{MetricActivities, "charlie"},
		{MetricLevel, "bob"},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			service, _, _, _ := setupTestService()
			leaderboard, err := service.GetGlobalLeaderboard(context.Background(), tt.metric, 0)
			if err != nil {
				t.Fatalf("GetGlobalLeaderboard failed: %v", err)
			}
			if leaderboard[0].Username != tt.first {
				t.Errorf("Expected %s first by %s, got %s", tt.first, tt.metric, leaderboard[0].Username)
			}
		})
	}
}

func TestGetGlobalLeaderboard_UnknownMetric(t *testing.T) {
	service, _, _, _ := setupTestService()

	_, err := service.GetGlobalLeaderboard(context.Background(), "karma", 10)
	if !errors.Is(err, ErrUnknownMetric) {
		t.Errorf("Expected ErrUnknownMetric, got %v", err)
	}
}

func TestGetGlobalLeaderboard_RepositoryError(t *testing.T) {
	service, progressionRepo, _, _ := setupTestService()
	progressionRepo.topErr = errors.New("db down")

	if _, err := service.GetGlobalLeaderboard(context.Background(), MetricXP, 10); err == nil {
		t.Error("Expected error when repository fails")
	}
}

func TestGetTeamLeaderboard(t *testing.T) {
	service, _, _, _ := setupTestService()

	leaderboard, err := service.GetTeamLeaderboard(context.Background(), "north", MetricXP, 10)
	if err != nil {
		t.Fatalf("GetTeamLeaderboard failed: %v", err)
	}

	if len(leaderboard) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(leaderboard))
	}
	for _, entry := range leaderboard {
		if entry.Team != "north" {
			t.Errorf("Unexpected team %s in north leaderboard", entry.Team)
		}
	}
	if leaderboard[1].Username != "alice" || leaderboard[1].Rank != 2 {
		t.Errorf("Expected alice at rank 2, got %s at %d", leaderboard[1].Username, leaderboard[1].Rank)
	}
}

func TestGetUserRank(t *testing.T) {
	service, _, _, _ := setupTestService()
	ctx := context.Background()

	rank, err := service.GetUserRank(ctx, 3, "", MetricXP)
	if err != nil {
		t.Fatalf("GetUserRank failed: %v", err)
	}
	if rank != 3 {
		t.Errorf("Expected charlie global rank 3, got %d", rank)
	}

	rank, err = service.GetUserRank(ctx, 3, "south", MetricXP)
	if err != nil {
		t.Fatalf("GetUserRank failed: %v", err)
	}
	if rank != 1 {
		t.Errorf("Expected charlie team rank 1, got %d", rank)
	}

	if _, err := service.GetUserRank(ctx, 4, "", MetricXP); !errors.Is(err, ErrNotRanked) {
		t.Errorf("Expected ErrNotRanked, got %v", err)
	}
}

func TestGetPeriodLeaderboard(t *testing.T) {
	service, progressionRepo, _, clock := setupTestService()
	progressionRepo.gains = []repository.XPGain{
		{UserID: 3, Username: "charlie", XP: 150},
		{UserID: 1, Username: "alice", XP: 40},
	}

	entries, err := service.GetPeriodLeaderboard(context.Background(), "week", 10)
	if err != nil {
		t.Fatalf("GetPeriodLeaderboard failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Username != "charlie" || entries[0].XPGained != 150 || entries[0].Rank != 1 {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}

	wantSince := clock.Now().Add(-7 * 24 * time.Hour)
	if !progressionRepo.since.Equal(wantSince) {
		t.Errorf("Expected window start %v, got %v", wantSince, progressionRepo.since)
	}
}

func TestGetPeriodLeaderboard_UnknownPeriod(t *testing.T) {
	service, _, _, _ := setupTestService()

	_, err := service.GetPeriodLeaderboard(context.Background(), "fortnight", 10)
	if !errors.Is(err, ErrUnknownPeriod) {
		t.Errorf("Expected ErrUnknownPeriod, got %v", err)
	}
}

func TestGetUserStats(t *testing.T) {
	service, _, _, _ := setupTestService()

	stats, err := service.GetUserStats(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetUserStats failed: %v", err)
	}

	if stats.XP != 300 || stats.Level != 3 || stats.Streak != 5 {
		t.Errorf("Unexpected progression in stats: %+v", stats)
	}
	if len(stats.Achievements) != 1 || stats.Achievements[0].Code != "century" {
		t.Errorf("Expected only loaded achievements, got %+v", stats.Achievements)
	}
	if stats.GlobalRank != 2 {
		t.Errorf("Expected global rank 2, got %d", stats.GlobalRank)
	}
	if stats.TeamRank != 2 {
		t.Errorf("Expected team rank 2, got %d", stats.TeamRank)
	}
}

func TestGetUserStats_NoProgression(t *testing.T) {
	service, _, _, _ := setupTestService()

	stats, err := service.GetUserStats(context.Background(), 4)
	if err != nil {
		t.Fatalf("GetUserStats failed: %v", err)
	}
	if stats.Level != 1 || stats.XP != 0 || stats.GlobalRank != 0 {
		t.Errorf("Expected zeroed level 1 stats, got %+v", stats)
	}
}

func TestGetUserStats_UnknownUser(t *testing.T) {
	service, _, _, _ := setupTestService()

	if _, err := service.GetUserStats(context.Background(), 99); err == nil {
		t.Error("Expected error for unknown user")
	}
}
