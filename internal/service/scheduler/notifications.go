package scheduler

import (
	"time"

	"github.com/aimd54/sales-quest/internal/mattermost"
	"github.com/aimd54/sales-quest/internal/service/leaderboard"
)

// buildDigestEntries transforms leaderboard entries into digest lines.
// Sellers without any XP are left out and the remaining ranks are kept.
func buildDigestEntries(standings []leaderboard.Entry) []mattermost.DigestEntry {
	entries := make([]mattermost.DigestEntry, 0, len(standings))

	for _, st := range standings {
		if st.XP <= 0 {
			continue
		}

		username := st.Username
		if username == "" {
			username = "unknown"
		}

		entries = append(entries, mattermost.DigestEntry{
			Rank:     st.Rank,
			Username: username,
			XP:       st.XP,
			Level:    st.Level,
			Streak:   st.Streak,
		})
	}

	return entries
}

func digestTitle(now time.Time) string {
	return "Sales leaderboard, " + now.Format("Monday, Jan 2")
}
