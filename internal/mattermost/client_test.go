package mattermost

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/sales-quest/internal/config"
	"github.com/aimd54/sales-quest/pkg/logger"
)

type webhookRecorder struct {
	mu       sync.Mutex
	messages []Message
	status   int
}

func (w *webhookRecorder) handler(rw http.ResponseWriter, r *http.Request) {
	var msg Message
	_ = json.NewDecoder(r.Body).Decode(&msg)
	w.mu.Lock()
	w.messages = append(w.messages, msg)
	status := w.status
	w.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	rw.WriteHeader(status)
}

func (w *webhookRecorder) sent() []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Message(nil), w.messages...)
}

func newTestClient(t *testing.T, enabled bool) (*Client, *webhookRecorder) {
	t.Helper()
	rec := &webhookRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(srv.Close)

	cfg := &config.MattermostConfig{WebhookURL: srv.URL, Channel: "sales", Enabled: enabled}
	return NewClient(cfg, logger.Nop()), rec
}

func TestSendMessage_FillsDefaults(t *testing.T) {
	client, rec := newTestClient(t, true)

	require.NoError(t, client.SendSimpleMessage(t.Context(), "hello"))

	require.Len(t, rec.sent(), 1)
	assert.Equal(t, "sales", rec.sent()[0].Channel)
	assert.Equal(t, botUsername, rec.sent()[0].Username)
	assert.Equal(t, "hello", rec.sent()[0].Text)
}

func TestSendMessage_Disabled(t *testing.T) {
	client, rec := newTestClient(t, false)

	require.NoError(t, client.SendSimpleMessage(t.Context(), "hello"))
	assert.Empty(t, rec.sent())
	assert.False(t, client.Enabled())
}

func TestSendMessage_NonOKStatus(t *testing.T) {
	client, rec := newTestClient(t, true)
	rec.mu.Lock()
	rec.status = http.StatusInternalServerError
	rec.mu.Unlock()

	err := client.SendSimpleMessage(t.Context(), "hello")
	assert.ErrorContains(t, err, "status 500")
}

func TestSendAnnouncement(t *testing.T) {
	client, rec := newTestClient(t, true)

	require.NoError(t, client.SendAnnouncement(t.Context(), Announcement{
		Username: "alice", Kind: "achievement", Title: "First Steps", XPDelta: 20, CoinsDelta: 5,
	}))
	require.NoError(t, client.SendAnnouncement(t.Context(), Announcement{
		Username: "alice", Kind: "level-up", Title: "3",
	}))

	require.Len(t, rec.sent(), 2)
	assert.Contains(t, rec.sent()[0].Text, "First Steps")
	assert.Contains(t, rec.sent()[0].Text, "+20 XP, +5 coins")
	assert.Contains(t, rec.sent()[1].Text, "level 3")
}

func TestSendDailyDigest(t *testing.T) {
	client, rec := newTestClient(t, true)

	require.NoError(t, client.SendDailyDigest(t.Context(), "Daily Leaderboard", nil))
	assert.Empty(t, rec.sent())

	require.NoError(t, client.SendDailyDigest(t.Context(), "Daily Leaderboard", []DigestEntry{
		{Rank: 1, Username: "bob", XP: 900, Level: 8, Streak: 3},
		{Rank: 4, Username: "dan", XP: 100, Level: 2, Streak: 1},
	}))
	require.Len(t, rec.sent(), 1)
	text := rec.sent()[0].Text
	assert.Contains(t, text, "Daily Leaderboard")
	assert.Contains(t, text, "🥇 | @bob | 900 | 8 | 3")
	assert.Contains(t, text, "| 4 | @dan |")
}
