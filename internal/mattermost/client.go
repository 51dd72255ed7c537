// Package mattermost provides webhook client for sending notifications to Mattermost.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aimd54/sales-quest/internal/config"
	"github.com/aimd54/sales-quest/pkg/logger"
)

const botUsername = "Sales Quest"

// Client handles Mattermost webhook notifications.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new Mattermost client.
func NewClient(cfg *config.MattermostConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Enabled reports whether messages are actually sent.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Message represents a Mattermost message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Pretext  string  `json:"pretext,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field represents a message field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SendMessage sends a message to Mattermost.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Mattermost is disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}
	if msg.Username == "" {
		msg.Username = botUsername
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Mattermost: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mattermost returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent message to Mattermost")

	return nil
}

// SendSimpleMessage sends a simple text message.
func (c *Client) SendSimpleMessage(ctx context.Context, text string) error {
	return c.SendMessage(ctx, &Message{Text: text})
}

// Announcement is a reward worth sharing with the team channel.
type Announcement struct {
	Username   string
	Kind       string // "achievement" or "level-up"
	Title      string
	XPDelta    int64
	CoinsDelta int64
}

// SendAnnouncement posts an achievement or level-up shout-out.
func (c *Client) SendAnnouncement(ctx context.Context, a Announcement) error {
	if !c.enabled {
		return nil
	}

	var text string
	switch a.Kind {
	case "level-up":
		text = fmt.Sprintf("⬆️ @%s reached **level %s**!", a.Username, a.Title)
	default:
		text = fmt.Sprintf("🏆 @%s unlocked **%s**", a.Username, a.Title)
		if bonus := formatBonus(a.XPDelta, a.CoinsDelta); bonus != "" {
			text += " (" + bonus + ")"
		}
	}

	return c.SendSimpleMessage(ctx, text)
}

func formatBonus(xp, coins int64) string {
	parts := make([]string, 0, 2)
	if xp > 0 {
		parts = append(parts, fmt.Sprintf("+%d XP", xp))
	}
	if coins > 0 {
		parts = append(parts, fmt.Sprintf("+%d coins", coins))
	}
	return strings.Join(parts, ", ")
}

// DigestEntry is one line of the daily leaderboard digest.
type DigestEntry struct {
	Rank     int
	Username string
	XP       int64
	Level    int
	Streak   int
}

// SendDailyDigest sends the daily leaderboard digest.
// Nothing is sent when there are no entries.
func (c *Client) SendDailyDigest(ctx context.Context, title string, entries []DigestEntry) error {
	if len(entries) == 0 {
		c.log.Debug().Msg("No leaderboard entries, skipping daily digest")
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### 📈 %s\n\n", title)
	b.WriteString("| # | Seller | XP | Level | Streak |\n|---|---|---|---|---|\n")
	for _, e := range entries {
		medal := fmt.Sprintf("%d", e.Rank)
		switch e.Rank {
		case 1:
			medal = "🥇"
		case 2:
			medal = "🥈"
		case 3:
			medal = "🥉"
		}
		fmt.Fprintf(&b, "| %s | @%s | %d | %d | %d |\n", medal, e.Username, e.XP, e.Level, e.Streak)
	}
	b.WriteString("\n_Keep those deals coming!_")

	return c.SendMessage(ctx, &Message{Text: b.String()})
}
