package rewards

import (
	"context"

	"github.com/aimd54/sales-quest/internal/mattermost"
	"github.com/aimd54/sales-quest/internal/metrics"
	"github.com/aimd54/sales-quest/internal/models"
	"github.com/aimd54/sales-quest/pkg/logger"
)

// Notifier posts announcements to a team channel.
type Notifier interface {
	SendAnnouncement(ctx context.Context, a mattermost.Announcement) error
}

// UserLookup resolves user IDs to profiles.
type UserLookup interface {
	GetByID(id uint) (*models.User, error)
}

// Announcer forwards achievement and level-up rewards to a Notifier.
// Delivery is best effort: rewards arriving while the buffer is full are dropped.
type Announcer struct {
	notifier Notifier
	users    UserLookup
	log      *logger.Logger
	pending  chan PendingReward
}

// NewAnnouncer creates an announcer with the given buffer size.
func NewAnnouncer(notifier Notifier, users UserLookup, bufferSize int, log *logger.Logger) *Announcer {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Announcer{
		notifier: notifier,
		users:    users,
		log:      log,
		pending:  make(chan PendingReward, bufferSize),
	}
}

// Attach subscribes the announcer to q.
func (a *Announcer) Attach(q *Queue) {
	q.Subscribe(a.Offer)
}

// Offer queues r for announcement if it is worth sharing. It never blocks.
func (a *Announcer) Offer(r PendingReward) {
	if r.Type != TypeAchievement && r.Type != TypeLevelUp {
		return
	}
	select {
	case a.pending <- r:
	default:
		a.log.Warn().
			Uint("user_id", r.UserID).
			Str("type", string(r.Type)).
			Msg("Announcement buffer full, dropping reward")
		metrics.RecordSchedulerNotificationFailed("buffer_full")
	}
}

// Run delivers announcements until ctx is cancelled.
func (a *Announcer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-a.pending:
			a.deliver(ctx, r)
		}
	}
}

func (a *Announcer) deliver(ctx context.Context, r PendingReward) {
	username := "someone"
	if user, err := a.users.GetByID(r.UserID); err != nil {
		a.log.Warn().Err(err).Uint("user_id", r.UserID).Msg("Failed to resolve user for announcement")
	} else {
		username = user.Username
	}

	err := a.notifier.SendAnnouncement(ctx, mattermost.Announcement{
		Username:   username,
		Kind:       string(r.Type),
		Title:      r.Value,
		XPDelta:    r.XPDelta,
		CoinsDelta: r.CoinsDelta,
	})
	if err != nil {
		a.log.Error().Err(err).
			Uint("user_id", r.UserID).
			Str("type", string(r.Type)).
			Msg("Failed to send announcement")
		metrics.RecordSchedulerNotificationFailed("announcement")
		return
	}

	a.log.Debug().Uint("user_id", r.UserID).Str("type", string(r.Type)).Msg("Announcement sent")
}
