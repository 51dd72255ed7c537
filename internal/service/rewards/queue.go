// Package rewards holds the per-user queue of rewards waiting to be shown.
// The queue lives in memory only and is lost on restart.
package rewards

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aimd54/sales-quest/internal/metrics"
)

// Type identifies what produced a pending reward.
type Type string

// Reward types.
const (
	TypeXP          Type = "xp"
	TypeCoins       Type = "coins"
	TypeStreak      Type = "streak"
	TypeAchievement Type = "achievement"
	TypeLevelUp     Type = "level-up"
)

// DefaultMaxPerUser bounds how many undelivered rewards are kept per user.
const DefaultMaxPerUser = 100

// PendingReward is a user-visible reward notification.
type PendingReward struct {
	ID         string    `json:"id"`
	UserID     uint      `json:"user_id"`
	Type       Type      `json:"type"`
	Value      string    `json:"value"`
	XPDelta    int64     `json:"xp_delta,omitempty"`
	CoinsDelta int64     `json:"coins_delta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Queue is a per-user FIFO of pending rewards, safe for concurrent use.
// When a user's queue is full the oldest reward is dropped.
type Queue struct {
	mu          sync.Mutex
	items       map[uint][]PendingReward
	maxPerUser  int
	subscribers []func(PendingReward)
	now         func() time.Time
}

// NewQueue creates a queue keeping at most maxPerUser rewards per user.
func NewQueue(maxPerUser int) *Queue {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPerUser
	}
	return &Queue{
		items:      make(map[uint][]PendingReward),
		maxPerUser: maxPerUser,
		now:        time.Now,
	}
}

// Subscribe registers fn to be called with every enqueued reward.
// Subscribers run on the enqueuing goroutine and must not block.
func (q *Queue) Subscribe(fn func(PendingReward)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subscribers = append(q.subscribers, fn)
}

// Enqueue appends r to the user's queue, filling in ID, UserID and CreatedAt.
func (q *Queue) Enqueue(userID uint, r PendingReward) PendingReward {
	r.ID = uuid.NewString()
	r.UserID = userID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = q.now()
	}

	q.mu.Lock()
	pending := append(q.items[userID], r)
	dropped := 0
	if len(pending) > q.maxPerUser {
		dropped = len(pending) - q.maxPerUser
		pending = pending[dropped:]
	}
	q.items[userID] = pending
	subs := make([]func(PendingReward), len(q.subscribers))
	copy(subs, q.subscribers)
	q.mu.Unlock()

	metrics.RecordRewardEnqueued(string(r.Type))
	if dropped > 0 {
		metrics.RecordRewardsDelivered(dropped)
	}

	for _, fn := range subs {
		fn(r)
	}
	return r
}

// Dequeue removes and returns the oldest reward for the user.
func (q *Queue) Dequeue(userID uint) (PendingReward, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.items[userID]
	if len(pending) == 0 {
		return PendingReward{}, false
	}

	r := pending[0]
	if len(pending) == 1 {
		delete(q.items, userID)
	} else {
		q.items[userID] = pending[1:]
	}
	metrics.RecordRewardsDelivered(1)
	return r, true
}

// Peek returns a copy of the user's pending rewards, oldest first.
func (q *Queue) Peek(userID uint) []PendingReward {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.items[userID]
	out := make([]PendingReward, len(pending))
	copy(out, pending)
	return out
}

// Len returns the number of pending rewards for the user.
func (q *Queue) Len(userID uint) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[userID])
}
