package channels

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedChats caps the number of per-chat limiters kept in memory.
const maxTrackedChats = 4096

type chatLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ChatRateLimiter throttles inbound messages per chat with a token bucket.
// Safe for concurrent use.
type ChatRateLimiter struct {
	mu      sync.Mutex
	entries map[int64]*chatLimiter
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewChatRateLimiter allows perMinute messages per chat with an equal burst.
// perMinute <= 0 returns nil, which callers treat as unlimited.
func NewChatRateLimiter(perMinute int) *ChatRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &ChatRateLimiter{
		entries: make(map[int64]*chatLimiter),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		now:     time.Now,
	}
}

// Allow reports whether chatID may send another message now.
func (r *ChatRateLimiter) Allow(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if len(r.entries) >= maxTrackedChats {
		r.prune(now)
	}

	e, ok := r.entries[chatID]
	if !ok {
		e = &chatLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[chatID] = e
	}
	e.lastSeen = now

	if !e.limiter.AllowN(now, 1) {
		slog.Debug("channels: chat rate limited", "chat_id", chatID)
		return false
	}
	return true
}

// prune drops limiters idle for a full refill window, then evicts arbitrarily
// if still at cap. Caller holds r.mu.
func (r *ChatRateLimiter) prune(now time.Time) {
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) >= time.Minute {
			delete(r.entries, id)
		}
	}
	for id := range r.entries {
		if len(r.entries) < maxTrackedChats {
			break
		}
		delete(r.entries, id)
	}
}
