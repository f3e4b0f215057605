package batcher

import (
	"time"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

// Ready reports whether a conversation's pending messages should be dispatched
// now: something is pending and either the burst exceeded the volume threshold
// or the user has been quiet longer than the quiet threshold.
func Ready(row *store.ConversationStatus, now time.Time, cfg Config) bool {
	if row == nil || row.PendingCount <= 0 {
		return false
	}
	if row.PendingCount > cfg.VolumeThreshold {
		return true
	}
	return now.Sub(row.LastMessageAt) > cfg.QuietThreshold
}

// idle reports whether a drained conversation has been silent long enough for
// its timer to be evicted.
func idle(row *store.ConversationStatus, now time.Time, cfg Config) bool {
	if cfg.IdleEvictAfter <= 0 {
		return false
	}
	if row == nil {
		return true
	}
	return row.PendingCount == 0 && now.Sub(row.LastMessageAt) > cfg.IdleEvictAfter
}
