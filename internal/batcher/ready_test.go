package batcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

func TestReady(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cfg := Config{VolumeThreshold: 5, QuietThreshold: 5 * time.Second}

	tests := []struct {
		name string
		row  *store.ConversationStatus
		want bool
	}{
		{name: "no row", row: nil, want: false},
		{name: "nothing pending", row: &store.ConversationStatus{PendingCount: 0, LastMessageAt: now.Add(-time.Hour)}, want: false},
		{name: "recent and small", row: &store.ConversationStatus{PendingCount: 2, LastMessageAt: now.Add(-time.Second)}, want: false},
		{name: "at volume threshold", row: &store.ConversationStatus{PendingCount: 5, LastMessageAt: now}, want: false},
		{name: "above volume threshold", row: &store.ConversationStatus{PendingCount: 6, LastMessageAt: now}, want: true},
		{name: "exactly quiet threshold", row: &store.ConversationStatus{PendingCount: 1, LastMessageAt: now.Add(-5 * time.Second)}, want: false},
		{name: "past quiet threshold", row: &store.ConversationStatus{PendingCount: 1, LastMessageAt: now.Add(-6 * time.Second)}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ready(tt.row, now, cfg))
		})
	}
}

func TestIdle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cfg := Config{IdleEvictAfter: time.Minute}

	assert.True(t, idle(nil, now, cfg))
	assert.True(t, idle(&store.ConversationStatus{LastMessageAt: now.Add(-2 * time.Minute)}, now, cfg))
	assert.False(t, idle(&store.ConversationStatus{LastMessageAt: now.Add(-30 * time.Second)}, now, cfg))
	assert.False(t, idle(&store.ConversationStatus{PendingCount: 1, LastMessageAt: now.Add(-2 * time.Minute)}, now, cfg))
	assert.False(t, idle(nil, now, Config{}), "eviction disabled")
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{VolumeThreshold: 3, IdleEvictAfter: -1}.withDefaults()
	assert.Equal(t, 3, cfg.VolumeThreshold)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.QuietThreshold)
	assert.Equal(t, time.Duration(0), cfg.IdleEvictAfter)
}
