package store

import (
	"context"
	"time"
)

// ConversationStatus is the durable per-conversation bookkeeping row.
// PendingCount is never negative: reductions clamp at zero.
type ConversationStatus struct {
	ConversationID int64     `json:"conversationId"`
	PendingCount   int       `json:"pendingCount"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// StatusStore records pending counts and last activity per conversation.
// Increments and decrements are atomic at the store, never read-modify-write
// in the caller.
type StatusStore interface {
	// RecordArrival upserts the row: pending=1 when absent, otherwise pending+1.
	// LastMessageAt and UpdatedAt are set to now.
	RecordArrival(ctx context.Context, conversationID int64, now time.Time) error

	// ListReady returns ids with pending > 0 and either pending > volume or
	// LastMessageAt older than now-quiet.
	ListReady(ctx context.Context, now time.Time, quiet time.Duration, volume int) ([]int64, error)

	// ListPending returns every id with pending > 0.
	ListPending(ctx context.Context) ([]int64, error)

	// GetRow returns the current row, or nil when the conversation is unknown.
	GetRow(ctx context.Context, conversationID int64) (*ConversationStatus, error)

	// ReduceCount decrements pending by n, clamped at zero, and sets UpdatedAt.
	ReduceCount(ctx context.Context, conversationID int64, n int, now time.Time) error

	Ping(ctx context.Context) error
}
