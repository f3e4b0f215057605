package store

import "context"

// MessageQueue is an ordered, per-conversation append/pop-prefix buffer.
type MessageQueue interface {
	// Append adds message to the tail of the conversation's sequence.
	Append(ctx context.Context, conversationID int64, message string) error

	// PopFront removes and returns up to maxCount messages from the head of the
	// sequence in insertion order. It returns fewer (possibly zero) when fewer are
	// queued and never blocks waiting for more.
	PopFront(ctx context.Context, conversationID int64, maxCount int) ([]string, error)

	// Len reports how many messages are queued for the conversation.
	Len(ctx context.Context, conversationID int64) (int64, error)

	Ping(ctx context.Context) error
}

// Locker hands out a mutual-exclusion lease for one conversation across
// processes. Acquire returns ok=false when another holder owns the lease.
type Locker interface {
	Acquire(ctx context.Context, conversationID int64) (release func(), ok bool, err error)
}
