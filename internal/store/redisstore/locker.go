package redisstore

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

const lockKeyPrefix = "dispatch-lock:"

// Locker serializes dispatch of one conversation across gateway replicas.
type Locker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

var _ store.Locker = (*Locker)(nil)

// NewLocker creates a redsync-backed locker. expiry must exceed the longest
// dispatch (reply timeout plus store round trips).
func NewLocker(client redis.UniversalClient, expiry time.Duration) *Locker {
	if expiry <= 0 {
		expiry = 30 * time.Second
	}
	return &Locker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
	}
}

func (l *Locker) Acquire(ctx context.Context, conversationID int64) (func(), bool, error) {
	mu := l.rs.NewMutex(lockKeyPrefix+strconv.FormatInt(conversationID, 10),
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)

	if err := mu.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return nil, false, nil
		}
		return nil, false, store.Unavailable("dispatch lock", err)
	}

	release := func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := mu.UnlockContext(unlockCtx); err != nil {
			slog.Warn("dispatch lock: unlock failed", "chat_id", conversationID, "error", err)
		}
	}
	return release, true, nil
}
