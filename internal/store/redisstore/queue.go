package redisstore

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

// DefaultKeyPrefix namespaces per-conversation lists as queue:<id>.
const DefaultKeyPrefix = "queue:"

// Queue implements store.MessageQueue with one Redis list per conversation.
// RPUSH appends; LPOP with a count removes a prefix atomically.
type Queue struct {
	client redis.UniversalClient
	prefix string
}

var _ store.MessageQueue = (*Queue)(nil)

func NewQueue(client redis.UniversalClient, prefix string) *Queue {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Queue{client: client, prefix: prefix}
}

// Key returns the list key for a conversation.
func (q *Queue) Key(conversationID int64) string {
	return q.prefix + strconv.FormatInt(conversationID, 10)
}

func (q *Queue) Append(ctx context.Context, conversationID int64, message string) error {
	if err := q.client.RPush(ctx, q.Key(conversationID), message).Err(); err != nil {
		return store.Unavailable("queue append", err)
	}
	return nil
}

func (q *Queue) PopFront(ctx context.Context, conversationID int64, maxCount int) ([]string, error) {
	if maxCount <= 0 {
		return nil, nil
	}
	msgs, err := q.client.LPopCount(ctx, q.Key(conversationID), maxCount).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable("queue pop", err)
	}
	return msgs, nil
}

func (q *Queue) Len(ctx context.Context, conversationID int64) (int64, error) {
	n, err := q.client.LLen(ctx, q.Key(conversationID)).Result()
	if err != nil {
		return 0, store.Unavailable("queue len", err)
	}
	return n, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return store.Unavailable("queue ping", err)
	}
	return nil
}
