package batcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeReplyClient struct {
	mu      sync.Mutex
	batches [][]string
	reply   string
	err     error
	block   chan struct{} // when set, SendBatch waits for it to close
}

func (f *fakeReplyClient) SendBatch(ctx context.Context, _ int64, messages []string) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), messages...))
	return f.reply, f.err
}

func (f *fakeReplyClient) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

type delivery struct {
	chatID int64
	text   string
}

type fakeDeliverer struct {
	mu   sync.Mutex
	sent []delivery
}

func (f *fakeDeliverer) Deliver(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, delivery{chatID: chatID, text: text})
	return nil
}

func (f *fakeDeliverer) Sent() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.sent...)
}

var errStoreDown = errors.New("connection refused")

// failingQueue fails Append while down is set.
type failingQueue struct {
	store.MessageQueue
	mu   sync.Mutex
	down bool
}

func (q *failingQueue) SetDown(down bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.down = down
}

func (q *failingQueue) Append(ctx context.Context, id int64, msg string) error {
	q.mu.Lock()
	down := q.down
	q.mu.Unlock()
	if down {
		return store.Unavailable("append", errStoreDown)
	}
	return q.MessageQueue.Append(ctx, id, msg)
}

// failingReduce fails every ReduceCount.
type failingReduce struct {
	store.StatusStore
}

func (failingReduce) ReduceCount(context.Context, int64, int, time.Time) error {
	return store.Unavailable("reduce", errStoreDown)
}

type fakeLocker struct {
	mu   sync.Mutex
	held bool
}

func (l *fakeLocker) Acquire(context.Context, int64) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, true, nil
}
