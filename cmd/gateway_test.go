package cmd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongshu2013/the-agent-bot/internal/batcher"
	"github.com/dongshu2013/the-agent-bot/internal/bus"
	"github.com/dongshu2013/the-agent-bot/internal/config"
	"github.com/dongshu2013/the-agent-bot/internal/store"
)

type recordingEnqueuer struct {
	mu   sync.Mutex
	got  []bus.InboundMessage
	err  error
	seen chan struct{}
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, id int64, text string, now time.Time) error {
	r.mu.Lock()
	r.got = append(r.got, bus.InboundMessage{ChatID: id, Content: text, ReceivedAt: now})
	r.mu.Unlock()
	if r.seen != nil {
		r.seen <- struct{}{}
	}
	return r.err
}

type recordingRouter struct {
	outbound []bus.OutboundMessage
}

func (r *recordingRouter) PublishInbound(bus.InboundMessage) {}

func (r *recordingRouter) ConsumeInbound(context.Context) (bus.InboundMessage, bool) {
	return bus.InboundMessage{}, false
}

func (r *recordingRouter) SubscribeOutbound(context.Context) (bus.OutboundMessage, bool) {
	return bus.OutboundMessage{}, false
}

func (r *recordingRouter) DrainOutbound() []bus.OutboundMessage { return nil }

func (r *recordingRouter) PublishOutbound(msg bus.OutboundMessage) {
	r.outbound = append(r.outbound, msg)
}

func TestEnqueueInbound(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	msg := bus.InboundMessage{Channel: "telegram", ChatID: 42, Content: "hi", ReceivedAt: at}

	t.Run("stored", func(t *testing.T) {
		enq := &recordingEnqueuer{}
		router := &recordingRouter{}
		enqueueInbound(context.Background(), router, enq, msg)

		require.Len(t, enq.got, 1)
		assert.Equal(t, int64(42), enq.got[0].ChatID)
		assert.Equal(t, at, enq.got[0].ReceivedAt)
		assert.Empty(t, router.outbound)
	})

	t.Run("empty is silent", func(t *testing.T) {
		router := &recordingRouter{}
		enqueueInbound(context.Background(), router, &recordingEnqueuer{err: batcher.ErrEmptyMessage}, msg)
		assert.Empty(t, router.outbound)
	})

	t.Run("store failure is reported to the chat", func(t *testing.T) {
		router := &recordingRouter{}
		err := store.Unavailable("append", errors.New("connection refused"))
		enqueueInbound(context.Background(), router, &recordingEnqueuer{err: err}, msg)

		require.Len(t, router.outbound, 1)
		assert.Equal(t, "telegram", router.outbound[0].Channel)
		assert.Equal(t, int64(42), router.outbound[0].ChatID)
		assert.Equal(t, storeFailureReply, router.outbound[0].Content)
	})
}

func TestConsumeInboundMessages(t *testing.T) {
	msgBus := bus.New()
	enq := &recordingEnqueuer{seen: make(chan struct{}, 2)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		consumeInboundMessages(ctx, msgBus, enq)
		close(done)
	}()

	msgBus.PublishInbound(bus.InboundMessage{Channel: "telegram", ChatID: 1, Content: "a"})
	msgBus.PublishInbound(bus.InboundMessage{Channel: "telegram", ChatID: 1, Content: "b"})
	<-enq.seen
	<-enq.seen

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	enq.mu.Lock()
	defer enq.mu.Unlock()
	require.Len(t, enq.got, 2)
	assert.Equal(t, "a", enq.got[0].Content)
	assert.Equal(t, "b", enq.got[1].Content)
	assert.False(t, enq.got[0].ReceivedAt.IsZero(), "bus stamps arrival time")
}

func TestBatcherConfig(t *testing.T) {
	cfg := config.Default()
	bc := batcherConfig(cfg)

	assert.Equal(t, time.Second, bc.PollInterval)
	assert.Equal(t, 5, bc.VolumeThreshold)
	assert.Equal(t, 10*time.Second, bc.QuietThreshold)
	assert.Equal(t, 10*time.Minute, bc.IdleEvictAfter)
	assert.Equal(t, 10*time.Second, bc.ReplyTimeout)
}

func TestStoreConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.PostgresDSN = "postgres://localhost/agentbot"
	cfg.Redis.URL = "redis://localhost:6379/0"

	sc := storeConfig(cfg)
	assert.Equal(t, "postgres://localhost/agentbot", sc.PostgresDSN)
	assert.Equal(t, int32(20), sc.MaxConns)
	assert.Equal(t, 2*time.Second, sc.ConnectTimeout)
	assert.Equal(t, 5*time.Second, sc.OpTimeout)
	assert.Equal(t, "queue:", sc.QueueKeyPrefix)
	assert.Equal(t, 20, sc.RedisPoolSize)
}

func TestOpenStoresStandalone(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeStandalone
	cfg.Standalone.Storage = t.TempDir()

	stores, err := openStores(context.Background(), cfg)
	require.NoError(t, err)
	defer stores.Close()

	assert.NotNil(t, stores.Queue)
	assert.NotNil(t, stores.Status)
	assert.Nil(t, stores.Locker)
	require.NoError(t, stores.Queue.Append(context.Background(), 1, "x"))
}
