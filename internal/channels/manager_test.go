package channels

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongshu2013/the-agent-bot/internal/bus"
)

type recordingChannel struct {
	*BaseChannel
	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func newRecordingChannel(name string, router bus.MessageRouter) *recordingChannel {
	return &recordingChannel{BaseChannel: NewBaseChannel(name, router, nil)}
}

func (c *recordingChannel) Start(context.Context) error { c.SetRunning(true); return nil }
func (c *recordingChannel) Stop(context.Context) error  { c.SetRunning(false); return nil }

func (c *recordingChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingChannel) Sent() []bus.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bus.OutboundMessage(nil), c.sent...)
}

func TestManagerRoutesOutbound(t *testing.T) {
	mb := bus.New()
	ch := newRecordingChannel("telegram", mb)
	m := NewManager(mb)
	m.RegisterChannel("telegram", ch)

	require.NoError(t, m.StartAll(context.Background()))
	assert.Equal(t, map[string]bool{"telegram": true}, m.GetStatus())

	mb.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: 1, Content: "hi"})
	mb.PublishOutbound(bus.OutboundMessage{Channel: "nowhere", ChatID: 1, Content: "lost"})
	require.Eventually(t, func() bool { return len(ch.Sent()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.StopAll(context.Background()))
	assert.Equal(t, map[string]bool{"telegram": false}, m.GetStatus())
}

func TestManagerOutlivesStartContext(t *testing.T) {
	mb := bus.New()
	ch := newRecordingChannel("telegram", mb)
	m := NewManager(mb)
	m.RegisterChannel("telegram", ch)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.StartAll(ctx))
	cancel()

	// A reply produced after the shutdown signal is still delivered.
	mb.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: 2, Content: "late reply"})
	require.Eventually(t, func() bool { return len(ch.Sent()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.StopAll(context.Background()))
}

func TestManagerFlushesOnStop(t *testing.T) {
	mb := bus.New()
	ch := newRecordingChannel("telegram", mb)
	m := NewManager(mb)
	m.RegisterChannel("telegram", ch)
	require.NoError(t, m.StartAll(context.Background()))

	for i := 0; i < 20; i++ {
		mb.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: int64(i), Content: "reply"})
	}
	require.NoError(t, m.StopAll(context.Background()))

	assert.Len(t, ch.Sent(), 20)
	assert.Empty(t, mb.DrainOutbound())
}
