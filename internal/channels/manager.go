package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dongshu2013/the-agent-bot/internal/bus"
)

// Manager manages all registered channels, handling their lifecycle
// and routing outbound messages to the correct channel.
type Manager struct {
	channels     map[string]Channel
	bus          bus.MessageRouter
	dispatchTask *asyncTask
	mu           sync.RWMutex
}

type asyncTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new channel manager.
// Channels are registered externally via RegisterChannel.
func NewManager(router bus.MessageRouter) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      router,
	}
}

// outboundFlushTimeout bounds delivery of replies still buffered at shutdown.
const outboundFlushTimeout = 10 * time.Second

// StartAll starts all registered channels and the outbound dispatch loop.
// The dispatch loop outlives ctx and stops only in StopAll, so replies from
// dispatches finishing during shutdown still go out.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.dispatchTask = &asyncTask{cancel: cancel, done: make(chan struct{})}
	go m.dispatchOutbound(dispatchCtx, m.dispatchTask.done)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	for name, channel := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := channel.Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", name, err)
		}
	}

	slog.Info("all channels started")
	return nil
}

// StopAll stops accepting input on every channel, then the outbound loop,
// which flushes whatever replies are still buffered on the bus.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	chans := make(map[string]Channel, len(m.channels))
	for name, channel := range m.channels {
		chans[name] = channel
	}
	task := m.dispatchTask
	m.dispatchTask = nil
	m.mu.Unlock()

	slog.Info("stopping all channels")

	for name, channel := range chans {
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}

	if task != nil {
		task.cancel()
		<-task.done
	}

	slog.Info("all channels stopped")
	return nil
}

// dispatchOutbound consumes outbound messages from the bus and routes them
// to the appropriate channel.
func (m *Manager) dispatchOutbound(ctx context.Context, done chan struct{}) {
	defer close(done)
	slog.Debug("outbound dispatcher started")

	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			break
		}
		m.send(ctx, msg)
	}

	pending := m.bus.DrainOutbound()
	if len(pending) > 0 {
		flushCtx, cancel := context.WithTimeout(context.Background(), outboundFlushTimeout)
		defer cancel()
		for _, msg := range pending {
			m.send(flushCtx, msg)
		}
		slog.Info("outbound dispatcher flushed", "count", len(pending))
	}
	slog.Debug("outbound dispatcher stopped")
}

func (m *Manager) send(ctx context.Context, msg bus.OutboundMessage) {
	m.mu.RLock()
	channel, exists := m.channels[msg.Channel]
	m.mu.RUnlock()

	if !exists {
		slog.Warn("unknown channel for outbound message", "channel", msg.Channel)
		return
	}

	if err := channel.Send(ctx, msg); err != nil {
		slog.Error("error sending message to channel",
			"channel", msg.Channel,
			"chat_id", msg.ChatID,
			"error", err,
		)
	}
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// GetStatus returns the running status of all channels.
func (m *Manager) GetStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]bool, len(m.channels))
	for name, channel := range m.channels {
		status[name] = channel.IsRunning()
	}
	return status
}

// RegisterChannel adds a channel to the manager.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}
