// Package channels connects external chat platforms to the batcher via the
// message bus. Each Channel publishes inbound user text and delivers replies
// routed back through the Manager.
package channels

import (
	"context"
	"strings"
	"time"

	"github.com/dongshu2013/the-agent-bot/internal/bus"
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "telegram").
	Name() string

	// Start begins listening for messages. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	bus       bus.MessageRouter
	running   bool
	allowList []string
	limiter   *ChatRateLimiter
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, router bus.MessageRouter, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       router,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running }

func (c *BaseChannel) SetRunning(running bool) { c.running = running }

func (c *BaseChannel) Bus() bus.MessageRouter { return c.bus }

// SetRateLimiter enables per-chat inbound throttling. nil disables it.
func (c *BaseChannel) SetRateLimiter(l *ChatRateLimiter) { c.limiter = l }

// IsAllowed checks if a sender is permitted by the allowlist.
// Supports compound senderID format: "123456|username".
// Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		if idPart == trimmed || senderID == trimmed || (userPart != "" && userPart == trimmed) {
			return true
		}
	}
	return false
}

// HandleMessage trims content and publishes it to the bus. Blank text,
// disallowed senders and rate-limited chats are dropped. Reports whether the
// message was published.
func (c *BaseChannel) HandleMessage(senderID string, chatID int64, content string, metadata map[string]string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	if !c.IsAllowed(senderID) {
		return false
	}
	if c.limiter != nil && !c.limiter.Allow(chatID) {
		return false
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:    c.name,
		SenderID:   senderID,
		ChatID:     chatID,
		Content:    content,
		ReceivedAt: time.Now(),
		Metadata:   metadata,
	})
	return true
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
