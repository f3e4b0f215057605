package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dongshu2013/the-agent-bot/internal/batcher"
	"github.com/dongshu2013/the-agent-bot/internal/bus"
)

const storeFailureReply = "Sorry, I couldn't save your message. Please send it again in a moment."

// Enqueuer is the batcher entry point used by the consumer.
type Enqueuer interface {
	Enqueue(ctx context.Context, conversationID int64, text string, now time.Time) error
}

// consumeInboundMessages hands every inbound message to the batcher until ctx
// is cancelled.
func consumeInboundMessages(ctx context.Context, msgBus *bus.MessageBus, sched Enqueuer) {
	slog.Info("inbound message consumer started")
	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("inbound message consumer stopped")
			return
		}
		enqueueInbound(context.WithoutCancel(ctx), msgBus, sched, msg)
	}
}

// enqueueInbound records one message. A store failure is reported back to the
// chat so the user knows to resend.
func enqueueInbound(ctx context.Context, router bus.MessageRouter, sched Enqueuer, msg bus.InboundMessage) {
	err := sched.Enqueue(ctx, msg.ChatID, msg.Content, msg.ReceivedAt)
	switch {
	case err == nil:
		slog.Debug("inbound message queued", "channel", msg.Channel, "chat_id", msg.ChatID)
	case errors.Is(err, batcher.ErrEmptyMessage):
		slog.Debug("inbound message ignored (empty)", "chat_id", msg.ChatID)
	default:
		slog.Error("inbound message not stored", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		router.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: storeFailureReply,
		})
	}
}
