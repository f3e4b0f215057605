package bus

import (
	"context"
	"log/slog"
	"time"
)

const defaultBufferSize = 100

// MessageBus is an in-process router with buffered inbound and outbound queues.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

var _ MessageRouter = (*MessageBus)(nil)

// New creates a MessageBus with default buffer sizes.
func New() *MessageBus {
	return NewWithBuffer(defaultBufferSize)
}

// NewWithBuffer creates a MessageBus whose queues hold size messages each.
func NewWithBuffer(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
	}
}

// PublishInbound blocks while the inbound buffer is full so no user message is dropped.
func (mb *MessageBus) PublishInbound(msg InboundMessage) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	mb.inbound <- msg
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-mb.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound drops the message if the outbound buffer is full.
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case mb.outbound <- msg:
	default:
		slog.Warn("bus: outbound buffer full, dropping message", "channel", msg.Channel, "chat_id", msg.ChatID)
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-mb.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// DrainInbound returns every buffered inbound message without blocking.
// Used at shutdown after channels stop publishing.
func (mb *MessageBus) DrainInbound() []InboundMessage {
	var msgs []InboundMessage
	for {
		select {
		case msg := <-mb.inbound:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// DrainOutbound returns every buffered outbound message without blocking.
// Used by the channel manager to flush replies at shutdown.
func (mb *MessageBus) DrainOutbound() []OutboundMessage {
	var msgs []OutboundMessage
	for {
		select {
		case msg := <-mb.outbound:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}
