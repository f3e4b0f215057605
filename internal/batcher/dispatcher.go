package batcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

// ErrReplyFailed wraps reply service failures. The batch it refers to has been
// consumed and will not be retried.
var ErrReplyFailed = errors.New("reply service failed")

var tracer = otel.Tracer("github.com/dongshu2013/the-agent-bot/internal/batcher")

// ReplyClient turns an ordered batch into one reply ("" = no reply).
type ReplyClient interface {
	SendBatch(ctx context.Context, conversationID int64, messages []string) (string, error)
}

// Deliverer hands a reply back to the front-end. Delivery is fire-and-forget
// from the engine's point of view; errors are only logged.
type Deliverer interface {
	Deliver(ctx context.Context, conversationID int64, text string) error
}

// Result describes one dispatch attempt.
type Result struct {
	BatchID  string
	Messages []string
	Reply    string
}

// Dispatcher pops a conversation's pending prefix and sends it downstream.
type Dispatcher struct {
	queue        store.MessageQueue
	status       store.StatusStore
	client       ReplyClient
	deliverer    Deliverer
	replyTimeout time.Duration
	now          func() time.Time
}

func NewDispatcher(queue store.MessageQueue, status store.StatusStore, client ReplyClient, deliverer Deliverer, replyTimeout time.Duration) *Dispatcher {
	if replyTimeout <= 0 {
		replyTimeout = DefaultConfig().ReplyTimeout
	}
	return &Dispatcher{
		queue:        queue,
		status:       status,
		client:       client,
		deliverer:    deliverer,
		replyTimeout: replyTimeout,
		now:          time.Now,
	}
}

// Dispatch re-reads the pending count, pops up to that many messages, reduces
// the count by the number actually popped and forwards the batch. A nil Result
// with nil error means there was nothing to send.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID int64) (*Result, error) {
	row, err := d.status.GetRow(ctx, conversationID)
	if err != nil {
		dispatchesTotal.WithLabelValues(outcomeStoreError).Inc()
		return nil, err
	}
	if row == nil || row.PendingCount <= 0 {
		return nil, nil
	}

	msgs, err := d.queue.PopFront(ctx, conversationID, row.PendingCount)
	if err != nil {
		dispatchesTotal.WithLabelValues(outcomeStoreError).Inc()
		return nil, err
	}
	if len(msgs) == 0 {
		slog.Warn("batcher: pending count ahead of queue, leaving for next tick",
			"chat_id", conversationID, "pending", row.PendingCount)
		dispatchesTotal.WithLabelValues(outcomeEmpty).Inc()
		return nil, nil
	}

	// Popped messages are gone from the queue; keep going even if the
	// decrement fails so the user's input still reaches the service.
	reduceErr := d.status.ReduceCount(ctx, conversationID, len(msgs), d.now())
	if reduceErr != nil {
		slog.Error("batcher: reduce pending count failed",
			"chat_id", conversationID, "popped", len(msgs), "error", reduceErr)
	}

	res := &Result{BatchID: uuid.NewString(), Messages: msgs}
	batchSize.Observe(float64(len(msgs)))

	reply, err := d.send(ctx, conversationID, res)
	if err != nil {
		dispatchesTotal.WithLabelValues(outcomeReplyError).Inc()
		slog.Error("batcher: reply service failed, batch dropped",
			"chat_id", conversationID, "batch_id", res.BatchID, "count", len(msgs), "error", err)
		return res, errors.Join(fmt.Errorf("%w: %w", ErrReplyFailed, err), reduceErr)
	}
	res.Reply = reply
	dispatchesTotal.WithLabelValues(outcomeOK).Inc()

	if reply != "" && d.deliverer != nil {
		if err := d.deliverer.Deliver(ctx, conversationID, reply); err != nil {
			slog.Warn("batcher: deliver reply failed", "chat_id", conversationID, "batch_id", res.BatchID, "error", err)
		}
	}

	slog.Info("batcher: batch dispatched",
		"chat_id", conversationID, "batch_id", res.BatchID, "count", len(msgs), "replied", reply != "")
	return res, reduceErr
}

func (d *Dispatcher) send(ctx context.Context, conversationID int64, res *Result) (string, error) {
	ctx, span := tracer.Start(ctx, "batcher.send_batch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int64("chat.id", conversationID),
			attribute.String("batch.id", res.BatchID),
			attribute.Int("batch.size", len(res.Messages)),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.replyTimeout)
	defer cancel()

	start := time.Now()
	reply, err := d.client.SendBatch(ctx, conversationID, res.Messages)
	replyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return reply, nil
}
