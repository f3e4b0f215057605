package batcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

// ErrEmptyMessage rejects blank text at enqueue.
var ErrEmptyMessage = errors.New("empty message")

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used for readiness checks.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
		s.dispatcher.now = now
	}
}

// WithLocker adds cross-process dispatch exclusion on top of the in-process flag.
func WithLocker(l store.Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// Scheduler owns one poll timer per active conversation and triggers dispatch
// when a conversation becomes ready.
type Scheduler struct {
	cfg        Config
	queue      store.MessageQueue
	status     store.StatusStore
	dispatcher *Dispatcher
	locker     store.Locker
	timers     *timerRegistry
	inflight   sync.Map // conversation id → *atomic.Bool
	now        func() time.Time
}

// New wires a scheduler over the given stores and reply path.
func New(cfg Config, queue store.MessageQueue, status store.StatusStore, client ReplyClient, deliverer Deliverer, opts ...Option) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:        cfg,
		queue:      queue,
		status:     status,
		dispatcher: NewDispatcher(queue, status, client, deliverer, cfg.ReplyTimeout),
		timers:     newTimerRegistry(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Start enables timers and re-arms every conversation left with pending work.
// Recovery failures are logged and returned but never prevent startup.
func (s *Scheduler) Start(ctx context.Context) error {
	s.timers.start(ctx)
	n, err := s.RecoverOnStartup(ctx)
	slog.Info("batcher started",
		"recovered", n,
		"poll_interval", s.cfg.PollInterval,
		"volume_threshold", s.cfg.VolumeThreshold,
		"quiet_threshold", s.cfg.QuietThreshold,
		"idle_evict_after", s.cfg.IdleEvictAfter,
	)
	return err
}

// Stop cancels all timers and waits for in-flight ticks, so a batch already
// handed to the reply service is still sent and delivered. Call it before
// closing the queue and status connections.
func (s *Scheduler) Stop() {
	s.timers.stop()
	activeTimers.Set(0)
	slog.Info("batcher stopped")
}

// Enqueue durably records one message for a conversation and makes sure the
// conversation is being polled. A nil error acknowledges storage, not dispatch.
func (s *Scheduler) Enqueue(ctx context.Context, conversationID int64, text string, now time.Time) error {
	if strings.TrimSpace(text) == "" {
		enqueuedTotal.WithLabelValues("rejected").Inc()
		return ErrEmptyMessage
	}

	if err := s.queue.Append(ctx, conversationID, text); err != nil {
		enqueuedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("enqueue %d: %w", conversationID, err)
	}
	if err := s.status.RecordArrival(ctx, conversationID, now); err != nil {
		enqueuedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("enqueue %d: %w", conversationID, err)
	}
	enqueuedTotal.WithLabelValues("ok").Inc()

	// The message is durable at this point; a missing timer is re-derived on
	// the next restart, so it is not an enqueue failure.
	if err := s.ensureTimerRegistered(conversationID); err != nil {
		slog.Warn("batcher: timer not registered, left for startup recovery", "chat_id", conversationID, "error", err)
	}
	return nil
}

// RecoverOnStartup arms a timer for every conversation with pending > 0.
// Each conversation is handled independently.
func (s *Scheduler) RecoverOnStartup(ctx context.Context) (int, error) {
	ids, err := s.status.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover: list pending: %w", err)
	}

	var errs []error
	recovered := 0
	for _, id := range ids {
		if err := s.ensureTimerRegistered(id); err != nil {
			slog.Error("batcher: recover conversation failed", "chat_id", id, "error", err)
			errs = append(errs, fmt.Errorf("recover %d: %w", id, err))
			continue
		}
		recovered++
	}
	return recovered, errors.Join(errs...)
}

// ActiveTimers reports how many conversations are currently polled.
func (s *Scheduler) ActiveTimers() int { return s.timers.len() }

// HasTimer reports whether a conversation is currently polled.
func (s *Scheduler) HasTimer(conversationID int64) bool { return s.timers.has(conversationID) }

func (s *Scheduler) ensureTimerRegistered(conversationID int64) error {
	created, err := s.timers.ensure(conversationID, func(ctx context.Context, t *activeTimer) {
		s.runTimer(ctx, conversationID, t)
	})
	if err != nil {
		return err
	}
	if created {
		activeTimers.Set(float64(s.timers.len()))
		slog.Debug("batcher: polling started", "chat_id", conversationID)
	}
	return nil
}

// runTimer ticks until ctx is cancelled by Stop. A tick already past the
// select runs to completion on a detached context: once a batch is popped its
// send is bounded only by the reply timeout, and Stop waits for it.
func (s *Scheduler) runTimer(ctx context.Context, conversationID int64, t *activeTimer) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	tickCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			res, err := s.Poll(tickCtx, conversationID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				tickErrorsTotal.Inc()
				slog.Warn("batcher: tick failed", "chat_id", conversationID, "error", err)
				continue
			}
			if res.Idle && s.evict(tickCtx, conversationID, t) {
				return
			}
		}
	}
}

// PollResult is the outcome of one readiness evaluation.
type PollResult struct {
	Busy       bool    // another dispatch for this conversation was in flight
	Dispatched *Result // non-nil when a batch was sent
	Idle       bool    // drained and quiet past the eviction window
}

// Poll evaluates one conversation and dispatches it if ready. At most one
// dispatch per conversation runs at a time; concurrent calls return Busy.
func (s *Scheduler) Poll(ctx context.Context, conversationID int64) (PollResult, error) {
	flag := s.inflightFlag(conversationID)
	if !flag.CompareAndSwap(false, true) {
		return PollResult{Busy: true}, nil
	}
	defer flag.Store(false)

	row, err := s.status.GetRow(ctx, conversationID)
	if err != nil {
		return PollResult{}, err
	}
	now := s.now()
	if !Ready(row, now, s.cfg) {
		return PollResult{Idle: idle(row, now, s.cfg)}, nil
	}

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, conversationID)
		if err != nil {
			return PollResult{}, err
		}
		if !ok {
			return PollResult{Busy: true}, nil
		}
		defer release()
	}

	res, err := s.dispatcher.Dispatch(ctx, conversationID)
	return PollResult{Dispatched: res}, err
}

// evict removes an idle conversation's timer, then re-checks the store so a
// message that raced with the removal still gets a timer. Returns true when
// the calling timer goroutine should exit.
func (s *Scheduler) evict(ctx context.Context, conversationID int64, t *activeTimer) bool {
	if !s.timers.remove(conversationID, t) {
		return true
	}
	activeTimers.Set(float64(s.timers.len()))
	s.inflight.Delete(conversationID)

	row, err := s.status.GetRow(ctx, conversationID)
	if err != nil || (row != nil && row.PendingCount > 0) {
		if rerr := s.ensureTimerRegistered(conversationID); rerr != nil && !errors.Is(rerr, ErrStopped) {
			slog.Warn("batcher: re-arm after eviction failed", "chat_id", conversationID, "error", rerr)
		}
		return true
	}
	slog.Debug("batcher: idle timer evicted", "chat_id", conversationID)
	return true
}

func (s *Scheduler) inflightFlag(conversationID int64) *atomic.Bool {
	v, _ := s.inflight.LoadOrStore(conversationID, new(atomic.Bool))
	return v.(*atomic.Bool)
}
