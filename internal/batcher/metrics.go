package batcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK         = "ok"
	outcomeEmpty      = "empty"
	outcomeReplyError = "reply_error"
	outcomeStoreError = "store_error"
)

var (
	enqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentbot",
			Subsystem: "batcher",
			Name:      "enqueued_total",
			Help:      "Messages accepted by enqueue",
		},
		[]string{"status"},
	)

	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentbot",
			Subsystem: "batcher",
			Name:      "dispatches_total",
			Help:      "Dispatch attempts by outcome",
		},
		[]string{"outcome"},
	)

	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agentbot",
			Subsystem: "batcher",
			Name:      "batch_size",
			Help:      "Messages per dispatched batch",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 50},
		},
	)

	replyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agentbot",
			Subsystem: "batcher",
			Name:      "reply_duration_seconds",
			Help:      "Reply service call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	activeTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentbot",
			Subsystem: "batcher",
			Name:      "active_timers",
			Help:      "Conversations with a running poll timer",
		},
	)

	tickErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentbot",
			Subsystem: "batcher",
			Name:      "tick_errors_total",
			Help:      "Poll ticks that failed to read or dispatch",
		},
	)
)
