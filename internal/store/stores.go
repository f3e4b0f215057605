package store

import "time"

// Stores is the top-level container for the batching engine's storage backends.
// In standalone mode both stores are in-process and Close is a no-op.
type Stores struct {
	Queue  MessageQueue
	Status StatusStore
	Locker Locker // nil when dispatch exclusion is process-local only

	closers []func()
}

// AddCloser registers a release func run by Close in reverse order.
func (s *Stores) AddCloser(fn func()) {
	s.closers = append(s.closers, fn)
}

// Close releases the underlying connections. Callers must stop every
// scheduler timer before calling it.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// StoreConfig carries connection parameters for the managed backends.
type StoreConfig struct {
	PostgresDSN     string
	MaxConns        int32
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration

	RedisURL       string
	RedisPoolSize  int
	RedisPoolWait  time.Duration
	QueueKeyPrefix string

	// OpTimeout bounds every store call, including the wait for a pooled connection.
	OpTimeout time.Duration
}
