package batcher

import "time"

// Config controls batching thresholds and timer cadence.
type Config struct {
	PollInterval    time.Duration // per-conversation tick period
	VolumeThreshold int           // ready when pending exceeds this
	QuietThreshold  time.Duration // ready when idle longer than this
	IdleEvictAfter  time.Duration // drop timers of drained conversations idle this long; 0 = never
	ReplyTimeout    time.Duration // bound on one reply service call
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:    time.Second,
		VolumeThreshold: 5,
		QuietThreshold:  10 * time.Second,
		IdleEvictAfter:  10 * time.Minute,
		ReplyTimeout:    10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = d.VolumeThreshold
	}
	if c.QuietThreshold <= 0 {
		c.QuietThreshold = d.QuietThreshold
	}
	if c.IdleEvictAfter < 0 {
		c.IdleEvictAfter = 0
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = d.ReplyTimeout
	}
	return c
}
