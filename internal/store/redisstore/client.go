// Package redisstore backs the durable message queue and the distributed
// dispatch lock with Redis.
package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions tunes the shared connection pool.
type ClientOptions struct {
	PoolSize    int
	PoolTimeout time.Duration // bounded wait for a pooled connection
}

// NewClient connects to Redis. raw is a comma-separated list of redis:// URLs or
// host:port addresses; more than one address selects cluster mode.
func NewClient(ctx context.Context, raw string, opts ClientOptions) (redis.UniversalClient, error) {
	if raw == "" {
		return nil, fmt.Errorf("redis URL must be provided")
	}

	uo, err := buildUniversalOptions(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if len(uo.Addrs) > 1 {
		uo.DB = 0
	}
	if opts.PoolSize > 0 {
		uo.PoolSize = opts.PoolSize
	}
	if opts.PoolTimeout > 0 {
		uo.PoolTimeout = opts.PoolTimeout
	}

	client := redis.NewUniversalClient(uo)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}

		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}

	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no redis addresses provided")
	}
	return opts, nil
}
