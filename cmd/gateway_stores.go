package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dongshu2013/the-agent-bot/internal/config"
	"github.com/dongshu2013/the-agent-bot/internal/store"
	"github.com/dongshu2013/the-agent-bot/internal/store/file"
	"github.com/dongshu2013/the-agent-bot/internal/store/pg"
	"github.com/dongshu2013/the-agent-bot/internal/store/redisstore"
)

func storeConfig(cfg *config.Config) store.StoreConfig {
	return store.StoreConfig{
		PostgresDSN:     cfg.Database.PostgresDSN,
		MaxConns:        int32(cfg.Database.MaxConns),
		MaxConnIdleTime: msDuration(cfg.Database.MaxConnIdleMs),
		ConnectTimeout:  msDuration(cfg.Database.ConnectTimeoutMs),
		RedisURL:        cfg.Redis.URL,
		RedisPoolSize:   cfg.Redis.PoolSize,
		RedisPoolWait:   msDuration(cfg.Redis.PoolTimeoutMs),
		QueueKeyPrefix:  cfg.Redis.KeyPrefix,
		OpTimeout:       msDuration(cfg.Database.OpTimeoutMs),
	}
}

// openStores connects the queue and status backends for the configured mode.
// On error every connection opened so far is released.
func openStores(ctx context.Context, cfg *config.Config) (*store.Stores, error) {
	if !cfg.IsManagedMode() {
		fs, err := file.New(config.ExpandHome(cfg.Standalone.Storage))
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		slog.Info("standalone mode: file store", "storage", cfg.Standalone.Storage)
		return &store.Stores{Queue: fs, Status: fs}, nil
	}

	sc := storeConfig(cfg)
	stores := &store.Stores{}

	status, closePG, err := pg.NewPGStatus(ctx, sc)
	if err != nil {
		return nil, err
	}
	stores.Status = status
	stores.AddCloser(closePG)

	rdb, err := redisstore.NewClient(ctx, sc.RedisURL, redisstore.ClientOptions{
		PoolSize:    sc.RedisPoolSize,
		PoolTimeout: sc.RedisPoolWait,
	})
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("open redis: %w", err)
	}
	stores.AddCloser(func() {
		if err := rdb.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
	})

	stores.Queue = redisstore.NewQueue(rdb, sc.QueueKeyPrefix)
	stores.Locker = redisstore.NewLocker(rdb, msDuration(cfg.Redis.LockExpiryMs))

	slog.Info("managed mode: redis queue + postgres status",
		"pg_max_conns", sc.MaxConns, "redis_pool_size", sc.RedisPoolSize)
	return stores, nil
}
