package pg

import (
	"context"
	"fmt"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

// NewPGStatus opens the pool and returns the Postgres-backed status store
// (managed mode) together with its release func.
func NewPGStatus(ctx context.Context, cfg store.StoreConfig) (*PGStatusStore, func(), error) {
	pool, err := OpenPool(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPGStatusStore(pool, cfg.OpTimeout), pool.Close, nil
}
