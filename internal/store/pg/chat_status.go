package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

// PGStatusStore implements store.StatusStore on the chat_status table.
type PGStatusStore struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

var _ store.StatusStore = (*PGStatusStore)(nil)

// NewPGStatusStore wraps pool. timeout bounds each statement including the
// wait for a free connection; zero means the caller's context alone.
func NewPGStatusStore(db *pgxpool.Pool, timeout time.Duration) *PGStatusStore {
	return &PGStatusStore{db: db, timeout: timeout}
}

func (s *PGStatusStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *PGStatusStore) RecordArrival(ctx context.Context, conversationID int64, now time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.Exec(ctx,
		`INSERT INTO chat_status (chat_id, pending_count, last_message_at, updated_at)
		 VALUES ($1, 1, $2, $2)
		 ON CONFLICT (chat_id) DO UPDATE SET
		   pending_count = chat_status.pending_count + 1,
		   last_message_at = EXCLUDED.last_message_at,
		   updated_at = EXCLUDED.updated_at`,
		conversationID, now,
	)
	if err != nil {
		return store.Unavailable("record arrival", err)
	}
	return nil
}

func (s *PGStatusStore) ListReady(ctx context.Context, now time.Time, quiet time.Duration, volume int) ([]int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT chat_id FROM chat_status
		 WHERE pending_count > 0
		   AND (pending_count > $1 OR last_message_at < $2)
		 ORDER BY chat_id`,
		volume, now.Add(-quiet),
	)
	if err != nil {
		return nil, store.Unavailable("list ready", err)
	}
	return collectIDs(rows)
}

func (s *PGStatusStore) ListPending(ctx context.Context) ([]int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT chat_id FROM chat_status WHERE pending_count > 0 ORDER BY chat_id`)
	if err != nil {
		return nil, store.Unavailable("list pending", err)
	}
	return collectIDs(rows)
}

func (s *PGStatusStore) GetRow(ctx context.Context, conversationID int64) (*store.ConversationStatus, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var row store.ConversationStatus
	err := s.db.QueryRow(ctx,
		`SELECT chat_id, pending_count, last_message_at, updated_at
		 FROM chat_status WHERE chat_id = $1`, conversationID,
	).Scan(&row.ConversationID, &row.PendingCount, &row.LastMessageAt, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable("get status", err)
	}
	return &row, nil
}

func (s *PGStatusStore) ReduceCount(ctx context.Context, conversationID int64, n int, now time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.Exec(ctx,
		`UPDATE chat_status
		 SET pending_count = GREATEST(0, pending_count - $1),
		     updated_at = $2
		 WHERE chat_id = $3`,
		n, now, conversationID,
	)
	if err != nil {
		return store.Unavailable("reduce count", err)
	}
	return nil
}

func (s *PGStatusStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		return store.Unavailable("status ping", err)
	}
	return nil
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, store.Unavailable("scan ids", err)
	}
	return ids, nil
}
