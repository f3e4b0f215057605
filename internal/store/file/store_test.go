package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

func TestQueueFIFO(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	ctx := context.Background()

	for _, m := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Append(ctx, 1, m))
	}

	got, err := s.PopFront(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	got, err = s.PopFront(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, got)

	got, err = s.PopFront(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.PopFront(ctx, 2, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStatusCounts(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	row, err := s.GetRow(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, row)

	require.NoError(t, s.RecordArrival(ctx, 5, t0))
	require.NoError(t, s.RecordArrival(ctx, 5, t0.Add(time.Second)))
	row, err = s.GetRow(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 2, row.PendingCount)
	assert.Equal(t, t0.Add(time.Second), row.LastMessageAt)

	require.NoError(t, s.ReduceCount(ctx, 5, 10, t0.Add(2*time.Second)))
	row, err = s.GetRow(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, row.PendingCount, "clamped at zero")
	assert.Equal(t, t0.Add(2*time.Second), row.UpdatedAt)

	require.NoError(t, s.ReduceCount(ctx, 99, 1, t0), "unknown conversation is a no-op")
}

func TestListReadyAndPending(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	// 1: quiet long enough. 2: still typing. 3: over volume. 4: drained.
	require.NoError(t, s.RecordArrival(ctx, 1, now.Add(-20*time.Second)))
	require.NoError(t, s.RecordArrival(ctx, 2, now.Add(-time.Second)))
	for i := 0; i < 6; i++ {
		require.NoError(t, s.RecordArrival(ctx, 3, now))
	}
	require.NoError(t, s.RecordArrival(ctx, 4, now.Add(-time.Minute)))
	require.NoError(t, s.ReduceCount(ctx, 4, 1, now))

	ready, err := s.ListReady(ctx, now, 10*time.Second, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ready)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, pending)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, 42, "hello"))
	require.NoError(t, s.RecordArrival(ctx, 42, now))
	require.NoError(t, s.Append(ctx, 42, "world"))
	require.NoError(t, s.RecordArrival(ctx, 42, now))

	// Garbage next to real data is skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "7.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	reopened, err := New(dir)
	require.NoError(t, err)

	pending, err := reopened.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, pending)

	row, err := reopened.GetRow(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 2, row.PendingCount)
	assert.True(t, row.LastMessageAt.Equal(now))

	got, err := reopened.PopFront(ctx, 42, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world"}, got)

	n, err := reopened.Len(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailedSaveKeepsState(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conversations")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, 1, "a"))
	require.NoError(t, s.RecordArrival(ctx, 1, now))

	// Every later save fails.
	require.NoError(t, os.RemoveAll(dir))

	got, err := s.PopFront(ctx, 1, 1)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Nil(t, got)
	n, err := s.Len(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "pop rolled back")

	assert.ErrorIs(t, s.Append(ctx, 1, "b"), store.ErrUnavailable)
	n, err = s.Len(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "append rolled back")

	assert.ErrorIs(t, s.Append(ctx, 2, "new"), store.ErrUnavailable)
	row, err := s.GetRow(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, row, "no row created for a failed first append")

	assert.ErrorIs(t, s.RecordArrival(ctx, 1, now.Add(time.Minute)), store.ErrUnavailable)
	assert.ErrorIs(t, s.ReduceCount(ctx, 1, 1, now.Add(time.Minute)), store.ErrUnavailable)
	row, err = s.GetRow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, row.PendingCount)
	assert.Equal(t, now, row.LastMessageAt)

	// Recovers once the directory is back.
	require.NoError(t, os.MkdirAll(dir, 0755))
	got, err = s.PopFront(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}
