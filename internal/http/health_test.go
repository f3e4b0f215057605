package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongshu2013/the-agent-bot/internal/store"
	"github.com/dongshu2013/the-agent-bot/internal/store/file"
)

type fixedTimers int

func (f fixedTimers) ActiveTimers() int { return int(f) }

type downQueue struct{ store.MessageQueue }

func (downQueue) Ping(context.Context) error { return errors.New("redis down") }

type fixedChannels map[string]bool

func (f fixedChannels) GetStatus() map[string]bool { return f }

// deadlineQueue records whether Len was called with a bounded context.
type deadlineQueue struct {
	store.MessageQueue
	hadDeadline bool
}

func (q *deadlineQueue) Len(ctx context.Context, id int64) (int64, error) {
	_, q.hadDeadline = ctx.Deadline()
	return q.MessageQueue.Len(ctx, id)
}

func newTestMux(t *testing.T, queue store.MessageQueue, st *file.Store, token string) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	NewOpsHandler(queue, st, fixedTimers(2), fixedChannels{"telegram": true}, token).RegisterRoutes(mux)
	return mux
}

func TestHealthOK(t *testing.T) {
	st, err := file.New("")
	require.NoError(t, err)
	mux := newTestMux(t, st, st, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Checks       map[string]string `json:"checks"`
		ActiveTimers int               `json:"active_timers"`
		Channels     map[string]bool   `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Checks["queue"])
	assert.Equal(t, 2, body.ActiveTimers)
	assert.Equal(t, map[string]bool{"telegram": true}, body.Channels)
}

func TestHealthChannelDown(t *testing.T) {
	st, err := file.New("")
	require.NoError(t, err)
	mux := http.NewServeMux()
	NewOpsHandler(st, st, nil, fixedChannels{"telegram": false}, "").RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "channel:telegram")
}

func TestGetConversationBoundsStoreCalls(t *testing.T) {
	st, err := file.New("")
	require.NoError(t, err)
	require.NoError(t, st.RecordArrival(context.Background(), 5, time.Now()))
	queue := &deadlineQueue{MessageQueue: st}
	mux := newTestMux(t, queue, st, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations/5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, queue.hadDeadline)
}

func TestHealthDegraded(t *testing.T) {
	st, err := file.New("")
	require.NoError(t, err)
	mux := newTestMux(t, downQueue{st}, st, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis down")
}

func TestGetConversation(t *testing.T) {
	st, err := file.New("")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.Append(ctx, 42, "hi"))
	require.NoError(t, st.RecordArrival(ctx, 42, time.Unix(1_700_000_000, 0)))

	mux := newTestMux(t, st, st, "secret")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations/42", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/42", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status store.ConversationStatus `json:"status"`
		Queued int64                    `json:"queued"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Status.PendingCount)
	assert.Equal(t, int64(1), body.Queued)

	req = httptest.NewRequest(http.MethodGet, "/v1/conversations/7", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	st, err := file.New("")
	require.NoError(t, err)
	mux := newTestMux(t, st, st, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
