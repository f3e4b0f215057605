package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

// opsTimeout bounds every store call made by an ops request.
const opsTimeout = 2 * time.Second

// TimerCounter reports the number of conversations being polled.
type TimerCounter interface {
	ActiveTimers() int
}

// ChannelStatus reports whether each registered front-end is running.
type ChannelStatus interface {
	GetStatus() map[string]bool
}

// OpsHandler serves health, metrics and conversation inspection endpoints.
type OpsHandler struct {
	queue  store.MessageQueue
	status store.StatusStore
	timers   TimerCounter
	channels ChannelStatus
	token    string
}

// NewOpsHandler creates the operational handler. timers and channels may be
// nil. token guards /v1 routes ("" = open).
func NewOpsHandler(queue store.MessageQueue, status store.StatusStore, timers TimerCounter, channels ChannelStatus, token string) *OpsHandler {
	return &OpsHandler{queue: queue, status: status, timers: timers, channels: channels, token: token}
}

// RegisterRoutes registers all operational routes on the given mux.
func (h *OpsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/conversations/{id}", h.auth(h.handleGetConversation))
}

func (h *OpsHandler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" {
			if extractBearerToken(r) != h.token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next(w, r)
	}
}

func (h *OpsHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), opsTimeout)
	defer cancel()

	checks := map[string]string{"queue": "ok", "status": "ok"}
	code := http.StatusOK
	if err := h.queue.Ping(ctx); err != nil {
		checks["queue"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if err := h.status.Ping(ctx); err != nil {
		checks["status"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{"checks": checks}
	if h.timers != nil {
		body["active_timers"] = h.timers.ActiveTimers()
	}
	if h.channels != nil {
		running := h.channels.GetStatus()
		for name, ok := range running {
			if !ok {
				checks["channel:"+name] = "not running"
				code = http.StatusServiceUnavailable
			}
		}
		body["channels"] = running
	}
	writeJSON(w, code, body)
}

func (h *OpsHandler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), opsTimeout)
	defer cancel()

	row, err := h.status.GetRow(ctx, id)
	if err != nil {
		slog.Error("conversations.get", "chat_id", id, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "status store unavailable"})
		return
	}
	if row == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}

	queued, err := h.queue.Len(ctx, id)
	if err != nil {
		slog.Error("conversations.get", "chat_id", id, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": row,
		"queued": queued,
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("http: encode response failed", "error", err)
	}
}
