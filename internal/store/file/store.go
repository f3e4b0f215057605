// Package file implements the queue and status stores on the local filesystem
// for standalone mode. Each conversation is one JSON document holding its status
// row and queued messages, rewritten atomically on every mutation.
// An empty storage dir keeps everything in memory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dongshu2013/the-agent-bot/internal/store"
)

type conversation struct {
	Status   store.ConversationStatus `json:"status"`
	Messages []string                 `json:"messages"`
}

// Store implements store.MessageQueue and store.StatusStore.
type Store struct {
	mu            sync.Mutex
	conversations map[int64]*conversation
	storage       string
}

var (
	_ store.MessageQueue = (*Store)(nil)
	_ store.StatusStore  = (*Store)(nil)
)

// New opens (or creates) a store rooted at storage.
func New(storage string) (*Store, error) {
	s := &Store{
		conversations: make(map[int64]*conversation),
		storage:       storage,
	}
	if storage == "" {
		return s, nil
	}
	if err := os.MkdirAll(storage, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	s.loadAll()
	return s, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Append(_ context.Context, conversationID int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.draft(conversationID)
	c.Messages = append(c.Messages, message)
	return s.commit(conversationID, c)
}

func (s *Store) PopFront(_ context.Context, conversationID int64, maxCount int) ([]string, error) {
	if maxCount <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.conversations[conversationID]
	if !ok || len(cur.Messages) == 0 {
		return nil, nil
	}
	c := s.draft(conversationID)
	n := min(maxCount, len(c.Messages))
	popped := c.Messages[:n:n]
	c.Messages = c.Messages[n:]
	if err := s.commit(conversationID, c); err != nil {
		return nil, err
	}
	return popped, nil
}

func (s *Store) Len(_ context.Context, conversationID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok {
		return int64(len(c.Messages)), nil
	}
	return 0, nil
}

func (s *Store) RecordArrival(_ context.Context, conversationID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.draft(conversationID)
	c.Status.PendingCount++
	c.Status.LastMessageAt = now
	c.Status.UpdatedAt = now
	return s.commit(conversationID, c)
}

func (s *Store) ListReady(_ context.Context, now time.Time, quiet time.Duration, volume int) ([]int64, error) {
	cutoff := now.Add(-quiet)
	return s.filter(func(st store.ConversationStatus) bool {
		return st.PendingCount > 0 && (st.PendingCount > volume || st.LastMessageAt.Before(cutoff))
	}), nil
}

func (s *Store) ListPending(context.Context) ([]int64, error) {
	return s.filter(func(st store.ConversationStatus) bool {
		return st.PendingCount > 0
	}), nil
}

func (s *Store) GetRow(_ context.Context, conversationID int64) (*store.ConversationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	row := c.Status
	return &row, nil
}

func (s *Store) ReduceCount(_ context.Context, conversationID int64, n int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil
	}
	c := s.draft(conversationID)
	c.Status.PendingCount = max(0, c.Status.PendingCount-n)
	c.Status.UpdatedAt = now
	return s.commit(conversationID, c)
}

func (s *Store) filter(keep func(store.ConversationStatus) bool) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, c := range s.conversations {
		if keep(c.Status) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// draft returns a private copy of the conversation (or a fresh one) to mutate.
// Must be called with s.mu held.
func (s *Store) draft(conversationID int64) *conversation {
	cur, ok := s.conversations[conversationID]
	if !ok {
		return &conversation{Status: store.ConversationStatus{ConversationID: conversationID}}
	}
	return &conversation{
		Status:   cur.Status,
		Messages: append([]string(nil), cur.Messages...),
	}
}

// commit persists c and only then makes it visible. On a failed save the
// previous state stays in place. Must be called with s.mu held.
func (s *Store) commit(conversationID int64, c *conversation) error {
	if err := s.save(conversationID, c); err != nil {
		return err
	}
	s.conversations[conversationID] = c
	return nil
}

// save must be called with s.mu held.
func (s *Store) save(conversationID int64, c *conversation) error {
	if s.storage == "" {
		return nil
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(s.storage, strconv.FormatInt(conversationID, 10)+".json")

	// Atomic write: temp file → rename
	tmpFile, err := os.CreateTemp(s.storage, "conversation-*.tmp")
	if err != nil {
		return store.Unavailable("file save", err)
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return store.Unavailable("file save", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return store.Unavailable("file save", err)
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return store.Unavailable("file save", err)
	}
	cleanup = false
	return nil
}

func (s *Store) loadAll() {
	files, err := os.ReadDir(s.storage)
	if err != nil {
		return
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(f.Name(), ".json"), 10, 64)
		if err != nil {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.storage, f.Name()))
		if err != nil {
			slog.Warn("file store: skip unreadable conversation", "file", f.Name(), "error", err)
			continue
		}

		var c conversation
		if err := json.Unmarshal(data, &c); err != nil {
			slog.Warn("file store: skip corrupt conversation", "file", f.Name(), "error", err)
			continue
		}
		c.Status.ConversationID = id
		s.conversations[id] = &c
	}
}
