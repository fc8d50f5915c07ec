// Package store holds conversation history backends.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agenthq/internal/domain"
)

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Open returns the conversation store for driver. path is used by sqlite only.
func Open(driver, path string) (domain.ConversationStore, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", domain.ErrInvalidInput, driver)
	}
}

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	byUser map[string][]domain.ConversationRecord // oldest first
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byUser: make(map[string][]domain.ConversationRecord)}
}

func (m *MemoryStore) Append(_ context.Context, rec domain.ConversationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := append(m.byUser[rec.UserID], rec)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	m.byUser[rec.UserID] = recs
	return nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]domain.ConversationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.byUser[userID]
	n := len(recs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ConversationRecord, 0, n)
	for i := len(recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

func (m *MemoryStore) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for user, recs := range m.byUser {
		kept := recs[:0]
		for _, r := range recs {
			if r.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(m.byUser, user)
		} else {
			m.byUser[user] = kept
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }

var _ domain.ConversationStore = (*MemoryStore)(nil)
