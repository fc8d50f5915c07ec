package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthq/internal/domain"
)

func stores(t *testing.T) map[string]domain.ConversationStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]domain.ConversationStore{
		DriverMemory: NewMemoryStore(),
		DriverSQLite: sqlite,
	}
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id, user string, offset time.Duration) domain.ConversationRecord {
	return domain.ConversationRecord{
		ID:          id,
		UserID:      user,
		Message:     "message " + id,
		Response:    "response " + id,
		AgentName:   "Executive Secretary",
		ActionTaken: domain.ActionDefaultRouted,
		CreatedAt:   base.Add(offset),
	}
}

func TestStore_ListByUserNewestFirst(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Append(ctx, rec("b", "alice", 2*time.Minute)))
			require.NoError(t, s.Append(ctx, rec("a", "alice", time.Minute)))
			require.NoError(t, s.Append(ctx, rec("c", "alice", 3*time.Minute)))
			require.NoError(t, s.Append(ctx, rec("x", "bob", time.Minute)))

			got, err := s.ListByUser(ctx, "alice", 0)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, []string{"c", "b", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
			assert.Equal(t, "response c", got[0].Response)
			assert.Equal(t, domain.ActionDefaultRouted, got[0].ActionTaken)
			assert.True(t, got[0].CreatedAt.Equal(base.Add(3*time.Minute)))

			limited, err := s.ListByUser(ctx, "alice", 2)
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(t, "c", limited[0].ID)

			none, err := s.ListByUser(ctx, "carol", 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_PurgeBefore(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Append(ctx, rec("old", "alice", -48*time.Hour)))
			require.NoError(t, s.Append(ctx, rec("older", "bob", -72*time.Hour)))
			require.NoError(t, s.Append(ctx, rec("new", "alice", 0)))

			n, err := s.PurgeBefore(ctx, base.Add(-24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			got, _ := s.ListByUser(ctx, "alice", 0)
			require.Len(t, got, 1)
			assert.Equal(t, "new", got[0].ID)
			gone, _ := s.ListByUser(ctx, "bob", 0)
			assert.Empty(t, gone)
		})
	}
}

func TestSQLiteStore_DuplicateID(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, rec("a", "alice", 0)))
	err = s.Append(ctx, rec("a", "alice", 0))
	assert.ErrorIs(t, err, domain.ErrStoreWrite)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), rec("a", "alice", 0)))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.ListByUser(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOpen(t *testing.T) {
	s, err := Open("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(DriverSQLite, filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = Open("postgres", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
