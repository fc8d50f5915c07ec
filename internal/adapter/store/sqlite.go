package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"agenthq/internal/domain"
)

// SQLiteStore implements domain.ConversationStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath
// and runs the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open conversation db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate conversation db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			message      TEXT NOT NULL,
			response     TEXT NOT NULL,
			agent_name   TEXT NOT NULL,
			action_taken TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations (user_id, created_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, rec domain.ConversationRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, user_id, message, response, agent_name, action_taken, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.UserID, rec.Message, rec.Response, rec.AgentName, rec.ActionTaken, rec.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return domain.NewDomainError("SQLiteStore.Append", domain.ErrStoreWrite, err.Error())
	}
	return nil
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error) {
	query := "SELECT id, user_id, message, response, agent_name, action_taken, created_at FROM conversations WHERE user_id = ? ORDER BY created_at DESC, id DESC"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewDomainError("SQLiteStore.ListByUser", domain.ErrStoreRead, err.Error())
	}
	defer rows.Close()

	var out []domain.ConversationRecord
	for rows.Next() {
		var (
			rec   domain.ConversationRecord
			nanos int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Message, &rec.Response, &rec.AgentName, &rec.ActionTaken, &nanos); err != nil {
			return nil, domain.NewDomainError("SQLiteStore.ListByUser", domain.ErrStoreRead, err.Error())
		}
		rec.CreatedAt = time.Unix(0, nanos).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE created_at < ?", cutoff.UTC().UnixNano())
	if err != nil {
		return 0, domain.NewDomainError("SQLiteStore.PurgeBefore", domain.ErrStoreWrite, err.Error())
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

var _ domain.ConversationStore = (*SQLiteStore)(nil)
