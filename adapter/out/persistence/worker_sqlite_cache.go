package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"triage_worker/core/port/out"
)

const sqliteCacheSchema = `
CREATE TABLE IF NOT EXISTS llm_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	created_at INTEGER NOT NULL
)`

// SQLiteCacheStore persists LLM responses in a local SQLite file so repeated
// evaluation and development runs reuse earlier model output.
type SQLiteCacheStore struct {
	db *sqlx.DB
}

var _ out.ResponseCache = (*SQLiteCacheStore)(nil)

// NewSQLiteCacheStore ensures the cache table exists.
func NewSQLiteCacheStore(ctx context.Context, db *sqlx.DB) (*SQLiteCacheStore, error) {
	if _, err := db.ExecContext(ctx, sqliteCacheSchema); err != nil {
		return nil, fmt.Errorf("failed to create llm_cache table: %w", err)
	}
	return &SQLiteCacheStore{db: db}, nil
}

func (s *SQLiteCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM llm_cache WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read llm cache: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteCacheStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_cache (key, value, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write llm cache: %w", err)
	}
	return nil
}

// Count returns the number of cached responses.
func (s *SQLiteCacheStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM llm_cache`); err != nil {
		return 0, err
	}
	return n, nil
}
