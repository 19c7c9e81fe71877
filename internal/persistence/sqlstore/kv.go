package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/courtboard/internal/persistence"
)

// Read returns the stored document for key.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_documents WHERE key_name = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: read %s: %w", key, err)
	}
	return value, nil
}

// Write upserts the document for key.
func (s *Store) Write(ctx context.Context, key string, value []byte) error {
	var query string
	switch s.dialect {
	case DialectMySQL:
		query = `INSERT INTO kv_documents (key_name, value, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO kv_documents (key_name, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key_name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	}
	if _, err := s.db.ExecContext(ctx, query, key, value, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("sqlstore: write %s: %w", key, err)
	}
	return nil
}
