package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type migration struct {
	version     string
	description string
	statements  map[Dialect][]string
}

var migrations = []migration{
	{
		version:     "001",
		description: "create kv_documents",
		statements: map[Dialect][]string{
			DialectSQLite: {`CREATE TABLE IF NOT EXISTS kv_documents (
				key_name TEXT PRIMARY KEY,
				value BLOB NOT NULL,
				updated_at INTEGER NOT NULL
			)`},
			DialectMySQL: {`CREATE TABLE IF NOT EXISTS kv_documents (
				key_name VARCHAR(191) NOT NULL PRIMARY KEY,
				value LONGBLOB NOT NULL,
				updated_at BIGINT NOT NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
		},
	},
	{
		version:     "002",
		description: "create session_history",
		statements: map[Dialect][]string{
			DialectSQLite: {
				`CREATE TABLE IF NOT EXISTS session_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					court INTEGER NOT NULL,
					players TEXT NOT NULL,
					guests INTEGER NOT NULL DEFAULT 0,
					started_at INTEGER NOT NULL,
					ended_at INTEGER NOT NULL,
					original_end INTEGER,
					cleared_at INTEGER NOT NULL,
					reason TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_session_history_court ON session_history (court, cleared_at)`,
			},
			DialectMySQL: {
				`CREATE TABLE IF NOT EXISTS session_history (
					id BIGINT AUTO_INCREMENT PRIMARY KEY,
					court INT NOT NULL,
					players TEXT NOT NULL,
					guests INT NOT NULL DEFAULT 0,
					started_at BIGINT NOT NULL,
					ended_at BIGINT NOT NULL,
					original_end BIGINT NULL,
					cleared_at BIGINT NOT NULL,
					reason VARCHAR(64) NOT NULL,
					INDEX idx_session_history_court (court, cleared_at)
				) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			},
		},
	},
}

// Migrate applies pending schema versions in order, each in its own
// transaction, recording them in schema_migrations.
func (s *Store) Migrate(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sqlstore", "dialect", string(s.dialect))

	versionTable := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(32) PRIMARY KEY,
		applied_at BIGINT NOT NULL,
		execution_time_ms BIGINT NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, versionTable); err != nil {
		return fmt.Errorf("sqlstore: create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		applied, err := s.versionApplied(ctx, m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		started := time.Now()
		err = s.WithTransaction(ctx, func(tx *sql.Tx) error {
			for i, stmt := range m.statements[s.dialect] {
				if _, err := tx.ExecContext(ctx, strings.TrimSpace(stmt)); err != nil {
					return fmt.Errorf("statement %d: %w", i+1, err)
				}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at, execution_time_ms) VALUES (?, ?, ?)`,
				m.version, s.now().UnixMilli(), time.Since(started).Milliseconds())
			return err
		})
		if err != nil {
			return fmt.Errorf("sqlstore: migration %s (%s): %w", m.version, m.description, err)
		}
		logger.InfoContext(ctx, "migration applied", "version", m.version, "description", m.description, "duration", time.Since(started))
	}
	return nil
}

// AppliedVersions lists recorded schema versions in order.
func (s *Store) AppliedVersions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *Store) versionApplied(ctx context.Context, version string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, version).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlstore: check version %s: %w", version, err)
	}
	return true, nil
}
