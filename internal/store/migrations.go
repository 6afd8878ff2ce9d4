package store

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS meta(
	key     TEXT PRIMARY KEY,
	payload BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS items(
	id         INTEGER PRIMARY KEY,
	name       TEXT    NOT NULL UNIQUE,
	kind       INTEGER NOT NULL,
	nonce      BLOB    NOT NULL,
	ciphertext BLOB    NOT NULL,
	created_at TEXT    NOT NULL,
	updated_at TEXT    NOT NULL
);
`,
	},
}

// migrate applies every migration whose version exceeds the highest
// recorded schema_version, in order, inside a single transaction.
func (s *Store) migrate(ctx context.Context) error {
	return s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations(
	version    INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
)`); err != nil {
			return fmt.Errorf("store: create schema_migrations: %w", err)
		}

		current := 0
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
		if err := row.Scan(&current); err != nil {
			return fmt.Errorf("store: read schema_version: %w", err)
		}

		for _, m := range migrations {
			if m.version <= current {
				continue
			}
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("store: apply migration %d: %w", m.version, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`,
				m.version, now().Format(timeLayout)); err != nil {
				return fmt.Errorf("store: record migration %d: %w", m.version, err)
			}
		}
		return nil
	})
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
