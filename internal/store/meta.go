package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// metaKey is the sole row key in the meta table: chamber keeps exactly one
// vault-wide key-management record per file.
const metaKey = "v1"

// ErrNoMeta indicates the vault has not been initialized: the meta table
// has no row yet.
var ErrNoMeta = errors.New("store: vault has no meta row")

// LoadMeta returns the raw meta payload (a frame.MetaFrame-encoded blob), or
// ErrNoMeta if the vault has never been initialized.
func (s *Store) LoadMeta(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM meta WHERE key = ?`, metaKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoMeta
	}
	if err != nil {
		return nil, fmt.Errorf("store: load meta: %w", err)
	}
	return payload, nil
}

// UpsertMeta writes the meta row, replacing any existing one. Callers run
// this inside a Store.Tx alongside other writes that must commit atomically
// with it (e.g. none currently, since meta is the sole row touched by Init
// and RotatePassphrase).
func UpsertMeta(ctx context.Context, tx *sql.Tx, payload []byte) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO meta(key, payload) VALUES(?, ?)
ON CONFLICT(key) DO UPDATE SET payload = excluded.payload`, metaKey, payload)
	if err != nil {
		return fmt.Errorf("store: upsert meta: %w", err)
	}
	return nil
}

// HasMeta reports whether the vault has been initialized, without
// retrieving or decoding the payload.
func (s *Store) HasMeta(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM meta WHERE key = ?`, metaKey).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: check meta: %w", err)
	}
	return n > 0, nil
}
