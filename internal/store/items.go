package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateName is returned by InsertItem when an item with the same
// name already exists.
var ErrDuplicateName = errors.New("store: item name already exists")

// ErrItemNotFound is returned when no item matches the requested name or id.
var ErrItemNotFound = errors.New("store: item not found")

// ItemRow is the raw on-disk row for an encrypted item: the ciphertext and
// nonce are opaque to the store and meaningful only to the key manager that
// wraps and unwraps them.
type ItemRow struct {
	ID         int64
	Name       string
	Kind       int
	Nonce      []byte
	Ciphertext []byte
	CreatedAt  string
	UpdatedAt  string
}

// InsertItem adds a new row and returns its assigned id.
func InsertItem(ctx context.Context, tx *sql.Tx, name string, kind int, nonce, ciphertext []byte) (int64, error) {
	ts := now().Format(timeLayout)
	res, err := tx.ExecContext(ctx, `
INSERT INTO items(name, kind, nonce, ciphertext, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?)`, name, kind, nonce, ciphertext, ts, ts)
	if err != nil {
		if isUniqueConstraint(err) {
			return 0, ErrDuplicateName
		}
		return 0, fmt.Errorf("store: insert item: %w", err)
	}
	return res.LastInsertId()
}

// UpdateItem replaces the kind, nonce, and ciphertext of an existing item,
// identified by name, and bumps its updated_at timestamp.
func UpdateItem(ctx context.Context, tx *sql.Tx, name string, kind int, nonce, ciphertext []byte) error {
	res, err := tx.ExecContext(ctx, `
UPDATE items SET kind = ?, nonce = ?, ciphertext = ?, updated_at = ?
WHERE name = ?`, kind, nonce, ciphertext, now().Format(timeLayout), name)
	if err != nil {
		return fmt.Errorf("store: update item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update item: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// GetItemByName returns the raw row for name, or ErrItemNotFound.
func (s *Store) GetItemByName(ctx context.Context, name string) (ItemRow, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, kind, nonce, ciphertext, created_at, updated_at
FROM items WHERE name = ?`, name)
	return scanItemRow(row)
}

// ListItems returns every item row, ordered by name. Callers needing
// metadata-only views should ignore the Nonce/Ciphertext fields rather than
// query a separate projection, since SQLite has no meaningful cost
// difference and it keeps the accessor surface small.
func (s *Store) ListItems(ctx context.Context) ([]ItemRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, kind, nonce, ciphertext, created_at, updated_at
FROM items ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list items: %w", err)
	}
	defer rows.Close()

	var items []ItemRow
	for rows.Next() {
		var r ItemRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Kind, &r.Nonce, &r.Ciphertext, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list items: %w", err)
	}
	return items, nil
}

// DeleteItem removes the item named name. It returns ErrItemNotFound if no
// such item exists.
func DeleteItem(ctx context.Context, tx *sql.Tx, name string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("store: delete item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete item: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func scanItemRow(row *sql.Row) (ItemRow, error) {
	var r ItemRow
	err := row.Scan(&r.ID, &r.Name, &r.Kind, &r.Nonce, &r.Ciphertext, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ItemRow{}, ErrItemNotFound
	}
	if err != nil {
		return ItemRow{}, fmt.Errorf("store: get item: %w", err)
	}
	return r, nil
}

func isUniqueConstraint(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
