// Package store implements chamber's embedded relational storage: a single
// SQLite file holding the wrapped-DEK meta row and the encrypted item table,
// opened under WAL journaling with single-writer semantics and an advisory
// file lock guarding concurrent processes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrPermissions is returned when an existing vault file has any group or
// other permission bit set and the caller has not opted out via
// Options.RequireOwnerOnlyPermissions. The parent directory is not checked.
var ErrPermissions = errors.New("store: file permissions allow group/other access")

// ErrBusy is returned when another process already holds the advisory lock
// on this vault file.
var ErrBusy = errors.New("store: vault file is locked by another process")

const (
	filePerm = 0o600
	dirPerm  = 0o700
)

// Options tunes how Open creates or attaches to a vault file.
type Options struct {
	// RequireOwnerOnlyPermissions rejects vault files that are group- or
	// world-accessible. Defaults to true; set false only for test fixtures
	// or environments where POSIX permission bits are not meaningful.
	RequireOwnerOnlyPermissions bool

	// BusyTimeout bounds how long SQLite waits on a contended write lock
	// before returning SQLITE_BUSY. Zero means use the 5s default.
	BusyTimeout time.Duration
}

// DefaultOptions returns chamber's default store options.
func DefaultOptions() Options {
	return Options{RequireOwnerOnlyPermissions: true, BusyTimeout: 5 * time.Second}
}

// Store wraps a single-connection SQLite handle plus the advisory file lock
// that makes the underlying file single-writer across processes.
type Store struct {
	db   *sql.DB
	lock *fileLock
	path string
}

// Open creates the vault file (and applies migrations) if absent, or attaches
// to an existing one, after acquiring the advisory file lock. The returned
// Store owns exactly one open SQLite connection, matching the single-writer
// contract of a local file store.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("store: create vault directory: %w", err)
	}

	lock, err := acquireFileLock(path + ".lock")
	if err != nil {
		return nil, err
	}

	preexisting := true
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		preexisting = false
	}

	if opts.RequireOwnerOnlyPermissions && preexisting {
		if err := checkOwnerOnlyPermissions(path); err != nil {
			lock.release()
			return nil, err
		}
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	busyTimeout := opts.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	s := &Store{db: db, lock: lock, path: path}

	if err := s.applyPragmas(ctx, busyTimeout); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if !preexisting {
		if err := os.Chmod(path, filePerm); err != nil {
			s.Close()
			return nil, fmt.Errorf("store: set vault file permissions: %w", err)
		}
	}

	return s, nil
}

func (s *Store) applyPragmas(ctx context.Context, busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: apply %q: %w", p, err)
		}
	}
	return nil
}

// Close releases the database connection and the advisory file lock. It is
// safe to call more than once.
func (s *Store) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	if s.lock != nil {
		s.lock.release()
		s.lock = nil
	}
	return err
}

// Tx runs f inside a transaction, committing on a nil return and rolling
// back otherwise (including on panic, which it re-panics after rollback).
func (s *Store) Tx(ctx context.Context, f func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

func checkOwnerOnlyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: stat vault file: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf("%w: %s has mode %04o, want %04o", ErrPermissions, path, info.Mode().Perm(), filePerm)
	}
	return nil
}

// now is overridable in tests; production code always uses wall-clock time.
var now = func() time.Time { return time.Now().UTC() }
