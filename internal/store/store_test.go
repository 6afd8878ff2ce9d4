package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path, DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesFileAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s := openTestStore(t, path)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat vault file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != filePerm {
		t.Fatalf("expected mode %04o, got %04o", filePerm, perm)
	}

	has, err := s.HasMeta(context.Background())
	if err != nil {
		t.Fatalf("has meta: %v", err)
	}
	if has {
		t.Fatal("fresh store should have no meta row")
	}
}

func TestOpenSecondTimeBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s1 := openTestStore(t, path)
	_ = s1

	_, err := Open(context.Background(), path, DefaultOptions())
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestOpenAfterCloseSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s1, err := Open(context.Background(), path, DefaultOptions())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(context.Background(), path, DefaultOptions())
	if err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	s2.Close()
}

func TestMetaUpsertAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s := openTestStore(t, path)
	ctx := context.Background()

	payload := []byte("frame-bytes-v1")
	if err := s.Tx(ctx, func(tx *sql.Tx) error {
		return UpsertMeta(ctx, tx, payload)
	}); err != nil {
		t.Fatalf("upsert meta: %v", err)
	}

	got, err := s.LoadMeta(ctx)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("meta mismatch: got %q want %q", got, payload)
	}

	updated := []byte("frame-bytes-v2")
	if err := s.Tx(ctx, func(tx *sql.Tx) error {
		return UpsertMeta(ctx, tx, updated)
	}); err != nil {
		t.Fatalf("re-upsert meta: %v", err)
	}
	got, err = s.LoadMeta(ctx)
	if err != nil {
		t.Fatalf("load meta after update: %v", err)
	}
	if string(got) != string(updated) {
		t.Fatalf("meta not replaced: got %q want %q", got, updated)
	}
}

func TestLoadMetaWithoutInitReturnsErrNoMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s := openTestStore(t, path)

	if _, err := s.LoadMeta(context.Background()); !errors.Is(err, ErrNoMeta) {
		t.Fatalf("expected ErrNoMeta, got %v", err)
	}
}

func TestItemCRUD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s := openTestStore(t, path)
	ctx := context.Background()

	var id int64
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = InsertItem(ctx, tx, "gh", 1, []byte("nonce-bytes!"), []byte("ciphertext-and-tag"))
		return err
	})
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	row, err := s.GetItemByName(ctx, "gh")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if row.Name != "gh" || row.Kind != 1 {
		t.Fatalf("unexpected row: %+v", row)
	}

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		return UpdateItem(ctx, tx, "gh", 2, []byte("nonce-bytes-2!"), []byte("new-ciphertext"))
	})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	row, err = s.GetItemByName(ctx, "gh")
	if err != nil {
		t.Fatalf("get item after update: %v", err)
	}
	if row.Kind != 2 || string(row.Ciphertext) != "new-ciphertext" {
		t.Fatalf("update not applied: %+v", row)
	}

	items, err := s.ListItems(ctx)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		return DeleteItem(ctx, tx, "gh")
	})
	if err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if _, err := s.GetItemByName(ctx, "gh"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound after delete, got %v", err)
	}
}

func TestInsertItemDuplicateName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s := openTestStore(t, path)
	ctx := context.Background()

	insert := func() error {
		return s.Tx(ctx, func(tx *sql.Tx) error {
			_, err := InsertItem(ctx, tx, "gh", 1, []byte("nonce-bytes!"), []byte("ct"))
			return err
		})
	}
	if err := insert(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := insert(); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestUpdateDeleteMissingItem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s := openTestStore(t, path)
	ctx := context.Background()

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		return UpdateItem(ctx, tx, "missing", 1, []byte("n"), []byte("c"))
	})
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		return DeleteItem(ctx, tx, "missing")
	})
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestTxRollsBackOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s := openTestStore(t, path)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := InsertItem(ctx, tx, "should-not-persist", 1, []byte("n"), []byte("c")); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	if _, err := s.GetItemByName(ctx, "should-not-persist"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected rollback to discard insert, got %v", err)
	}
}

func TestOpenRejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	s := openTestStore(t, path)
	s.Close()

	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	_, err := Open(context.Background(), path, DefaultOptions())
	if !errors.Is(err, ErrPermissions) {
		t.Fatalf("expected ErrPermissions, got %v", err)
	}
}
