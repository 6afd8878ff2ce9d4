package keymanager

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mikeleppane/chamber/internal/kdf"
	"github.com/mikeleppane/chamber/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.db")
	s, err := store.Open(context.Background(), path, store.DefaultOptions())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testParams keeps tests fast: a minimal-but-valid Argon2id cost.
func testParams() kdf.Params {
	return kdf.Params{MemoryKiB: kdf.MinMemoryKiB, Iterations: kdf.MinIterations, Parallelism: 1}
}

func TestInitThenUnlock(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	pp := []byte("correct horse battery staple")
	if err := Init(ctx, s, pp, testParams()); err != nil {
		t.Fatalf("init: %v", err)
	}

	sess, err := Unlock(ctx, s, pp)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	defer sess.Release()

	if len(sess.DEK()) != dekSize {
		t.Fatalf("unexpected dek length %d", len(sess.DEK()))
	}
}

func TestInitTwiceFails(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := Init(ctx, s, []byte("pw"), testParams()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := Init(ctx, s, []byte("pw2"), testParams()); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestUnlockWithoutInit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := Unlock(ctx, s, []byte("pw")); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestUnlockWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := Init(ctx, s, []byte("correct horse battery staple"), testParams()); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, err := Unlock(ctx, s, []byte("wrong")); !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
}

func TestInitRejectsWeakParams(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	weak := kdf.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1}
	if err := Init(ctx, s, []byte("pw"), weak); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestRotatePassphraseKeepsDEKChangesWrap(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	old := []byte("correct horse battery staple")
	if err := Init(ctx, s, old, testParams()); err != nil {
		t.Fatalf("init: %v", err)
	}

	sess1, err := Unlock(ctx, s, old)
	if err != nil {
		t.Fatalf("unlock before rotation: %v", err)
	}
	dekBefore := append([]byte(nil), sess1.DEK()...)
	sess1.Release()

	payloadBefore, err := s.LoadMeta(ctx)
	if err != nil {
		t.Fatalf("load meta before rotation: %v", err)
	}

	newPP := []byte("Tr0ub4dor&3")
	if err := RotatePassphrase(ctx, s, old, newPP, nil); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	payloadAfter, err := s.LoadMeta(ctx)
	if err != nil {
		t.Fatalf("load meta after rotation: %v", err)
	}
	if bytes.Equal(payloadBefore, payloadAfter) {
		t.Fatal("expected meta payload to change after rotation")
	}

	if _, err := Unlock(ctx, s, old); !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("old passphrase should no longer unlock, got %v", err)
	}

	sess2, err := Unlock(ctx, s, newPP)
	if err != nil {
		t.Fatalf("unlock with new passphrase: %v", err)
	}
	defer sess2.Release()

	if !bytes.Equal(dekBefore, sess2.DEK()) {
		t.Fatal("rotation must preserve the DEK")
	}
}

func TestRotatePassphraseWrongOldFails(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := Init(ctx, s, []byte("correct"), testParams()); err != nil {
		t.Fatalf("init: %v", err)
	}

	err := RotatePassphrase(ctx, s, []byte("wrong"), []byte("new"), nil)
	if !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
}

func TestUnlockDetectsCorruptMeta(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := Init(ctx, s, []byte("pw"), testParams()); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := s.Tx(ctx, func(tx *sql.Tx) error {
		return store.UpsertMeta(ctx, tx, []byte{0xFF, 0xFF})
	}); err != nil {
		t.Fatalf("corrupt meta: %v", err)
	}

	if _, err := Unlock(ctx, s, []byte("pw")); !errors.Is(err, ErrCorruptMeta) {
		t.Fatalf("expected ErrCorruptMeta, got %v", err)
	}
}
