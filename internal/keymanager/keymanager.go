// Package keymanager implements chamber's envelope-encryption key
// management: deriving a master key from a passphrase, wrapping and
// unwrapping the vault's single data-encryption key (DEK), and rotating the
// passphrase without touching any encrypted item.
package keymanager

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mikeleppane/chamber/internal/aead"
	"github.com/mikeleppane/chamber/internal/frame"
	"github.com/mikeleppane/chamber/internal/kdf"
	"github.com/mikeleppane/chamber/internal/secretmem"
	"github.com/mikeleppane/chamber/internal/store"
)

// wrapAAD domain-separates the DEK wrap from item-level encryption. No
// other ciphertext in the vault is sealed under this associated data.
const wrapAAD = "chamber:v1:dek-wrap"

// dekSize is the length, in bytes, of the vault's single data-encryption key.
const dekSize = 32

// ErrAlreadyInitialized is returned by Init when the vault already has a
// meta row.
var ErrAlreadyInitialized = errors.New("keymanager: vault already initialized")

// ErrNotInitialized is returned by Unlock when the vault has no meta row.
var ErrNotInitialized = errors.New("keymanager: vault not initialized")

// ErrWrongPassphrase is returned by Unlock and RotatePassphrase whenever the
// wrapped DEK fails to authenticate. It intentionally does not distinguish a
// wrong passphrase from a corrupted meta row: both fail the same AEAD tag
// check, and telling them apart would leak a timing/diagnostic oracle.
var ErrWrongPassphrase = errors.New("keymanager: wrong passphrase or corrupt meta")

// ErrCorruptMeta is returned when the stored meta payload cannot even be
// parsed as a frame (distinct from a tag failure, which is ErrWrongPassphrase).
var ErrCorruptMeta = errors.New("keymanager: corrupt meta frame")

// ErrConfig is returned when supplied KDF parameters fall below the
// required minimums.
var ErrConfig = errors.New("keymanager: invalid configuration")

// Session holds the unwrapped DEK for the lifetime of an unlocked vault
// handle. Callers must call Release exactly once, on Lock or Close.
type Session struct {
	dek *secretmem.Buffer
}

// DEK returns the session's data-encryption key. The returned bytes must
// never be copied outside a caller-owned zeroizing buffer.
func (s *Session) DEK() []byte {
	return s.dek.Bytes()
}

// Release zeroizes the session's DEK. Safe to call more than once.
func (s *Session) Release() {
	if s == nil || s.dek == nil {
		return
	}
	s.dek.Release()
	s.dek = nil
}

// Init generates a fresh salt and DEK, wraps the DEK under a master key
// derived from passphrase with params, and persists the resulting frame as
// the vault's sole meta row. It fails with ErrAlreadyInitialized if a meta
// row already exists.
func Init(ctx context.Context, s *store.Store, passphrase []byte, params kdf.Params) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	has, err := s.HasMeta(ctx)
	if err != nil {
		return err
	}
	if has {
		return ErrAlreadyInitialized
	}

	salt, err := kdf.NewSalt()
	if err != nil {
		return err
	}

	dek := make([]byte, dekSize)
	if _, err := rand.Read(dek); err != nil {
		return fmt.Errorf("keymanager: generate dek: %w", err)
	}
	dekBuf := secretmem.FromBytes(dek)
	defer dekBuf.Release()

	payload, err := wrap(dekBuf.Bytes(), passphrase, salt, params, 0, 0)
	if err != nil {
		return err
	}

	return s.Tx(ctx, func(tx *sql.Tx) error {
		return store.UpsertMeta(ctx, tx, payload)
	})
}

// Unlock loads the vault's meta row, derives the master key from passphrase,
// and unwraps the DEK into a new Session. Callers must Release the session
// when done with it.
func Unlock(ctx context.Context, s *store.Store, passphrase []byte) (*Session, error) {
	payload, err := s.LoadMeta(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoMeta) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}

	f, err := frame.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMeta, err)
	}

	dek, err := unwrap(f, passphrase)
	if err != nil {
		return nil, err
	}

	return &Session{dek: dek}, nil
}

// RotatePassphrase re-wraps the vault's DEK under a new passphrase (and,
// optionally, new KDF cost parameters) without touching any item row. It
// requires a successful unlock with old first; if the transaction fails,
// the on-disk wrap is unchanged.
func RotatePassphrase(ctx context.Context, s *store.Store, old, newPassphrase []byte, newParams *kdf.Params) error {
	payload, err := s.LoadMeta(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoMeta) {
			return ErrNotInitialized
		}
		return err
	}

	f, err := frame.Decode(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMeta, err)
	}

	dekBuf, err := unwrap(f, old)
	if err != nil {
		return err
	}
	defer dekBuf.Release()

	params := kdf.Params{
		MemoryKiB:   f.KDFMemoryKiB,
		Iterations:  f.KDFIterations,
		Parallelism: uint8(f.KDFParallelism),
	}
	if newParams != nil {
		if err := newParams.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		params = *newParams
	}

	newPayload, err := wrap(dekBuf.Bytes(), newPassphrase, f.Salt[:], params, f.CreatedAtUnix, 0)
	if err != nil {
		return err
	}

	return s.Tx(ctx, func(tx *sql.Tx) error {
		return store.UpsertMeta(ctx, tx, newPayload)
	})
}

// wrap derives a master key from passphrase/salt/params, seals dek under it,
// and encodes the result as a meta frame. createdAt of 0 means "now"; it is
// preserved across rotation.
func wrap(dek, passphrase, salt []byte, params kdf.Params, createdAt, updatedAt int64) ([]byte, error) {
	masterKey, err := kdf.Derive(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	defer masterKey.Release()

	nonce, ciphertext, err := aead.SealFresh(masterKey.Bytes(), []byte(wrapAAD), dek)
	if err != nil {
		return nil, fmt.Errorf("keymanager: wrap dek: %w", err)
	}

	nowUnix := clock()
	if createdAt == 0 {
		createdAt = nowUnix
	}
	updatedAt = nowUnix

	f := frame.MetaFrame{
		KDFAlgo:        frame.Argon2id,
		KDFMemoryKiB:   params.MemoryKiB,
		KDFIterations:  params.Iterations,
		KDFParallelism: uint32(params.Parallelism),
		WrappedDEK:     ciphertext,
		AAD:            []byte(wrapAAD),
		CreatedAtUnix:  createdAt,
		UpdatedAtUnix:  updatedAt,
	}
	copy(f.Salt[:], salt)
	copy(f.WrapNonce[:], nonce)

	return frame.Encode(f), nil
}

// unwrap derives the master key implied by f's persisted parameters and
// opens the wrapped DEK. A tag mismatch surfaces as ErrWrongPassphrase.
func unwrap(f frame.MetaFrame, passphrase []byte) (*secretmem.Buffer, error) {
	params := kdf.Params{
		MemoryKiB:   f.KDFMemoryKiB,
		Iterations:  f.KDFIterations,
		Parallelism: uint8(f.KDFParallelism),
	}

	masterKey, err := kdf.Derive(passphrase, f.Salt[:], params)
	if err != nil {
		return nil, err
	}
	defer masterKey.Release()

	dek, err := aead.Open(masterKey.Bytes(), f.WrapNonce[:], f.AAD, f.WrappedDEK)
	if err != nil {
		if errors.Is(err, aead.ErrTag) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("keymanager: unwrap dek: %w", err)
	}

	return secretmem.FromBytes(dek), nil
}

// clock is overridable in tests; production code always uses wall-clock time.
var clock = func() int64 { return unixNow() }
