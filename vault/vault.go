// Package vault is chamber's public façade: a single-file, password-
// protected, authenticated secrets store built from the internal KDF, AEAD,
// secret-memory, store, and key-manager packages.
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mikeleppane/chamber/internal/aead"
	"github.com/mikeleppane/chamber/internal/kdf"
	"github.com/mikeleppane/chamber/internal/keymanager"
	"github.com/mikeleppane/chamber/internal/secretmem"
	"github.com/mikeleppane/chamber/internal/store"
)

// itemAADPrefix domain-separates item encryption from the DEK wrap. The
// full AAD is itemAADPrefix ‖ 0x1f ‖ name ‖ 0x1f ‖ kind_tag.
const itemAADPrefix = "chamber:v1:item"

const aadSep = 0x1f

// state is the vault's position in the Uninitialized/Locked/Unlocked
// machine described in the component design.
type state int

const (
	stateUninitialized state = iota
	stateLocked
	stateUnlocked
)

// Vault is the exclusively-owned handle over one vault file. Concurrent
// callers share a handle behind mu, matching the teacher's
// sync.RWMutex-guarded Store: at most one CRUD operation is in progress at
// a time for a given handle.
type Vault struct {
	mu    sync.Mutex
	st    state
	store *store.Store
	sess  *keymanager.Session
	opts  Options
	log   diagLogger

	coreDumpsDisabled bool
}

// Open opens or creates the vault file at path, applies schema migrations,
// and acquires the advisory file lock. The returned handle starts
// Uninitialized if the file has no meta row, or Locked otherwise.
func Open(ctx context.Context, path string, opts Options) (*Vault, error) {
	opts.setDefaults()

	s, err := store.Open(ctx, path, store.Options{
		RequireOwnerOnlyPermissions: opts.RequireOwnerOnlyPermissions,
		BusyTimeout:                 opts.BusyTimeout,
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}

	v := &Vault{
		store: s,
		opts:  opts,
		log:   newDiagLogger(log.Default()),
	}

	has, err := s.HasMeta(ctx)
	if err != nil {
		s.Close()
		return nil, translateStoreErr(err)
	}
	if has {
		v.st = stateLocked
	} else {
		v.st = stateUninitialized
	}

	return v, nil
}

// IsInitialized reports whether the vault file already has a meta row.
func (v *Vault) IsInitialized(ctx context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.st != stateUninitialized, nil
}

// Init generates the vault's DEK, wraps it under passphrase, and persists
// the result as the sole meta row, transitioning Uninitialized → Locked.
func (v *Vault) Init(ctx context.Context, passphrase []byte, params kdf.Params) (err error) {
	start := time.Now()
	defer func() { v.log.logOp("Init", start, err) }()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.st != stateUninitialized {
		return ErrAlreadyInitialized
	}

	if err := keymanager.Init(ctx, v.store, passphrase, params); err != nil {
		return translateKeymanagerErr(err)
	}

	v.st = stateLocked
	return nil
}

// Unlock derives the master key from passphrase, unwraps the DEK, and
// transitions Locked → Unlocked. On first successful unlock it also
// disables core dumps for the process, so a crash cannot leak the DEK
// through a core file.
func (v *Vault) Unlock(ctx context.Context, passphrase []byte) (err error) {
	start := time.Now()
	defer func() { v.log.logOp("Unlock", start, err) }()

	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.st {
	case stateUninitialized:
		return ErrNotInitialized
	case stateUnlocked:
		return nil
	}

	sess, err := keymanager.Unlock(ctx, v.store, passphrase)
	if err != nil {
		return translateKeymanagerErr(err)
	}

	v.sess = sess
	v.st = stateUnlocked

	if !v.coreDumpsDisabled {
		if derr := secretmem.DisableCoreDumps(); derr != nil {
			v.log.Printf("op=Unlock warn=disable-core-dumps-failed detail=%v", derr)
		}
		v.coreDumpsDisabled = true
	}

	return nil
}

// Lock zeroizes the in-memory DEK and transitions Unlocked → Locked. It is
// a no-op if the vault is already Locked or Uninitialized.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockLocked()
}

func (v *Vault) lockLocked() {
	if v.sess != nil {
		v.sess.Release()
		v.sess = nil
	}
	if v.st == stateUnlocked {
		v.st = stateLocked
	}
}

// Close zeroizes the DEK, closes the underlying store connection, and
// releases the advisory file lock. Safe to call once; the handle must not
// be used afterward.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockLocked()
	if v.store != nil {
		err := v.store.Close()
		v.store = nil
		return err
	}
	return nil
}

// Add encrypts item.Value under a fresh nonce and inserts a new row,
// returning its assigned id.
func (v *Vault) Add(ctx context.Context, item NewItem) (id int64, err error) {
	start := time.Now()
	defer func() { v.log.logOp("Add", start, err) }()

	item.Name = strings.TrimSpace(item.Name)
	if err := validateNewItem(item); err != nil {
		return 0, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.st != stateUnlocked {
		return 0, ErrVaultLocked
	}

	nonce, ciphertext, err := aead.SealFresh(v.sess.DEK(), itemAAD(item.Name, item.Kind), item.Value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	var newID int64
	err = v.store.Tx(ctx, func(tx *sql.Tx) error {
		var txErr error
		newID, txErr = store.InsertItem(ctx, tx, item.Name, int(item.Kind), nonce, ciphertext)
		return txErr
	})
	if err != nil {
		return 0, translateStoreErr(err)
	}
	return newID, nil
}

// Get decrypts and returns the item named name.
func (v *Vault) Get(ctx context.Context, name string) (out Item, err error) {
	start := time.Now()
	defer func() { v.log.logOp("Get", start, err) }()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.st != stateUnlocked {
		return Item{}, ErrVaultLocked
	}

	row, err := v.store.GetItemByName(ctx, name)
	if err != nil {
		return Item{}, translateStoreErr(err)
	}

	kind := ItemKind(row.Kind)
	plaintext, err := aead.Open(v.sess.DEK(), row.Nonce, itemAAD(row.Name, kind), row.Ciphertext)
	if err != nil {
		if errors.Is(err, aead.ErrTag) {
			return Item{}, ErrTampered
		}
		return Item{}, fmt.Errorf("%w: %v", ErrCorruptItem, err)
	}

	created, updated, err := parseRowTimes(row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrCorruptItem, err)
	}

	return Item{
		ID:        row.ID,
		Name:      row.Name,
		Kind:      kind,
		Value:     plaintext,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

// Update re-encrypts name under a fresh nonce with patch's new value (and,
// if set, new kind).
func (v *Vault) Update(ctx context.Context, name string, patch Patch) (err error) {
	start := time.Now()
	defer func() { v.log.logOp("Update", start, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: item name must not be empty", ErrConfig)
	}
	if len(patch.NewValue) > MaxValueBytes {
		return ErrValueTooLarge
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.st != stateUnlocked {
		return ErrVaultLocked
	}

	existing, err := v.store.GetItemByName(ctx, name)
	if err != nil {
		return translateStoreErr(err)
	}

	kind := ItemKind(existing.Kind)
	if patch.NewKind != nil {
		if !validKind(*patch.NewKind) {
			return fmt.Errorf("%w: unknown item kind %d", ErrConfig, *patch.NewKind)
		}
		kind = *patch.NewKind
	}

	nonce, ciphertext, err := aead.SealFresh(v.sess.DEK(), itemAAD(name, kind), patch.NewValue)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	err = v.store.Tx(ctx, func(tx *sql.Tx) error {
		return store.UpdateItem(ctx, tx, name, int(kind), nonce, ciphertext)
	})
	return translateStoreErr(err)
}

// Delete removes the item named name.
func (v *Vault) Delete(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { v.log.logOp("Delete", start, err) }()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.st != stateUnlocked {
		return ErrVaultLocked
	}

	err = v.store.Tx(ctx, func(tx *sql.Tx) error {
		return store.DeleteItem(ctx, tx, name)
	})
	return translateStoreErr(err)
}

// List returns metadata for every item matching filter. It never touches
// ciphertext and is available even while Locked.
func (v *Vault) List(ctx context.Context, filter Filter) (out []ItemMeta, err error) {
	start := time.Now()
	defer func() { v.log.logOp("List", start, err) }()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.st == stateUninitialized {
		return nil, ErrNotInitialized
	}

	rows, err := v.store.ListItems(ctx)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	for _, r := range rows {
		kind := ItemKind(r.Kind)
		if !filter.matches(r.Name, kind) {
			continue
		}
		created, updated, terr := parseRowTimes(r.CreatedAt, r.UpdatedAt)
		if terr != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptItem, terr)
		}
		out = append(out, ItemMeta{
			ID:        r.ID,
			Name:      r.Name,
			Kind:      kind,
			CreatedAt: created,
			UpdatedAt: updated,
		})
	}
	return out, nil
}

// RotatePassphrase re-wraps the vault's DEK under new, leaving every item's
// ciphertext untouched. It requires the vault to already be Unlocked with
// old as the current passphrase.
func (v *Vault) RotatePassphrase(ctx context.Context, old, newPassphrase []byte, newParams *kdf.Params) (err error) {
	start := time.Now()
	defer func() { v.log.logOp("RotatePassphrase", start, err) }()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.st != stateUnlocked {
		return ErrVaultLocked
	}

	if err := keymanager.RotatePassphrase(ctx, v.store, old, newPassphrase, newParams); err != nil {
		return translateKeymanagerErr(err)
	}
	return nil
}

func itemAAD(name string, kind ItemKind) []byte {
	aad := make([]byte, 0, len(itemAADPrefix)+1+len(name)+1+1)
	aad = append(aad, itemAADPrefix...)
	aad = append(aad, aadSep)
	aad = append(aad, name...)
	aad = append(aad, aadSep)
	aad = append(aad, kind.tag())
	return aad
}

func validateNewItem(item NewItem) error {
	if item.Name == "" {
		return fmt.Errorf("%w: item name must not be empty", ErrConfig)
	}
	if len(item.Name) > MaxNameBytes {
		return fmt.Errorf("%w: item name exceeds %d bytes", ErrConfig, MaxNameBytes)
	}
	for i := 0; i < len(item.Name); i++ {
		if item.Name[i] == 0 {
			return fmt.Errorf("%w: item name contains a NUL byte", ErrConfig)
		}
	}
	if !validKind(item.Kind) {
		return fmt.Errorf("%w: unknown item kind %d", ErrConfig, item.Kind)
	}
	if len(item.Value) > MaxValueBytes {
		return ErrValueTooLarge
	}
	return nil
}

func parseRowTimes(createdAt, updatedAt string) (created, updated time.Time, err error) {
	created, err = time.Parse(rowTimeLayout, createdAt)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	updated, err = time.Parse(rowTimeLayout, updatedAt)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return created, updated, nil
}

const rowTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func translateStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrBusy):
		return ErrBusy
	case errors.Is(err, store.ErrPermissions):
		return ErrPermissions
	case errors.Is(err, store.ErrDuplicateName):
		return ErrDuplicateName
	case errors.Is(err, store.ErrItemNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrNoMeta):
		return ErrNotInitialized
	default:
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
}

func translateKeymanagerErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keymanager.ErrAlreadyInitialized):
		return ErrAlreadyInitialized
	case errors.Is(err, keymanager.ErrNotInitialized):
		return ErrNotInitialized
	case errors.Is(err, keymanager.ErrWrongPassphrase):
		return ErrWrongPassphrase
	case errors.Is(err, keymanager.ErrCorruptMeta):
		return ErrCorruptMeta
	case errors.Is(err, keymanager.ErrConfig):
		return ErrConfig
	default:
		return translateStoreErr(err)
	}
}
