package vault

import "errors"

// Sentinel errors returned by the Vault façade. Compare with errors.Is; some
// wrap an underlying cause with %w and remain matchable through it.
var (
	ErrAlreadyInitialized = errors.New("vault: already initialized")
	ErrNotInitialized     = errors.New("vault: not initialized")
	ErrVaultLocked        = errors.New("vault: locked")
	ErrWrongPassphrase    = errors.New("vault: wrong passphrase")
	ErrTampered           = errors.New("vault: item failed authentication")
	ErrDuplicateName      = errors.New("vault: item name already exists")
	ErrNotFound           = errors.New("vault: item not found")
	ErrCorruptMeta        = errors.New("vault: meta frame is corrupt")
	ErrCorruptItem        = errors.New("vault: item row is corrupt")
	ErrPermissions        = errors.New("vault: insecure file permissions")
	ErrBusy               = errors.New("vault: vault file is locked by another process")
	ErrStorage            = errors.New("vault: storage error")
	ErrCrypto             = errors.New("vault: cryptographic primitive error")
	ErrConfig             = errors.New("vault: invalid configuration")
	ErrValueTooLarge      = errors.New("vault: value exceeds maximum size")
)
