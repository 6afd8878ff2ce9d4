package vault

import (
	"errors"
	"log"
	"time"
)

// diagLogger is chamber's minimal structured event log: operation name,
// outcome, and duration, through the standard library's log package. It
// never logs a passphrase, a key, or a plaintext value — only the error
// kind returned by the operation, never the underlying cause, which may
// embed user-controlled data.
type diagLogger struct {
	*log.Logger
}

func newDiagLogger(l *log.Logger) diagLogger {
	if l == nil {
		l = log.Default()
	}
	return diagLogger{Logger: l}
}

func (d diagLogger) logOp(op string, start time.Time, err error) {
	elapsed := time.Since(start)
	if err == nil {
		d.Printf("op=%s outcome=ok duration=%s", op, elapsed)
		return
	}
	d.Printf("op=%s outcome=error kind=%s duration=%s", op, errorKind(err), elapsed)
}

// errorKind maps err to the sentinel name logged in its place, so the log
// never carries a wrapped cause that might contain secret-adjacent detail.
func errorKind(err error) string {
	for _, e := range []struct {
		err  error
		name string
	}{
		{ErrAlreadyInitialized, "AlreadyInitialized"},
		{ErrNotInitialized, "NotInitialized"},
		{ErrVaultLocked, "VaultLocked"},
		{ErrWrongPassphrase, "WrongPassphrase"},
		{ErrTampered, "Tampered"},
		{ErrDuplicateName, "DuplicateName"},
		{ErrNotFound, "NotFound"},
		{ErrCorruptMeta, "CorruptMeta"},
		{ErrCorruptItem, "CorruptItem"},
		{ErrPermissions, "Permissions"},
		{ErrBusy, "Busy"},
		{ErrStorage, "Storage"},
		{ErrCrypto, "Crypto"},
		{ErrConfig, "Config"},
		{ErrValueTooLarge, "ValueTooLarge"},
	} {
		if errors.Is(err, e.err) {
			return e.name
		}
	}
	return "Unknown"
}
