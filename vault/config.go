package vault

import (
	"time"

	"github.com/mikeleppane/chamber/internal/kdf"
)

// Options configures Open. Init does not read the KDF fields from the
// handle's Options; callers pass them to Init as kdf.Params via ToKDFParams.
// Zero-valued numeric fields are replaced with chamber's defaults by
// setDefaults, mirroring the teacher's Config.setDefaults pattern. The
// RequireOwnerOnlyPermissions bool is not touched by setDefaults: a
// zero-value Options leaves it false, and its default of true comes from
// DefaultOptions.
type Options struct {
	// KDFMemoryKiB is the Argon2id memory cost, in KiB, used at Init.
	// Default 65536 (64 MiB); rejected below kdf.MinMemoryKiB.
	KDFMemoryKiB uint32
	// KDFIterations is the Argon2id time cost used at Init. Default 3;
	// rejected below kdf.MinIterations.
	KDFIterations uint32
	// KDFParallelism is the Argon2id lane count used at Init. Default 1;
	// rejected below kdf.MinParallelism.
	KDFParallelism uint8

	// RequireOwnerOnlyPermissions refuses to open a vault file that is
	// group- or world-accessible. Default true.
	RequireOwnerOnlyPermissions bool

	// BusyTimeout bounds how long SQLite waits on a contended write lock
	// before returning SQLITE_BUSY. Default 5s.
	BusyTimeout time.Duration
}

// DefaultOptions returns chamber's documented defaults.
func DefaultOptions() Options {
	return Options{
		KDFMemoryKiB:                kdf.DefaultMemoryKiB,
		KDFIterations:               kdf.DefaultIterations,
		KDFParallelism:              kdf.DefaultParallelism,
		RequireOwnerOnlyPermissions: true,
		BusyTimeout:                 5 * time.Second,
	}
}

func (o *Options) setDefaults() {
	if o.KDFMemoryKiB == 0 {
		o.KDFMemoryKiB = kdf.DefaultMemoryKiB
	}
	if o.KDFIterations == 0 {
		o.KDFIterations = kdf.DefaultIterations
	}
	if o.KDFParallelism == 0 {
		o.KDFParallelism = kdf.DefaultParallelism
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
}

// ToKDFParams projects the KDF-relevant fields of o into a kdf.Params,
// applying defaults first if they have not already been set.
func (o Options) ToKDFParams() kdf.Params {
	o.setDefaults()
	return kdf.Params{
		MemoryKiB:   o.KDFMemoryKiB,
		Iterations:  o.KDFIterations,
		Parallelism: o.KDFParallelism,
	}
}
