//go:build !linux && !darwin

package secretmem

// DisableCoreDumps is a no-op on platforms without RLIMIT_CORE.
func DisableCoreDumps() error { return nil }
