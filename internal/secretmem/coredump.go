//go:build linux || darwin

package secretmem

import "golang.org/x/sys/unix"

// DisableCoreDumps sets RLIMIT_CORE to zero for the current process so that
// a crash cannot write live key material out through a core file. The vault
// engine calls this once, on first unlock.
func DisableCoreDumps() error {
	var rlim unix.Rlimit
	rlim.Cur = 0
	rlim.Max = 0
	return unix.Setrlimit(unix.RLIMIT_CORE, &rlim)
}
