// Package secretmem provides scoped byte buffers that are guaranteed to be
// zeroized when they are released. Chamber holds derived master keys and the
// DEK in a Buffer; passphrases and plaintext item values pass through as
// bare []byte slices owned by the caller and are not wiped by this package.
package secretmem

import "runtime"

// Buffer owns a byte slice that must be wiped before it goes out of scope.
// The zero value is not usable; construct one with New or FromBytes.
type Buffer struct {
	b        []byte
	released bool
}

// New allocates a zeroed Buffer of length n.
func New(n int) *Buffer {
	return &Buffer{b: make([]byte, n)}
}

// FromBytes takes ownership of b. The caller must not retain its own
// reference to b after this call; use CopyBytes if you need to keep both.
func FromBytes(b []byte) *Buffer {
	return &Buffer{b: b}
}

// CopyBytes copies src into a freshly allocated Buffer, leaving src untouched.
func CopyBytes(src []byte) *Buffer {
	buf := New(len(src))
	copy(buf.b, src)
	return buf
}

// Bytes returns the underlying slice. The returned slice aliases the
// Buffer's storage and becomes invalid after Release.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.b
}

// Len reports the buffer length.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.b)
}

// Export returns an independent copy of the buffer's contents. By contract,
// the caller becomes responsible for zeroizing the returned slice once it is
// no longer needed (e.g. via Wipe).
func (b *Buffer) Export() []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b.b))
	copy(out, b.b)
	return out
}

// Release overwrites the buffer with zeros. Safe to call more than once and
// on a nil receiver.
func (b *Buffer) Release() {
	if b == nil || b.released {
		return
	}
	Wipe(b.b)
	b.released = true
}

// Wipe overwrites p with zeros in a way the compiler cannot optimize away.
func Wipe(p []byte) {
	for i := range p {
		p[i] = 0
	}
	runtime.KeepAlive(p)
}
