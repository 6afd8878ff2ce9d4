// Package frame implements the versioned binary layout stored in the
// vault's meta.payload column: the wrapped DEK plus the KDF parameters
// needed to re-derive the master key that unwraps it.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Version is the only frame version chamber currently writes or reads.
const Version uint8 = 1

// KDFAlgo identifies the key-derivation function used for a frame. Argon2id
// is the sole algorithm supported in schema v1.
type KDFAlgo uint8

// Argon2id is the only supported KDFAlgo value.
const Argon2id KDFAlgo = 1

const (
	saltSize      = 16
	wrapNonceSize = 12
)

// ErrCorrupt is returned when a payload is too short, has a bad length
// prefix, or declares an unknown version/algorithm.
var ErrCorrupt = errors.New("frame: corrupt meta payload")

// MetaFrame is the decoded form of the meta.payload BLOB.
//
// Wire layout (all multi-byte integers little-endian):
//
//	u8  version
//	u8  kdf_algo
//	u32 kdf_memory_kib
//	u32 kdf_iters
//	u32 kdf_parallelism
//	[16]byte salt
//	[12]byte wrap_nonce
//	u32 wrapped_len ‖ wrapped_dek
//	u32 aad_len     ‖ aad
//	i64 created_at
//	i64 updated_at
type MetaFrame struct {
	KDFAlgo        KDFAlgo
	KDFMemoryKiB   uint32
	KDFIterations  uint32
	KDFParallelism uint32
	Salt           [saltSize]byte
	WrapNonce      [wrapNonceSize]byte
	WrappedDEK     []byte
	AAD            []byte
	CreatedAtUnix  int64
	UpdatedAtUnix  int64
}

// Encode serializes f into chamber's binary meta frame format.
func Encode(f MetaFrame) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(Version)
	buf.WriteByte(byte(f.KDFAlgo))

	var u32 [4]byte
	writeU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(u32[:], v)
		buf.Write(u32[:])
	}
	writeU32(f.KDFMemoryKiB)
	writeU32(f.KDFIterations)
	writeU32(f.KDFParallelism)

	buf.Write(f.Salt[:])
	buf.Write(f.WrapNonce[:])

	writeU32(uint32(len(f.WrappedDEK)))
	buf.Write(f.WrappedDEK)

	writeU32(uint32(len(f.AAD)))
	buf.Write(f.AAD)

	var i64 [8]byte
	binary.LittleEndian.PutUint64(i64[:], uint64(f.CreatedAtUnix))
	buf.Write(i64[:])
	binary.LittleEndian.PutUint64(i64[:], uint64(f.UpdatedAtUnix))
	buf.Write(i64[:])

	return buf.Bytes()
}

// Decode parses a meta frame previously produced by Encode. Any length
// mismatch or unknown version/algorithm yields ErrCorrupt.
func Decode(payload []byte) (MetaFrame, error) {
	var f MetaFrame
	r := bytes.NewReader(payload)

	version, err := r.ReadByte()
	if err != nil {
		return f, fmt.Errorf("%w: missing version", ErrCorrupt)
	}
	if version != Version {
		return f, fmt.Errorf("%w: unknown version %d", ErrCorrupt, version)
	}

	algoByte, err := r.ReadByte()
	if err != nil {
		return f, fmt.Errorf("%w: missing kdf_algo", ErrCorrupt)
	}
	algo := KDFAlgo(algoByte)
	if algo != Argon2id {
		return f, fmt.Errorf("%w: unknown kdf_algo %d", ErrCorrupt, algo)
	}
	f.KDFAlgo = algo

	readU32 := func(name string) (uint32, error) {
		var b [4]byte
		if _, err := readFull(r, b[:]); err != nil {
			return 0, fmt.Errorf("%w: missing %s", ErrCorrupt, name)
		}
		return binary.LittleEndian.Uint32(b[:]), nil
	}

	if f.KDFMemoryKiB, err = readU32("kdf_memory_kib"); err != nil {
		return f, err
	}
	if f.KDFIterations, err = readU32("kdf_iters"); err != nil {
		return f, err
	}
	if f.KDFParallelism, err = readU32("kdf_parallelism"); err != nil {
		return f, err
	}

	if _, err := readFull(r, f.Salt[:]); err != nil {
		return f, fmt.Errorf("%w: missing salt", ErrCorrupt)
	}
	if _, err := readFull(r, f.WrapNonce[:]); err != nil {
		return f, fmt.Errorf("%w: missing wrap_nonce", ErrCorrupt)
	}

	wrappedLen, err := readU32("wrapped_len")
	if err != nil {
		return f, err
	}
	if int64(wrappedLen) > int64(r.Len()) {
		return f, fmt.Errorf("%w: wrapped_len %d exceeds remaining payload", ErrCorrupt, wrappedLen)
	}
	f.WrappedDEK = make([]byte, wrappedLen)
	if _, err := readFull(r, f.WrappedDEK); err != nil {
		return f, fmt.Errorf("%w: truncated wrapped_dek", ErrCorrupt)
	}

	aadLen, err := readU32("aad_len")
	if err != nil {
		return f, err
	}
	if int64(aadLen) > int64(r.Len()) {
		return f, fmt.Errorf("%w: aad_len %d exceeds remaining payload", ErrCorrupt, aadLen)
	}
	f.AAD = make([]byte, aadLen)
	if _, err := readFull(r, f.AAD); err != nil {
		return f, fmt.Errorf("%w: truncated aad", ErrCorrupt)
	}

	var i64 [8]byte
	if _, err := readFull(r, i64[:]); err != nil {
		return f, fmt.Errorf("%w: missing created_at", ErrCorrupt)
	}
	f.CreatedAtUnix = int64(binary.LittleEndian.Uint64(i64[:]))
	if _, err := readFull(r, i64[:]); err != nil {
		return f, fmt.Errorf("%w: missing updated_at", ErrCorrupt)
	}
	f.UpdatedAtUnix = int64(binary.LittleEndian.Uint64(i64[:]))

	if r.Len() != 0 {
		return f, fmt.Errorf("%w: trailing bytes", ErrCorrupt)
	}

	return f, nil
}

func readFull(r *bytes.Reader, p []byte) (int, error) {
	n := 0
	for n < len(p) {
		m, err := r.Read(p[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
