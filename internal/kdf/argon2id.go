// Package kdf derives vault master keys from a user passphrase with
// Argon2id, the sole algorithm chamber supports in schema v1.
package kdf

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/mikeleppane/chamber/internal/secretmem"
)

// SaltSize is the length, in bytes, of a freshly generated KDF salt.
const SaltSize = 16

// KeySize is the length, in bytes, of a derived master key.
const KeySize = 32

// Minimum cost parameters accepted at vault init. Below these the KDF no
// longer offers meaningful resistance against offline guessing.
const (
	MinMemoryKiB    = 64 * 1024
	MinIterations   = 3
	MinParallelism  = 1
	DefaultMemoryKiB = 64 * 1024
	DefaultIterations = 3
	DefaultParallelism = 1
)

// ErrInvalidParams is returned when requested parameters fall below the
// documented minimums.
var ErrInvalidParams = errors.New("kdf: parameters below required minimums")

// Params holds the Argon2id cost parameters persisted alongside the salt in
// VaultMeta. They are not secret and are safe to log or serialize.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams returns chamber's default, persisted-at-init cost settings.
func DefaultParams() Params {
	return Params{
		MemoryKiB:   DefaultMemoryKiB,
		Iterations:  DefaultIterations,
		Parallelism: DefaultParallelism,
	}
}

// Validate rejects parameters below the documented minimums.
func (p Params) Validate() error {
	if p.MemoryKiB < MinMemoryKiB {
		return fmt.Errorf("%w: memory_kib=%d below minimum %d", ErrInvalidParams, p.MemoryKiB, MinMemoryKiB)
	}
	if p.Iterations < MinIterations {
		return fmt.Errorf("%w: iterations=%d below minimum %d", ErrInvalidParams, p.Iterations, MinIterations)
	}
	if p.Parallelism < MinParallelism {
		return fmt.Errorf("%w: parallelism=%d below minimum %d", ErrInvalidParams, p.Parallelism, MinParallelism)
	}
	return nil
}

// NewSalt generates a fresh random salt of SaltSize bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("kdf: generate salt: %w", err)
	}
	return salt, nil
}

// Derive runs Argon2id over passphrase and salt with the given params,
// returning the 32-byte master key in a zeroizing buffer. passphrase is not
// modified or retained.
func Derive(passphrase, salt []byte, p Params) (*secretmem.Buffer, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("kdf: salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	key := argon2.IDKey(passphrase, salt, p.Iterations, p.MemoryKiB, p.Parallelism, KeySize)
	buf := secretmem.FromBytes(key)
	return buf, nil
}
