// Package aead implements chamber's single authenticated-encryption
// primitive: ChaCha20-Poly1305 (IETF variant, 96-bit nonces, 128-bit tags).
package aead

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize and NonceSize mirror the IETF ChaCha20-Poly1305 construction used
// for both DEK wrapping and item encryption.
const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSize
)

// ErrTag indicates the authentication tag did not verify: either the
// passphrase/DEK is wrong, or the ciphertext/AAD has been tampered with.
var ErrTag = errors.New("aead: authentication failed")

// ErrLength indicates malformed input: a short ciphertext or a key/nonce of
// the wrong size.
var ErrLength = errors.New("aead: malformed input length")

// NewNonce returns a fresh, CSPRNG-backed 96-bit nonce. Callers must never
// reuse a nonce under the same key.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("aead: generate nonce: %w", err)
	}
	return nonce, nil
}

// Seal authenticates and encrypts plaintext under key, using the caller-
// supplied nonce and aad. The returned ciphertext includes the 16-byte tag.
func Seal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrLength, NonceSize, len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// SealFresh generates a fresh nonce, seals plaintext under key and aad, and
// returns nonce ‖ ciphertext‖tag packed as nonce, ciphertext for the caller
// to persist side by side (chamber's on-disk layout keeps nonce and
// ciphertext in separate columns, so they are returned separately here).
func SealFresh(key, aad, plaintext []byte) (nonce, ciphertext []byte, err error) {
	nonce, err = NewNonce()
	if err != nil {
		return nil, nil, err
	}
	ciphertext, err = Seal(key, nonce, aad, plaintext)
	if err != nil {
		return nil, nil, err
	}
	return nonce, ciphertext, nil
}

// Open verifies and decrypts ciphertext under key, nonce, and aad. A tag
// mismatch returns ErrTag; it is never worth retrying.
func Open(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrLength, NonceSize, len(nonce))
	}
	if len(ciphertext) < aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", ErrLength)
	}
	pt, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrTag
	}
	return pt, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrLength, KeySize, len(key))
	}
	a, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("aead: %w", err)
	}
	return a, nil
}
