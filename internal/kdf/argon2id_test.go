package kdf

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveDeterministic(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	params := DefaultParams()

	k1, err := Derive([]byte("correct horse battery staple"), salt, params)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	defer k1.Release()

	k2, err := Derive([]byte("correct horse battery staple"), salt, params)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	defer k2.Release()

	if !bytes.Equal(k1.Bytes(), k2.Bytes()) {
		t.Fatal("same passphrase/salt/params should derive identical keys")
	}
	if k1.Len() != KeySize {
		t.Fatalf("unexpected key length %d", k1.Len())
	}
}

func TestDeriveDifferentSaltsDiffer(t *testing.T) {
	params := DefaultParams()
	salt1, _ := NewSalt()
	salt2, _ := NewSalt()

	k1, err := Derive([]byte("pw"), salt1, params)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	defer k1.Release()
	k2, err := Derive([]byte("pw"), salt2, params)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	defer k2.Release()

	if bytes.Equal(k1.Bytes(), k2.Bytes()) {
		t.Fatal("different salts must not derive identical keys")
	}
}

func TestValidateRejectsLowMemory(t *testing.T) {
	p := Params{MemoryKiB: 1024, Iterations: 3, Parallelism: 1}
	if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestValidateRejectsLowIterations(t *testing.T) {
	p := Params{MemoryKiB: MinMemoryKiB, Iterations: 1, Parallelism: 1}
	if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestDeriveRejectsBadSaltLength(t *testing.T) {
	if _, err := Derive([]byte("pw"), []byte("short"), DefaultParams()); err == nil {
		t.Fatal("expected error for undersized salt")
	}
}
