package frame

import (
	"bytes"
	"errors"
	"testing"
)

func sampleFrame() MetaFrame {
	var f MetaFrame
	f.KDFAlgo = Argon2id
	f.KDFMemoryKiB = 64 * 1024
	f.KDFIterations = 3
	f.KDFParallelism = 1
	copy(f.Salt[:], bytes.Repeat([]byte{0xAB}, saltSize))
	copy(f.WrapNonce[:], bytes.Repeat([]byte{0xCD}, wrapNonceSize))
	f.WrappedDEK = []byte("wrapped-dek-ciphertext-and-tag!")
	f.AAD = []byte("chamber:v1:dek-wrap")
	f.CreatedAtUnix = 1_700_000_000
	f.UpdatedAtUnix = 1_700_000_100
	return f
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := sampleFrame()
	payload := Encode(f)

	got, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.KDFAlgo != f.KDFAlgo ||
		got.KDFMemoryKiB != f.KDFMemoryKiB ||
		got.KDFIterations != f.KDFIterations ||
		got.KDFParallelism != f.KDFParallelism ||
		got.Salt != f.Salt ||
		got.WrapNonce != f.WrapNonce ||
		!bytes.Equal(got.WrappedDEK, f.WrappedDEK) ||
		!bytes.Equal(got.AAD, f.AAD) ||
		got.CreatedAtUnix != f.CreatedAtUnix ||
		got.UpdatedAtUnix != f.UpdatedAtUnix {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestEncodeDecodeEmptyAAD(t *testing.T) {
	f := sampleFrame()
	f.AAD = nil
	payload := Encode(f)

	got, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.AAD) != 0 {
		t.Fatalf("expected empty AAD, got %v", got.AAD)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	payload := Encode(sampleFrame())
	payload[0] = 0xFF
	if _, err := Decode(payload); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecodeRejectsUnknownAlgo(t *testing.T) {
	payload := Encode(sampleFrame())
	payload[1] = 0xFF
	if _, err := Decode(payload); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	payload := Encode(sampleFrame())
	for cut := 1; cut < len(payload); cut *= 2 {
		if _, err := Decode(payload[:cut]); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("cut=%d: expected ErrCorrupt, got %v", cut, err)
		}
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	payload := append(Encode(sampleFrame()), 0x00)
	if _, err := Decode(payload); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecodeRejectsBadWrappedLen(t *testing.T) {
	f := sampleFrame()
	payload := Encode(f)
	// wrapped_len field starts right after version(1)+algo(1)+3*u32(12)+salt(16)+nonce(12) = 42
	offset := 1 + 1 + 12 + saltSize + wrapNonceSize
	payload[offset] = 0xFF
	payload[offset+1] = 0xFF
	payload[offset+2] = 0xFF
	payload[offset+3] = 0xFF
	if _, err := Decode(payload); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func FuzzEncodeDecodeRoundTrip(f *testing.F) {
	base := sampleFrame()
	f.Add(base.WrappedDEK, base.AAD)
	f.Fuzz(func(t *testing.T, wrapped, aad []byte) {
		fr := sampleFrame()
		fr.WrappedDEK = wrapped
		fr.AAD = aad
		payload := Encode(fr)
		got, err := Decode(payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(got.WrappedDEK, wrapped) || !bytes.Equal(got.AAD, aad) {
			t.Fatal("round trip mismatch")
		}
	})
}
