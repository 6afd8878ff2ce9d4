package secretmem

import (
	"bytes"
	"testing"
)

func TestBufferReleaseZeroes(t *testing.T) {
	buf := CopyBytes([]byte("top-secret"))
	if buf.Len() != len("top-secret") {
		t.Fatalf("unexpected length %d", buf.Len())
	}
	buf.Release()
	for _, c := range buf.Bytes() {
		if c != 0 {
			t.Fatal("buffer not zeroed after release")
		}
	}
}

func TestBufferReleaseIdempotent(t *testing.T) {
	buf := New(8)
	buf.Release()
	buf.Release() // must not panic
}

func TestBufferExportIndependentOfSource(t *testing.T) {
	src := []byte("hello")
	buf := CopyBytes(src)
	exported := buf.Export()
	if !bytes.Equal(exported, src) {
		t.Fatal("export mismatch")
	}
	buf.Release()
	if !bytes.Equal(exported, src) {
		t.Fatal("exported copy should survive buffer release")
	}
}

func TestNilBufferIsSafe(t *testing.T) {
	var buf *Buffer
	if buf.Len() != 0 {
		t.Fatal("nil buffer should report length 0")
	}
	if buf.Bytes() != nil {
		t.Fatal("nil buffer should return nil bytes")
	}
	buf.Release() // must not panic
}
