package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func TestStreamHasherMatchesOneShot(t *testing.T) {
	data := make([]byte, 64*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("failed to generate test data: %v", err)
	}

	want := HashData(data)

	// The digest must be independent of how the stream is split into chunks.
	chunkSizes := []int{1, 7, 256, 1024, 10000, len(data)}
	for _, size := range chunkSizes {
		hasher := NewStreamHasher()
		for offset := 0; offset < len(data); offset += size {
			end := offset + size
			if end > len(data) {
				end = len(data)
			}
			if _, err := hasher.Write(data[offset:end]); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
		}

		if got := hasher.Finalize(); got != want {
			t.Errorf("chunk size %d: digest = %s, want %s", size, got, want)
		}
	}
}

func TestStreamHasherFinalized(t *testing.T) {
	hasher := NewStreamHasher()
	if _, err := hasher.Write([]byte("data")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	hasher.Finalize()

	if _, err := hasher.Write([]byte("more")); !errors.Is(err, ErrFinalizedHasher) {
		t.Errorf("Write() after Finalize() error = %v, want ErrFinalizedHasher", err)
	}
}

func TestStreamHasherBytesWritten(t *testing.T) {
	hasher := NewStreamHasher()
	hasher.Write(bytes.Repeat([]byte{0x01}, 100))
	hasher.Write(bytes.Repeat([]byte{0x02}, 50))

	if n := hasher.BytesWritten(); n != 150 {
		t.Errorf("BytesWritten() = %d, want 150", n)
	}
}

func TestFingerprintsEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "identical", a: "ab12cd", b: "ab12cd", want: true},
		{name: "case insensitive", a: "AB12CD", b: "ab12cd", want: true},
		{name: "different", a: "ab12cd", b: "ab12ce", want: false},
		{name: "empty vs non-empty", a: "", b: "ab", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FingerprintsEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("FingerprintsEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
