package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

var ErrFinalizedHasher = errors.New("hasher already finalized")

// HashData returns the lowercase-hex SHA-256 digest of data in one call
func HashData(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintsEqual compares two hex fingerprints case-insensitively
func FingerprintsEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// StreamHasher computes a SHA-256 digest incrementally so memory use is
// bounded by chunk size, not stream size. Once finalized it accepts no
// further input.
type StreamHasher struct {
	h         hash.Hash
	written   int64
	finalized bool
}

// NewStreamHasher creates a fresh incremental hasher
func NewStreamHasher() *StreamHasher {
	return &StreamHasher{h: sha256.New()}
}

// Write feeds the next chunk of stream bytes into the digest
func (s *StreamHasher) Write(p []byte) (int, error) {
	if s.finalized {
		return 0, ErrFinalizedHasher
	}

	n, err := s.h.Write(p)
	s.written += int64(n)
	return n, err
}

// BytesWritten returns the total number of bytes hashed so far
func (s *StreamHasher) BytesWritten() int64 {
	return s.written
}

// Finalize closes the hasher and returns the lowercase-hex digest
func (s *StreamHasher) Finalize() string {
	s.finalized = true
	return hex.EncodeToString(s.h.Sum(nil))
}
