// Package trust implements the trust-on-first-use fingerprint pinning model.
//
// There is no certificate authority. The first fingerprint presented for a
// peer identity is accepted unconditionally and pinned; every later session
// with the same identity must present an exactly matching fingerprint or the
// handshake fails with a user-visible impersonation warning.
package trust

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lanlink/protocol/pkg/crypto"
)

var ErrFingerprintMismatch = errors.New("fingerprint mismatch")

// PinStore persists pinned fingerprints keyed by peer identity
type PinStore interface {
	// Pinned returns the pinned fingerprint for peerID, if any
	Pinned(peerID string) (string, bool, error)

	// Pin records the fingerprint for peerID
	Pin(peerID, fingerprint string) error
}

// Result describes the outcome of a trust evaluation
type Result struct {
	// FirstUse is true when the fingerprint was accepted and pinned now
	FirstUse bool

	// Fingerprint is the normalized (lowercase) accepted fingerprint
	Fingerprint string
}

// Evaluate decides whether a presented fingerprint is acceptable for peerID.
// Unpinned identities are accepted and pinned (trust-on-first-use). Pinned
// identities must match case-insensitively; a mismatch is never downgraded to
// re-pinning and must surface to the user as a possible impersonation.
func Evaluate(store PinStore, peerID, presented string) (*Result, error) {
	if peerID == "" || presented == "" {
		return nil, fmt.Errorf("trust evaluation requires peer identity and fingerprint")
	}

	normalized := strings.ToLower(presented)

	pinned, exists, err := store.Pinned(peerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read pin for %s: %w", peerID, err)
	}

	if !exists {
		if err := store.Pin(peerID, normalized); err != nil {
			return nil, fmt.Errorf("failed to pin fingerprint for %s: %w", peerID, err)
		}
		return &Result{FirstUse: true, Fingerprint: normalized}, nil
	}

	if !crypto.FingerprintsEqual(pinned, normalized) {
		return nil, fmt.Errorf(
			"%w: peer %s presented %s but %s is pinned - possible impersonation, verify the device before retrying",
			ErrFingerprintMismatch, peerID, shortFingerprint(normalized), shortFingerprint(pinned))
	}

	return &Result{FirstUse: false, Fingerprint: normalized}, nil
}

// shortFingerprint abbreviates a fingerprint for human-readable warnings
func shortFingerprint(fp string) string {
	if len(fp) <= 16 {
		return fp
	}
	return fp[:16] + "..."
}

// MemoryPinStore is an in-memory PinStore for tests and ephemeral sessions
type MemoryPinStore struct {
	mu   sync.RWMutex
	pins map[string]string
}

// NewMemoryPinStore creates an empty in-memory pin store
func NewMemoryPinStore() *MemoryPinStore {
	return &MemoryPinStore{pins: make(map[string]string)}
}

// Pinned returns the pinned fingerprint for peerID, if any
func (s *MemoryPinStore) Pinned(peerID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fp, ok := s.pins[peerID]
	return fp, ok, nil
}

// Pin records the fingerprint for peerID
func (s *MemoryPinStore) Pin(peerID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pins[peerID] = fingerprint
	return nil
}
