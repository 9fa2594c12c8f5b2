package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2 iterations for passphrase wrapping
	pbkdf2Iterations = 100000

	// Salt for passphrase key derivation
	derivationSalt = "LanLink-Vault-v1"
)

// Keystore owns the process-wide at-rest encryption key: generated once,
// persisted outside the process, and cached in memory for the process
// lifetime. The read-or-create path is guarded by one lock so concurrent
// first access never generates more than one key.
type Keystore struct {
	mu         sync.Mutex
	path       string
	passphrase string
	key        []byte
}

// NewKeystore creates a keystore backed by the file at path. A non-empty
// passphrase wraps the stored key with a PBKDF2-derived key; an empty
// passphrase stores it protected only by file permissions.
func NewKeystore(path, passphrase string) *Keystore {
	return &Keystore{path: path, passphrase: passphrase}
}

// GetOrCreate returns the symmetric key, loading it from disk or generating
// and persisting a fresh one on first use. Check-cache, load-or-create and
// cache happen as one atomic unit under the lock.
func (ks *Keystore) GetOrCreate() ([]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.key != nil {
		return ks.key, nil
	}

	key, err := ks.load()
	if err == nil {
		ks.key = key
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load key: %w", err)
	}

	key = make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if err := ks.store(key); err != nil {
		return nil, fmt.Errorf("failed to persist key: %w", err)
	}

	ks.key = key
	return key, nil
}

// load reads and, if wrapped, unwraps the key file
func (ks *Keystore) load() ([]byte, error) {
	data, err := os.ReadFile(ks.path)
	if err != nil {
		return nil, err
	}

	if ks.passphrase != "" {
		key, err := Decrypt(data, ks.wrapKey())
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap key: %w", err)
		}
		data = key
	}

	if len(data) != KeySize {
		return nil, fmt.Errorf("%w: key file holds %d bytes", ErrInvalidFormat, len(data))
	}

	return data, nil
}

// store writes the key file with owner-only permissions
func (ks *Keystore) store(key []byte) error {
	if err := os.MkdirAll(filepath.Dir(ks.path), 0700); err != nil {
		return err
	}

	data := key
	if ks.passphrase != "" {
		wrapped, err := Encrypt(key, ks.wrapKey())
		if err != nil {
			return err
		}
		data = wrapped
	}

	return os.WriteFile(ks.path, data, 0600)
}

// wrapKey derives the passphrase wrapping key
func (ks *Keystore) wrapKey() []byte {
	return pbkdf2.Key([]byte(ks.passphrase), []byte(derivationSalt), pbkdf2Iterations, KeySize, sha256.New)
}
