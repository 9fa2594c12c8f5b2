// Package vault provides authenticated encryption for locally persisted data.
//
// Encrypted bytes live in a self-describing container so legacy plaintext
// files can be detected and migrated in place. Other packages never see raw
// container bytes, only decrypted payloads.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Container layout: magic + format version + nonce + ciphertext + GCM tag
const (
	// KeySize is the AES-256 key length
	KeySize = 32

	// FormatVersion is the current container format version
	FormatVersion = 0x01

	// NonceSize is the AES-GCM nonce length (96 bits is standard)
	NonceSize = 12

	// TagSize is the GCM authentication tag length
	TagSize = 16

	// Overhead is the fixed container overhead: 4-byte magic, 1-byte
	// version, 12-byte nonce, 16-byte tag
	Overhead = len(magic) + 1 + NonceSize + TagSize
)

// magic identifies a LanLink vault container
var magic = [4]byte{'L', 'N', 'K', 'V'}

var (
	ErrAuthenticationFailure = errors.New("authentication failure: data tampered or wrong key")
	ErrInvalidFormat         = errors.New("invalid container format")
	ErrInvalidKey            = errors.New("invalid key size")
)

// Encrypt seals plaintext into a container with AES-256-GCM. A fresh random
// nonce is generated on every call; callers can never supply one, which
// structurally rules out nonce reuse under the same key.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	container := make([]byte, 0, Overhead+len(plaintext))
	container = append(container, magic[:]...)
	container = append(container, FormatVersion)
	container = append(container, nonce...)
	container = gcm.Seal(container, nonce, plaintext, nil)

	return container, nil
}

// Decrypt opens a container. Fails closed with ErrInvalidFormat when the byte
// layout is short or the header does not match, and ErrAuthenticationFailure
// when the tag does not verify.
func Decrypt(container, key []byte) ([]byte, error) {
	if !IsEncrypted(container) {
		return nil, fmt.Errorf("%w: missing or short header", ErrInvalidFormat)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	body := container[len(magic)+1:]
	nonce, sealed := body[:NonceSize], body[NonceSize:]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}

	return plaintext, nil
}

// IsEncrypted is a cheap header sniff: true only for byte sequences at least
// one full container long whose magic and format version match exactly.
func IsEncrypted(data []byte) bool {
	if len(data) < Overhead {
		return false
	}
	return bytes.Equal(data[:len(magic)], magic[:]) && data[len(magic)] == FormatVersion
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return cipher.NewGCM(block)
}
