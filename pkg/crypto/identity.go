package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"
)

var ErrNoPeerCertificate = errors.New("peer presented no certificate")

// Identity is the ephemeral cryptographic identity of one process run: an
// elliptic-curve key pair wrapped in a self-signed certificate. It never
// touches long-term storage and is discarded at process end.
type Identity struct {
	cert        tls.Certificate
	fingerprint string
}

// GenerateIdentity creates a fresh P-256 key pair and self-signed certificate.
// The certificate exists only to carry the public key through the TLS
// handshake; trust comes from fingerprint pinning, not from a CA.
func GenerateIdentity(displayName string) (*Identity, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: displayName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	return &Identity{
		cert: tls.Certificate{
			Certificate: [][]byte{der},
			PrivateKey:  priv,
		},
		fingerprint: Fingerprint(der),
	}, nil
}

// Certificate returns the TLS certificate presented during handshakes
func (id *Identity) Certificate() tls.Certificate {
	return id.cert
}

// Fingerprint returns the lowercase-hex digest identifying this process,
// shown to the user for manual verification
func (id *Identity) Fingerprint() string {
	return id.fingerprint
}

// Fingerprint computes the lowercase-hex SHA-256 digest of certificate DER bytes
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// PeerFingerprint extracts the fingerprint from the raw certificates of a
// completed or in-progress TLS handshake
func PeerFingerprint(rawCerts [][]byte) (string, error) {
	if len(rawCerts) == 0 {
		return "", ErrNoPeerCertificate
	}
	return Fingerprint(rawCerts[0]), nil
}
