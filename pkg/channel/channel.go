// Package channel establishes mutually authenticated encrypted sessions
// between two LanLink processes over TCP with TLS 1.3.
//
// Authentication does not rely on a certificate authority: both sides present
// ephemeral self-signed certificates and the dialer's verification callback is
// the single integration point for the fingerprint trust decision. It runs
// synchronously inside the handshake, before any application data is
// considered received.
package channel

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/lanlink/protocol/pkg/crypto"
	"github.com/lanlink/protocol/pkg/protocol"
)

// Channel is an established encrypted duplex envelope stream. Sends are
// serialized so envelope order on the wire matches call order; receivers rely
// on arrival order for chunked transfers.
type Channel struct {
	conn              net.Conn
	remoteFingerprint string

	sendMu  sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// NewChannel wraps an already-authenticated connection. Exposed so the
// session layer can be exercised over in-memory pipes in tests.
func NewChannel(conn net.Conn, remoteFingerprint string) *Channel {
	return &Channel{
		conn:              conn,
		remoteFingerprint: remoteFingerprint,
	}
}

// Send writes one envelope to the wire
func (c *Channel) Send(env *protocol.Envelope) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := protocol.WriteEnvelope(c.conn, env); err != nil {
		return fmt.Errorf("failed to send %s: %w", env.Type, err)
	}

	return nil
}

// Receive blocks until the next envelope arrives or the channel fails
func (c *Channel) Receive() (*protocol.Envelope, error) {
	return protocol.ReadEnvelope(c.conn)
}

// RemoteFingerprint returns the fingerprint the remote side authenticated with
func (c *Channel) RemoteFingerprint() string {
	return c.remoteFingerprint
}

// RemoteAddr returns the remote network address
func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close tears down the underlying connection. Safe to call multiple times.
func (c *Channel) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.conn.Close()
}

// handshakeFingerprint completes the TLS handshake on conn and returns the
// remote certificate fingerprint
func handshakeFingerprint(conn *tls.Conn) (string, error) {
	if err := conn.Handshake(); err != nil {
		return "", err
	}

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return "", crypto.ErrNoPeerCertificate
	}

	return crypto.Fingerprint(state.PeerCertificates[0].Raw), nil
}
