package channel

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"github.com/lanlink/protocol/pkg/crypto"
)

// DefaultEstablishTimeout bounds how long a handshake may block
const DefaultEstablishTimeout = 10 * time.Second

// VerifyFunc is the trust decision evaluated against the remote fingerprint
// during the handshake. Returning an error aborts establishment before any
// application data flows.
type VerifyFunc func(fingerprint string) error

// Listener accepts inbound secure channels. The listener role presents the
// local identity and accepts any client fingerprint; trust decisions for
// inbound peers happen at the session layer once the peer identifies itself.
type Listener struct {
	ln net.Listener
}

// Listen starts a TLS listener on addr presenting the given identity
func Listen(addr string, identity *crypto.Identity) (*Listener, error) {
	config := &tls.Config{
		Certificates: []tls.Certificate{identity.Certificate()},
		ClientAuth:   tls.RequireAnyClientCert,
		MinVersion:   tls.VersionTLS13,
	}

	ln, err := tls.Listen("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &Listener{ln: ln}, nil
}

// Accept blocks for the next inbound connection and completes its handshake
func (l *Listener) Accept() (*Channel, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("accepted connection is not TLS")
	}

	tlsConn.SetDeadline(time.Now().Add(DefaultEstablishTimeout))
	fingerprint, err := handshakeFingerprint(tlsConn)
	if err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("inbound handshake failed: %w", err)
	}
	tlsConn.SetDeadline(time.Time{})

	return NewChannel(tlsConn, fingerprint), nil
}

// Addr returns the listener's bound address
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting connections
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Dial establishes an outbound secure channel to addr. verify receives the
// remote certificate fingerprint inside the handshake; for a reconnection to
// a previously trusted peer it should enforce the pinned fingerprint, and on
// first contact it decides per trust-on-first-use.
func Dial(ctx context.Context, addr string, identity *crypto.Identity, verify VerifyFunc) (*Channel, error) {
	var remoteFingerprint string

	config := &tls.Config{
		Certificates: []tls.Certificate{identity.Certificate()},
		MinVersion:   tls.VersionTLS13,

		// Verification is fingerprint pinning, not CA validation. The
		// callback below is the sole authentication gate.
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			fingerprint, err := crypto.PeerFingerprint(rawCerts)
			if err != nil {
				return err
			}
			if err := verify(fingerprint); err != nil {
				return err
			}
			remoteFingerprint = fingerprint
			return nil
		},
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultEstablishTimeout)
		defer cancel()
	}

	dialer := &tls.Dialer{Config: config}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to establish channel to %s: %w", addr, err)
	}

	return NewChannel(conn, remoteFingerprint), nil
}
