// Package protocol implements the LanLink wire protocol.
//
// The protocol package defines the versioned message envelope, the closed set
// of message kinds, and the typed payload codecs used between two LanLink
// peers on a local network.
//
// # Envelope Format
//
// Every message is one envelope, JSON-encoded and framed on the wire with a
// 4-byte big-endian length prefix:
//   - version (1 byte ordinal): protocol version, currently 0x01
//   - type (string): one of the closed kind enumeration
//   - payload (bytes, optional): opaque per-kind payload
//   - senderID (string): stable identity of the sending peer
//
// Receivers must reject envelopes carrying any version other than the current
// one. The payload is opaque at the envelope layer so that per-kind payload
// schemas can evolve independently of the outer framing: unknown fields are
// ignored and absent optional fields take their zero defaults.
//
// # Message Kinds
//
// Connection lifecycle:
//   - hello: PeerIdentity exchange, sent once per session
//   - connectionRequest/Accept/Reject/Cancel: session admission
//
// File transfer:
//   - fileOffer: TransferMetadata with declared digest
//   - fileAccept/fileReject: receiver decision (reject reason optional)
//   - fileChunk: raw ordered file bytes (payload is not JSON)
//   - fileComplete: sender-declared digest for verification
//   - batchStart/batchComplete: multi-file transfer boundaries
//
// Call signaling:
//   - sdpOffer, sdpAnswer, iceCandidate: opaque, forwarded verbatim to the
//     call-media collaborator
//   - callRequest/Accept/Reject/End: call admission
//
// Chat:
//   - textMessage, mediaMessage, chatReject, messageReceipt,
//     typingIndicator, reaction
//
// Session control:
//   - disconnect: explicit teardown
//   - ping/pong: heartbeats on an established session
//
// # Error Handling
//
// Decoding failures are fatal to the single message, never to the session:
//   - ErrMalformedEnvelope: structural violations of the outer record
//   - ErrUnsupportedVersion: version is not the current value
//   - ErrMissingPayload: kind requires a payload but none was carried
//   - ErrInvalidPayload: payload bytes do not match the kind's schema
package protocol
