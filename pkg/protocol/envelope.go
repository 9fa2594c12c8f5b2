package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMalformedEnvelope  = errors.New("malformed envelope")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrMissingPayload     = errors.New("missing payload")
	ErrInvalidPayload     = errors.New("invalid payload")
)

// Envelope is the versioned wire container for every message. The payload is
// opaque at this layer; each kind owns its own payload schema so payloads can
// evolve without breaking the outer framing.
type Envelope struct {
	Version  uint8  `json:"version"`
	Type     Kind   `json:"type"`
	Payload  []byte `json:"payload,omitempty"`
	SenderID string `json:"senderID"`
}

// NewEnvelope builds an envelope of the given kind with an already-encoded payload
func NewEnvelope(kind Kind, payload []byte, senderID string) *Envelope {
	return &Envelope{
		Version:  ProtocolVersion,
		Type:     kind,
		Payload:  payload,
		SenderID: senderID,
	}
}

// Encode serializes the envelope for transmission
func (e *Envelope) Encode() ([]byte, error) {
	if !IsKnownKind(e.Type) {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedEnvelope, e.Type)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("%w: encoded envelope exceeds %d bytes", ErrMalformedEnvelope, MaxFrameSize)
	}

	return data, nil
}

// Decode parses a received envelope. Version mismatches are rejected, not
// ignored; messages from a different protocol version must never be dispatched.
func Decode(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedEnvelope)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	if env.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, env.Version, ProtocolVersion)
	}

	if !IsKnownKind(env.Type) {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedEnvelope, env.Type)
	}

	if env.SenderID == "" {
		return nil, fmt.Errorf("%w: missing senderID", ErrMalformedEnvelope)
	}

	return &env, nil
}

// WriteEnvelope writes a length-prefixed envelope frame to w
func WriteEnvelope(w io.Writer, e *Envelope) error {
	data, err := e.Encode()
	if err != nil {
		return err
	}

	frame := make([]byte, FramePrefixSize+len(data))
	binary.BigEndian.PutUint32(frame[:FramePrefixSize], uint32(len(data)))
	copy(frame[FramePrefixSize:], data)

	if _, err := w.Write(frame); err != nil {
		return err
	}

	return nil
}

// ReadEnvelope reads one length-prefixed envelope frame from r
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	var prefix [FramePrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 || n > MaxFrameSize {
		return nil, fmt.Errorf("%w: invalid frame size %d", ErrMalformedEnvelope, n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	return Decode(data)
}
