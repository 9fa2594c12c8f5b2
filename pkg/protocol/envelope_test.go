package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEnvelopeEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		env  *Envelope
	}{
		{
			name: "ping without payload",
			env:  NewEnvelope(KindPing, nil, "peer-a"),
		},
		{
			name: "text message",
			env:  NewEnvelope(KindTextMessage, []byte(`{"messageID":"m1","body":"hi","sentAt":1}`), "peer-a"),
		},
		{
			name: "binary chunk payload",
			env:  NewEnvelope(KindFileChunk, bytes.Repeat([]byte{0x00, 0xFF}, 512), "peer-b"),
		},
		{
			name: "reject without reason",
			env:  NewEnvelope(KindFileReject, nil, "peer-b"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.env.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if decoded.Version != tt.env.Version {
				t.Errorf("Version = %d, want %d", decoded.Version, tt.env.Version)
			}
			if decoded.Type != tt.env.Type {
				t.Errorf("Type = %q, want %q", decoded.Type, tt.env.Type)
			}
			if decoded.SenderID != tt.env.SenderID {
				t.Errorf("SenderID = %q, want %q", decoded.SenderID, tt.env.SenderID)
			}
			if !bytes.Equal(decoded.Payload, tt.env.Payload) {
				t.Error("Payload mismatch")
			}
		})
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	env := NewEnvelope(KindPing, nil, "peer-a")
	env.Version = ProtocolVersion + 1

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	_, err = Decode(data)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Decode() error = %v, want ErrUnsupportedVersion", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "not json", data: []byte{0x01, 0x02, 0x03}},
		{name: "unknown kind", data: []byte(`{"version":1,"type":"warpDrive","senderID":"p"}`)},
		{name: "missing senderID", data: []byte(`{"version":1,"type":"ping"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("Decode() error = %v, want ErrMalformedEnvelope", err)
			}
		})
	}
}

func TestEncodeUnknownKind(t *testing.T) {
	env := NewEnvelope(Kind("bogus"), nil, "peer-a")
	if _, err := env.Encode(); !errors.Is(err, ErrMalformedEnvelope) {
		t.Errorf("Encode() error = %v, want ErrMalformedEnvelope", err)
	}
}

func TestReadWriteEnvelope(t *testing.T) {
	var buf bytes.Buffer

	sent := []*Envelope{
		NewEnvelope(KindPing, nil, "peer-a"),
		NewEnvelope(KindFileChunk, bytes.Repeat([]byte{0xAB}, 2048), "peer-a"),
		NewEnvelope(KindPong, nil, "peer-b"),
	}

	for _, env := range sent {
		if err := WriteEnvelope(&buf, env); err != nil {
			t.Fatalf("WriteEnvelope() error = %v", err)
		}
	}

	for i, want := range sent {
		got, err := ReadEnvelope(&buf)
		if err != nil {
			t.Fatalf("ReadEnvelope() #%d error = %v", i, err)
		}
		if got.Type != want.Type {
			t.Errorf("#%d Type = %q, want %q", i, got.Type, want.Type)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("#%d payload mismatch", i)
		}
	}
}

func TestReadEnvelopeInvalidFrameSize(t *testing.T) {
	tests := []struct {
		name string
		size uint32
	}{
		{name: "zero length", size: 0},
		{name: "oversized", size: MaxFrameSize + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			var prefix [FramePrefixSize]byte
			binary.BigEndian.PutUint32(prefix[:], tt.size)
			buf.Write(prefix[:])

			_, err := ReadEnvelope(&buf)
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("ReadEnvelope() error = %v, want ErrMalformedEnvelope", err)
			}
		})
	}
}
