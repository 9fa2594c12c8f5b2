package protocol

import (
	"encoding/json"
	"fmt"
)

// PeerIdentity is the hello payload: a stable process identity plus the name
// shown to the remote user. Exchanged exactly once per session.
type PeerIdentity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// TransferMetadata describes one offered file before any bytes move
type TransferMetadata struct {
	TransferID string `json:"transferID"`
	FileName   string `json:"fileName"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"` // lowercase hex SHA-256 of the file
	BatchID    string `json:"batchID,omitempty"`
}

// BatchMetadata describes a multi-file transfer before the first file offer
type BatchMetadata struct {
	BatchID   string `json:"batchID"`
	FileCount int    `json:"fileCount"`
	TotalSize int64  `json:"totalSize"`
}

// FileComplete closes a single file sequence with the sender-declared digest
type FileComplete struct {
	Hash string `json:"hash"` // lowercase hex
}

// BatchComplete closes a batch once every declared file has finished
type BatchComplete struct {
	BatchID string `json:"batchID"`
}

// RejectInfo is the optional payload of the reject family
// (connectionReject, fileReject, callReject, chatReject). Older senders omit
// it entirely; an absent payload decodes to an empty reason.
type RejectInfo struct {
	Reason string `json:"reason,omitempty"`
}

// ReplyRef marks a text message as a reply to an earlier one
type ReplyRef struct {
	MessageID string `json:"messageID"`
	Preview   string `json:"preview,omitempty"`
}

// TextMessage is a chat text payload. ReplyTo is optional; absent means the
// message is not a reply.
type TextMessage struct {
	MessageID string    `json:"messageID"`
	Body      string    `json:"body"`
	SentAt    int64     `json:"sentAt"` // Unix milliseconds
	ReplyTo   *ReplyRef `json:"replyTo,omitempty"`
}

// MediaMessage carries inline chat media (images, short clips)
type MediaMessage struct {
	MessageID string `json:"messageID"`
	FileName  string `json:"fileName"`
	MIMEType  string `json:"mimeType"`
	Data      []byte `json:"data"`
	SentAt    int64  `json:"sentAt"`
}

// Receipt statuses
const (
	ReceiptDelivered = "delivered"
	ReceiptRead      = "read"
)

// MessageReceipt acknowledges delivery or reading of a chat message
type MessageReceipt struct {
	MessageID string `json:"messageID"`
	Status    string `json:"status"`
}

// TypingIndicator signals typing start/stop
type TypingIndicator struct {
	IsTyping bool `json:"isTyping"`
}

// Reaction attaches an emoji reaction to an earlier message
type Reaction struct {
	MessageID string `json:"messageID"`
	Emoji     string `json:"emoji"`
}

// EncodePayload marshals a typed payload for embedding in an envelope
func EncodePayload(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return data, nil
}

// DecodePayload decodes an envelope payload into the kind's typed schema.
// Fails with ErrMissingPayload if the kind requires a payload and the envelope
// carries none, and ErrInvalidPayload if the bytes do not match the schema.
// Unknown fields from newer senders are ignored so payload schemas can grow
// without breaking older receivers.
func DecodePayload[T any](env *Envelope) (*T, error) {
	if len(env.Payload) == 0 {
		if RequiresPayload(env.Type) {
			return nil, fmt.Errorf("%w: kind %q", ErrMissingPayload, env.Type)
		}
		// Optional payload absent: all fields take their zero defaults.
		return new(T), nil
	}

	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return nil, fmt.Errorf("%w: kind %q: %v", ErrInvalidPayload, env.Type, err)
	}

	return &v, nil
}

// NewPayloadEnvelope builds an envelope with a typed payload in one step
func NewPayloadEnvelope(kind Kind, payload any, senderID string) (*Envelope, error) {
	data, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	return NewEnvelope(kind, data, senderID), nil
}
