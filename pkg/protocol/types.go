package protocol

// Protocol constants
const (
	// Protocol version (single byte ordinal)
	ProtocolVersion uint8 = 0x01

	// Maximum encoded envelope size on the wire
	MaxFrameSize = 1 << 20

	// Frame length prefix size
	FramePrefixSize = 4
)

// Kind identifies a message type on the wire
type Kind string

// Message kinds (closed enumeration)
const (
	// Connection lifecycle
	KindHello             Kind = "hello"
	KindConnectionRequest Kind = "connectionRequest"
	KindConnectionAccept  Kind = "connectionAccept"
	KindConnectionReject  Kind = "connectionReject"
	KindConnectionCancel  Kind = "connectionCancel"

	// File transfer
	KindFileOffer     Kind = "fileOffer"
	KindFileAccept    Kind = "fileAccept"
	KindFileReject    Kind = "fileReject"
	KindFileChunk     Kind = "fileChunk"
	KindFileComplete  Kind = "fileComplete"
	KindBatchStart    Kind = "batchStart"
	KindBatchComplete Kind = "batchComplete"

	// Call signaling (payloads are opaque to this layer)
	KindSDPOffer     Kind = "sdpOffer"
	KindSDPAnswer    Kind = "sdpAnswer"
	KindICECandidate Kind = "iceCandidate"
	KindCallRequest  Kind = "callRequest"
	KindCallAccept   Kind = "callAccept"
	KindCallReject   Kind = "callReject"
	KindCallEnd      Kind = "callEnd"

	// Chat
	KindTextMessage     Kind = "textMessage"
	KindMediaMessage    Kind = "mediaMessage"
	KindChatReject      Kind = "chatReject"
	KindMessageReceipt  Kind = "messageReceipt"
	KindTypingIndicator Kind = "typingIndicator"
	KindReaction        Kind = "reaction"

	// Session control
	KindDisconnect Kind = "disconnect"
	KindPing       Kind = "ping"
	KindPong       Kind = "pong"
)

// knownKinds is the closed set of valid message kinds
var knownKinds = map[Kind]bool{
	KindHello:             true,
	KindConnectionRequest: true,
	KindConnectionAccept:  true,
	KindConnectionReject:  true,
	KindConnectionCancel:  true,
	KindFileOffer:         true,
	KindFileAccept:        true,
	KindFileReject:        true,
	KindFileChunk:         true,
	KindFileComplete:      true,
	KindBatchStart:        true,
	KindBatchComplete:     true,
	KindSDPOffer:          true,
	KindSDPAnswer:         true,
	KindICECandidate:      true,
	KindCallRequest:       true,
	KindCallAccept:        true,
	KindCallReject:        true,
	KindCallEnd:           true,
	KindTextMessage:       true,
	KindMediaMessage:      true,
	KindChatReject:        true,
	KindMessageReceipt:    true,
	KindTypingIndicator:   true,
	KindReaction:          true,
	KindDisconnect:        true,
	KindPing:              true,
	KindPong:              true,
}

// requiresPayload lists the kinds that are meaningless without a payload.
// Reject-family kinds carry an optional reason and are deliberately absent.
var requiresPayload = map[Kind]bool{
	KindHello:             true,
	KindConnectionRequest: true,
	KindFileOffer:         true,
	KindFileChunk:         true,
	KindFileComplete:      true,
	KindBatchStart:        true,
	KindBatchComplete:     true,
	KindSDPOffer:          true,
	KindSDPAnswer:         true,
	KindICECandidate:      true,
	KindTextMessage:       true,
	KindMediaMessage:      true,
	KindMessageReceipt:    true,
	KindTypingIndicator:   true,
	KindReaction:          true,
}

// IsKnownKind reports whether k is part of the closed kind set
func IsKnownKind(k Kind) bool {
	return knownKinds[k]
}

// RequiresPayload reports whether envelopes of kind k must carry a payload
func RequiresPayload(k Kind) bool {
	return requiresPayload[k]
}
