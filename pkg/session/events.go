package session

import (
	"github.com/lanlink/protocol/pkg/channel"
	"github.com/lanlink/protocol/pkg/protocol"
	"github.com/lanlink/protocol/pkg/transfer"
)

// event is one tagged variant of the machine's single ordered event stream.
// Every source (discovery, local intent, channel, transfer, timer) funnels
// through this stream so transitions stay centrally auditable; no source
// mutates state directly.
type event interface {
	eventName() string
}

// Local intents

type discoverIntent struct{}

type connectIntent struct{}

type acceptIntent struct{}

type rejectIntent struct{ reason string }

type disconnectIntent struct{}

type sendFileIntent struct{ path string }

type sendFilesIntent struct{ paths []string }

type sendTextIntent struct {
	body    string
	replyTo *protocol.ReplyRef
}

type acceptFileIntent struct{}

type rejectFileIntent struct{ reason string }

type callIntent struct{}

type acceptCallIntent struct{}

type endCallIntent struct{}

// Discovery input

type candidateEvent struct{ candidate PeerCandidate }

// Channel lifecycle

type channelOpenedEvent struct {
	ch      *channel.Channel
	inbound bool
}

type channelFailedEvent struct{ err error }

type channelReadErrorEvent struct{ err error }

type envelopeEvent struct{ env *protocol.Envelope }

// Transfer engine feedback

type transferProgressEvent struct{ fraction float64 }

type transferFinishedEvent struct {
	result transfer.Result
	err    error
}

// Heartbeat timer

type tickEvent struct{}

func (discoverIntent) eventName() string         { return "discoverIntent" }
func (connectIntent) eventName() string          { return "connectIntent" }
func (acceptIntent) eventName() string           { return "acceptIntent" }
func (rejectIntent) eventName() string           { return "rejectIntent" }
func (disconnectIntent) eventName() string       { return "disconnectIntent" }
func (sendFileIntent) eventName() string         { return "sendFileIntent" }
func (sendFilesIntent) eventName() string        { return "sendFilesIntent" }
func (sendTextIntent) eventName() string         { return "sendTextIntent" }
func (acceptFileIntent) eventName() string       { return "acceptFileIntent" }
func (rejectFileIntent) eventName() string       { return "rejectFileIntent" }
func (callIntent) eventName() string             { return "callIntent" }
func (acceptCallIntent) eventName() string       { return "acceptCallIntent" }
func (endCallIntent) eventName() string          { return "endCallIntent" }
func (candidateEvent) eventName() string         { return "candidate" }
func (channelOpenedEvent) eventName() string     { return "channelOpened" }
func (channelFailedEvent) eventName() string     { return "channelFailed" }
func (channelReadErrorEvent) eventName() string  { return "channelReadError" }
func (envelopeEvent) eventName() string          { return "envelope" }
func (transferProgressEvent) eventName() string  { return "transferProgress" }
func (transferFinishedEvent) eventName() string  { return "transferFinished" }
func (tickEvent) eventName() string              { return "tick" }
