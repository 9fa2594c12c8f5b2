// Package session implements the connection lifecycle state machine that
// sequences discovery input, secure channel establishment, chunked transfers,
// chat traffic and call signaling for one pairwise session.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lanlink/protocol/pkg/channel"
	"github.com/lanlink/protocol/pkg/crypto"
	"github.com/lanlink/protocol/pkg/protocol"
	"github.com/lanlink/protocol/pkg/transfer"
	"github.com/lanlink/protocol/pkg/trust"
)

// RecordSink receives terminal transfer outcomes for persistent history
type RecordSink interface {
	SaveTransfer(record TransferRecord) error
}

// Config wires the machine to its collaborators
type Config struct {
	// Identity is the ephemeral TLS identity of this process
	Identity *crypto.Identity

	// Local is the identity payload exchanged in hello messages
	Local protocol.PeerIdentity

	// Pins persists fingerprint trust decisions
	Pins trust.PinStore

	// Records receives terminal transfer outcomes; may be nil
	Records RecordSink

	// DownloadDir receives accepted inbound files
	DownloadDir string

	// AutoAcceptFiles accepts inbound file offers without an explicit
	// AcceptFile intent (used by the headless daemon)
	AutoAcceptFiles bool

	// Heartbeat pacing on an established session
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// OnStateChange observes every transition; may be nil
	OnStateChange func(Status)

	// OnText receives decoded chat text from the peer; may be nil
	OnText func(peerID string, msg protocol.TextMessage)

	// OnMedia receives decoded chat media from the peer; may be nil
	OnMedia func(peerID string, msg protocol.MediaMessage)

	// OnCallSignal receives sdpOffer/sdpAnswer/iceCandidate payloads
	// verbatim for the call-media collaborator; may be nil
	OnCallSignal func(kind protocol.Kind, payload []byte)
}

// DefaultHeartbeatInterval paces pings on an established session
const DefaultHeartbeatInterval = 5 * time.Second

// DefaultHeartbeatTimeout is how long silence is tolerated before the
// session fails with "timeout"
const DefaultHeartbeatTimeout = 15 * time.Second

// Machine is the authoritative holder of the session state. All mutation
// happens on the Run goroutine consuming the event stream.
type Machine struct {
	cfg Config

	events chan event

	mu     sync.RWMutex
	status Status

	// Everything below is touched only by the Run goroutine.
	candidate *PeerCandidate
	remote    *protocol.PeerIdentity
	ch        *channel.Channel

	helloReceived  bool
	acceptReceived bool
	sentAccept     bool
	disconnecting  bool
	callRequested  bool
	callPending    bool

	lastSeen time.Time
	lastPing time.Time

	outbound       *transfer.Outbound
	outboundSrc    closerFunc
	outboundCancel context.CancelFunc
	outboundQueue  []string
	sendBatch      *transfer.Batch
	sendBatchID    string
	inbound        *transfer.Inbound
	inboundSink    closerFunc
	batch          *transfer.Batch
	pendingOffer   *protocol.TransferMetadata
}

type closerFunc func() error

// New creates a machine in the idle state
func New(cfg Config) *Machine {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}

	return &Machine{
		cfg:    cfg,
		events: make(chan event, 64),
		status: Status{State: StateIdle},
	}
}

// Run consumes the event stream until ctx is cancelled. It owns all state
// mutation; callers interact through the intent methods and Status.
func (m *Machine) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.teardown("shutting down")
			return
		case ev := <-m.events:
			m.handle(ev)
		case <-ticker.C:
			m.handle(tickEvent{})
		}
	}
}

// Status returns a snapshot of the observable state
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// submit queues an event from a collaborator goroutine
func (m *Machine) submit(ev event) {
	select {
	case m.events <- ev:
	default:
		// The loop is wedged or flooded; dropping is safer than blocking a
		// network or UI goroutine.
		log.Printf("⚠️  Event queue full, dropping %s", ev.eventName())
	}
}

// ===== LOCAL INTENTS =====

// Discover signals local intent to look for peers
func (m *Machine) Discover() { m.submit(discoverIntent{}) }

// ReportCandidate feeds one discovered peer into the machine
func (m *Machine) ReportCandidate(c PeerCandidate) { m.submit(candidateEvent{candidate: c}) }

// Connect requests a session with the currently found peer
func (m *Machine) Connect() { m.submit(connectIntent{}) }

// Accept admits the pending incoming connection request
func (m *Machine) Accept() { m.submit(acceptIntent{}) }

// Reject declines the pending incoming connection request
func (m *Machine) Reject(reason string) { m.submit(rejectIntent{reason: reason}) }

// Disconnect tears the session down regardless of in-flight activity
func (m *Machine) Disconnect() { m.submit(disconnectIntent{}) }

// SendFile offers the file at path to the connected peer
func (m *Machine) SendFile(path string) { m.submit(sendFileIntent{path: path}) }

// SendFiles offers several files as one batch: batchStart, the per-file
// sequences in order, then batchComplete
func (m *Machine) SendFiles(paths []string) { m.submit(sendFilesIntent{paths: paths}) }

// SendText sends a chat text message to the connected peer
func (m *Machine) SendText(body string, replyTo *protocol.ReplyRef) {
	m.submit(sendTextIntent{body: body, replyTo: replyTo})
}

// AcceptFile accepts the pending inbound file offer
func (m *Machine) AcceptFile() { m.submit(acceptFileIntent{}) }

// RejectFile declines the pending inbound file offer
func (m *Machine) RejectFile(reason string) { m.submit(rejectFileIntent{reason: reason}) }

// RequestCall asks the connected peer to start a voice call
func (m *Machine) RequestCall() { m.submit(callIntent{}) }

// AcceptCall answers a pending incoming call request
func (m *Machine) AcceptCall() { m.submit(acceptCallIntent{}) }

// EndCall terminates the active call, returning to connected
func (m *Machine) EndCall() { m.submit(endCallIntent{}) }

// AttachInbound hands an accepted listener channel to the machine
func (m *Machine) AttachInbound(ch *channel.Channel) {
	m.submit(channelOpenedEvent{ch: ch, inbound: true})
}

// ===== STATE BOOKKEEPING =====

// setState records a transition and notifies the observer
func (m *Machine) setState(state State, reason string) {
	m.mu.Lock()
	prev := m.status.State
	m.status = Status{
		State:    state,
		Reason:   reason,
		Peer:     m.candidate,
		Progress: m.status.Progress,
	}
	if state != StateTransferring {
		m.status.Progress = 0
	}
	snapshot := m.status
	m.mu.Unlock()

	if prev != state {
		if reason != "" {
			log.Printf("🔁 Session %s → %s (%s)", prev, state, reason)
		} else {
			log.Printf("🔁 Session %s → %s", prev, state)
		}
	}

	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(snapshot)
	}
}

// setProgress updates transfer progress without a state change
func (m *Machine) setProgress(fraction float64) {
	m.mu.Lock()
	if fraction > m.status.Progress {
		m.status.Progress = fraction
	}
	snapshot := m.status
	m.mu.Unlock()

	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(snapshot)
	}
}

// fail moves to the failed state with a human-readable reason and tears the
// channel down. Failed is recoverable: a fresh discover or connect intent is
// accepted afterward.
func (m *Machine) fail(reason string) {
	log.Printf("❌ Session failed: %s", reason)
	m.closeChannel()
	m.abortTransfers("session failed: " + reason)
	m.setState(StateFailed, reason)
}

// teardown closes everything and reports disconnected
func (m *Machine) teardown(reason string) {
	m.closeChannel()
	m.abortTransfers(reason)
	m.setState(StateDisconnected, reason)
}

func (m *Machine) closeChannel() {
	if m.ch != nil {
		m.ch.Close()
		m.ch = nil
	}
	m.helloReceived = false
	m.acceptReceived = false
	m.sentAccept = false
	m.disconnecting = false
	m.callRequested = false
	m.callPending = false
	m.remote = nil
}

// abortTransfers discards in-flight transfer state; partial files are never
// resumed
func (m *Machine) abortTransfers(reason string) {
	if m.outboundCancel != nil {
		m.outboundCancel()
		m.outboundCancel = nil
	}
	if m.outbound != nil {
		m.record(resultToRecord(m.outbound.Rejected(reason)))
		m.outbound = nil
	}
	m.closeOutboundSrc()
	m.outboundQueue = nil
	m.sendBatch = nil
	m.sendBatchID = ""
	if m.inbound != nil {
		m.record(resultToRecord(m.inbound.Abort(reason)))
		m.inbound = nil
	}
	m.closeInboundSink()
	m.batch = nil
	m.pendingOffer = nil
}

func (m *Machine) closeOutboundSrc() {
	if m.outboundSrc != nil {
		m.outboundSrc()
		m.outboundSrc = nil
	}
}

func (m *Machine) closeInboundSink() {
	if m.inboundSink != nil {
		m.inboundSink()
		m.inboundSink = nil
	}
}

// record forwards a terminal transfer outcome to the history sink
func (m *Machine) record(rec TransferRecord) {
	if m.cfg.Records == nil {
		return
	}
	if err := m.cfg.Records.SaveTransfer(rec); err != nil {
		log.Printf("⚠️  Failed to record transfer %s: %v", rec.FileName, err)
	}
}

func resultToRecord(r transfer.Result) TransferRecord {
	return TransferRecord{
		FileName:  r.FileName,
		Size:      r.Size,
		Direction: string(r.Direction),
		Success:   r.Success,
	}
}

// send pushes an envelope to the peer, failing the session on write errors
func (m *Machine) send(env *protocol.Envelope) bool {
	if m.ch == nil {
		return false
	}
	if err := m.ch.Send(env); err != nil {
		m.fail("send failed: " + err.Error())
		return false
	}
	return true
}

// sendKind sends a payload-free envelope
func (m *Machine) sendKind(kind protocol.Kind) bool {
	return m.send(protocol.NewEnvelope(kind, nil, m.cfg.Local.ID))
}

// sendPayload encodes and sends a typed payload
func (m *Machine) sendPayload(kind protocol.Kind, payload any) bool {
	env, err := protocol.NewPayloadEnvelope(kind, payload, m.cfg.Local.ID)
	if err != nil {
		log.Printf("⚠️  Failed to encode %s payload: %v", kind, err)
		return false
	}
	return m.send(env)
}

// readLoop pumps received envelopes into the event stream until the channel
// dies. Runs on its own goroutine per channel.
func (m *Machine) readLoop(ch *channel.Channel) {
	for {
		env, err := ch.Receive()
		if err != nil {
			m.submit(channelReadErrorEvent{err: err})
			return
		}
		m.submit(envelopeEvent{env: env})
	}
}
