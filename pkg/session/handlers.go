package session

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lanlink/protocol/pkg/channel"
	"github.com/lanlink/protocol/pkg/protocol"
	"github.com/lanlink/protocol/pkg/transfer"
	"github.com/lanlink/protocol/pkg/trust"
)

func newMessageID() string {
	return uuid.NewString()
}

// handle applies one event. Runs exclusively on the Run goroutine.
func (m *Machine) handle(ev event) {
	state := m.Status().State

	switch ev := ev.(type) {
	case discoverIntent:
		m.handleDiscover(state)
	case candidateEvent:
		m.handleCandidate(state, ev.candidate)
	case connectIntent:
		m.handleConnect(state)
	case acceptIntent:
		m.handleAccept(state)
	case rejectIntent:
		m.handleReject(state, ev.reason)
	case disconnectIntent:
		m.handleDisconnect(state)
	case sendFileIntent:
		m.handleSendFile(state, ev.path)
	case sendFilesIntent:
		m.handleSendFiles(state, ev.paths)
	case sendTextIntent:
		m.handleSendText(state, ev)
	case acceptFileIntent:
		m.handleAcceptFile(state)
	case rejectFileIntent:
		m.handleRejectFile(state, ev.reason)
	case callIntent:
		m.handleCallRequest(state)
	case acceptCallIntent:
		m.handleAcceptCall(state)
	case endCallIntent:
		m.handleEndCall(state)
	case channelOpenedEvent:
		m.handleChannelOpened(state, ev)
	case channelFailedEvent:
		m.handleChannelFailed(state, ev.err)
	case channelReadErrorEvent:
		m.handleReadError(state, ev.err)
	case envelopeEvent:
		m.handleEnvelope(state, ev.env)
	case transferProgressEvent:
		if state == StateTransferring {
			m.setProgress(ev.fraction)
		}
	case transferFinishedEvent:
		m.handleTransferFinished(state, ev)
	case tickEvent:
		m.handleTick(state)
	}
}

// ===== LIFECYCLE INTENTS =====

func (m *Machine) handleDiscover(state State) {
	switch state {
	case StateIdle, StateDiscovering, StatePeerFound, StateDisconnected, StateRejected, StateFailed:
		m.candidate = nil
		m.setState(StateDiscovering, "")
	default:
		log.Printf("⚠️  Ignoring discover intent in state %s", state)
	}
}

func (m *Machine) handleCandidate(state State, c PeerCandidate) {
	switch state {
	case StateIdle, StateDiscovering:
		candidate := c
		m.candidate = &candidate
		m.setState(StatePeerFound, "")
	case StatePeerFound:
		// Later sightings refresh the candidate address.
		candidate := c
		m.candidate = &candidate
	default:
		// Candidates arriving mid-session are ignored; one session at a time.
	}
}

func (m *Machine) handleConnect(state State) {
	if state != StatePeerFound || m.candidate == nil {
		log.Printf("⚠️  Ignoring connect intent in state %s", state)
		return
	}

	peer := *m.candidate
	m.setState(StateRequesting, "")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), channel.DefaultEstablishTimeout)
		defer cancel()

		ch, err := channel.Dial(ctx, peer.Address, m.cfg.Identity, func(fingerprint string) error {
			_, err := trust.Evaluate(m.cfg.Pins, peer.ID, fingerprint)
			return err
		})
		if err != nil {
			m.submit(channelFailedEvent{err: err})
			return
		}
		m.submit(channelOpenedEvent{ch: ch})
	}()
}

func (m *Machine) handleAccept(state State) {
	if state != StateIncomingRequest {
		log.Printf("⚠️  Ignoring accept intent in state %s", state)
		return
	}

	if !m.sendKind(protocol.KindConnectionAccept) {
		return
	}
	m.sentAccept = true
	m.setState(StateConnecting, "")
	m.maybeConnected()
}

func (m *Machine) handleReject(state State, reason string) {
	if state != StateIncomingRequest {
		log.Printf("⚠️  Ignoring reject intent in state %s", state)
		return
	}

	m.sendPayload(protocol.KindConnectionReject, protocol.RejectInfo{Reason: reason})
	m.closeChannel()
	m.setState(StateRejected, reason)
}

func (m *Machine) handleDisconnect(state State) {
	if state.sessionBound() {
		m.disconnecting = true
		m.sendKind(protocol.KindDisconnect)
		m.teardown("local disconnect")
		return
	}

	if state == StateDiscovering || state == StatePeerFound {
		m.candidate = nil
		m.setState(StateIdle, "")
	}
}

// ===== CHANNEL EVENTS =====

func (m *Machine) handleChannelOpened(state State, ev channelOpenedEvent) {
	if ev.inbound {
		if state.sessionBound() {
			// One session at a time; a second inbound connection is refused.
			log.Printf("⚠️  Refusing inbound connection while %s", state)
			ev.ch.Close()
			return
		}
		m.ch = ev.ch
		go m.readLoop(ev.ch)
		m.sendPayload(protocol.KindHello, m.cfg.Local)
		// Stay in the current state until the peer's connectionRequest
		// identifies it and passes the trust check.
		return
	}

	if state != StateRequesting {
		ev.ch.Close()
		return
	}

	m.ch = ev.ch
	go m.readLoop(ev.ch)
	m.sendPayload(protocol.KindHello, m.cfg.Local)
	m.sendPayload(protocol.KindConnectionRequest, m.cfg.Local)
}

func (m *Machine) handleChannelFailed(state State, err error) {
	if state != StateRequesting && state != StateConnecting {
		return
	}
	m.fail(err.Error())
}

func (m *Machine) handleReadError(state State, err error) {
	if m.disconnecting || !state.sessionBound() {
		return
	}
	m.fail("connection lost: " + err.Error())
}

// ===== HEARTBEATS =====

func (m *Machine) handleTick(state State) {
	if !state.active() {
		return
	}

	now := time.Now()
	if now.Sub(m.lastSeen) > m.cfg.HeartbeatTimeout {
		m.fail("timeout")
		return
	}
	if now.Sub(m.lastPing) >= m.cfg.HeartbeatInterval {
		m.lastPing = now
		m.sendKind(protocol.KindPing)
	}
}

// maybeConnected promotes connecting to connected once the hello exchange and
// the accept (remote for the dialer, local for the listener) both completed
func (m *Machine) maybeConnected() {
	if !m.helloReceived {
		return
	}
	if !m.acceptReceived && !m.sentAccept {
		return
	}

	now := time.Now()
	m.lastSeen = now
	m.lastPing = now
	m.setState(StateConnected, "")
}

// ===== ENVELOPE DISPATCH =====

func (m *Machine) handleEnvelope(state State, env *protocol.Envelope) {
	m.lastSeen = time.Now()

	switch env.Type {
	case protocol.KindHello:
		m.handleHello(env)
	case protocol.KindConnectionRequest:
		m.handleConnectionRequest(state, env)
	case protocol.KindConnectionAccept:
		if state == StateRequesting || state == StateConnecting {
			m.acceptReceived = true
			if state == StateRequesting {
				m.setState(StateConnecting, "")
			}
			m.maybeConnected()
		}
	case protocol.KindConnectionReject:
		if state == StateRequesting || state == StateConnecting {
			info := m.decodeReject(env)
			m.closeChannel()
			m.setState(StateRejected, info.Reason)
		}
	case protocol.KindConnectionCancel:
		if state == StateIncomingRequest {
			m.teardown("peer cancelled request")
		}
	case protocol.KindDisconnect:
		if state.sessionBound() {
			m.disconnecting = true
			m.teardown("peer disconnected")
		}
	case protocol.KindPing:
		m.sendKind(protocol.KindPong)
	case protocol.KindPong:
		// lastSeen already refreshed.
	case protocol.KindFileOffer:
		m.handleFileOffer(state, env)
	case protocol.KindFileAccept:
		m.handleFileAccepted(state)
	case protocol.KindFileReject:
		m.handleFileRejected(env)
	case protocol.KindFileChunk:
		m.handleFileChunk(env)
	case protocol.KindFileComplete:
		m.handleFileComplete(env)
	case protocol.KindBatchStart:
		m.handleBatchStart(env)
	case protocol.KindBatchComplete:
		m.handleBatchComplete(env)
	case protocol.KindSDPOffer, protocol.KindSDPAnswer, protocol.KindICECandidate:
		// Opaque to this core; forwarded verbatim.
		if m.cfg.OnCallSignal != nil {
			m.cfg.OnCallSignal(env.Type, env.Payload)
		}
	case protocol.KindCallRequest:
		if state == StateConnected {
			m.callPending = true
			log.Printf("📞 Incoming call request from %s", env.SenderID)
		}
	case protocol.KindCallAccept:
		if state == StateConnected && m.callRequested {
			m.callRequested = false
			m.setState(StateVoiceCall, "")
		}
	case protocol.KindCallReject:
		if m.callRequested {
			m.callRequested = false
			info := m.decodeReject(env)
			log.Printf("📞 Call rejected: %s", info.Reason)
		}
	case protocol.KindCallEnd:
		if state == StateVoiceCall {
			m.setState(StateConnected, "")
		}
	case protocol.KindTextMessage:
		m.handleText(env)
	case protocol.KindMediaMessage:
		m.handleMedia(env)
	case protocol.KindChatReject:
		info := m.decodeReject(env)
		log.Printf("💬 Chat rejected by peer: %s", info.Reason)
	case protocol.KindMessageReceipt:
		if receipt, err := protocol.DecodePayload[protocol.MessageReceipt](env); err == nil {
			log.Printf("💬 Receipt for %s: %s", receipt.MessageID, receipt.Status)
		}
	case protocol.KindTypingIndicator, protocol.KindReaction:
		// Presentation-layer concerns; nothing to sequence here.
	default:
		log.Printf("⚠️  Dropping unhandled message kind %s", env.Type)
	}
}

// decodeReject tolerates the historical payload-free reject variant
func (m *Machine) decodeReject(env *protocol.Envelope) protocol.RejectInfo {
	info, err := protocol.DecodePayload[protocol.RejectInfo](env)
	if err != nil {
		log.Printf("⚠️  Dropping malformed %s payload: %v", env.Type, err)
		return protocol.RejectInfo{}
	}
	return *info
}

func (m *Machine) handleHello(env *protocol.Envelope) {
	identity, err := protocol.DecodePayload[protocol.PeerIdentity](env)
	if err != nil {
		log.Printf("⚠️  Dropping malformed hello: %v", err)
		return
	}

	m.remote = identity
	m.helloReceived = true
	m.maybeConnected()
}

func (m *Machine) handleConnectionRequest(state State, env *protocol.Envelope) {
	if m.ch == nil || state.sessionBound() {
		return
	}

	identity, err := protocol.DecodePayload[protocol.PeerIdentity](env)
	if err != nil {
		log.Printf("⚠️  Dropping malformed connection request: %v", err)
		return
	}

	// The listener role accepted the TLS handshake blind; the trust decision
	// happens here, now that the peer has identified itself.
	if _, err := trust.Evaluate(m.cfg.Pins, identity.ID, m.ch.RemoteFingerprint()); err != nil {
		m.fail(err.Error())
		return
	}

	m.candidate = &PeerCandidate{
		ID:          identity.ID,
		DisplayName: identity.DisplayName,
		Address:     m.ch.RemoteAddr().String(),
	}
	m.remote = identity
	m.setState(StateIncomingRequest, "")
}

// ===== TRANSFERS =====

// transferActive reports whether either direction still occupies the session.
// One outbound and one inbound transfer may be in flight at the same time;
// transferring is derived from either being active.
func (m *Machine) transferActive() bool {
	return m.inbound != nil || m.outbound != nil || len(m.outboundQueue) > 0
}

// settleTransferState drops back to connected once nothing is in flight
func (m *Machine) settleTransferState() {
	if m.transferActive() {
		return
	}
	if m.Status().State == StateTransferring {
		m.setState(StateConnected, "")
	}
}

// startOffer builds and announces one outbound transfer. A non-empty batchID
// tags the offer as part of a batch.
func (m *Machine) startOffer(path, batchID string) bool {
	meta, err := transfer.OfferFile(path)
	if err != nil {
		log.Printf("❌ Failed to offer %s: %v", path, err)
		return false
	}
	meta.BatchID = batchID

	src, err := os.Open(path)
	if err != nil {
		log.Printf("❌ Failed to open %s: %v", path, err)
		return false
	}

	ch := m.ch
	m.outbound = transfer.NewOutbound(meta, src, ch.Send, m.cfg.Local.ID, func(fraction float64) {
		m.submit(transferProgressEvent{fraction: fraction})
	})
	m.outboundSrc = src.Close

	if err := m.outbound.Offer(); err != nil {
		log.Printf("❌ Failed to send file offer: %v", err)
		m.outbound = nil
		m.closeOutboundSrc()
		return false
	}
	return true
}

func (m *Machine) handleSendFile(state State, path string) {
	if !state.active() {
		log.Printf("⚠️  Cannot send a file while %s", state)
		return
	}
	if m.outbound != nil || len(m.outboundQueue) > 0 {
		log.Printf("⚠️  An outbound transfer is already in flight")
		return
	}

	m.startOffer(path, "")
}

func (m *Machine) handleSendFiles(state State, paths []string) {
	if !state.active() {
		log.Printf("⚠️  Cannot send files while %s", state)
		return
	}
	if m.outbound != nil || len(m.outboundQueue) > 0 {
		log.Printf("⚠️  An outbound transfer is already in flight")
		return
	}
	if len(paths) == 0 {
		return
	}
	if len(paths) == 1 {
		m.startOffer(paths[0], "")
		return
	}

	var total int64
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			log.Printf("❌ Cannot batch %s: %v", path, err)
			return
		}
		total += info.Size()
	}

	meta := protocol.BatchMetadata{
		BatchID:   uuid.NewString(),
		FileCount: len(paths),
		TotalSize: total,
	}
	if !m.sendPayload(protocol.KindBatchStart, meta) {
		return
	}

	m.sendBatch = transfer.NewBatch(&meta)
	m.sendBatchID = meta.BatchID
	m.outboundQueue = append([]string(nil), paths...)
	log.Printf("📦 Sending batch %s: %d files, %d bytes", meta.BatchID, meta.FileCount, meta.TotalSize)
	m.advanceQueue()
}

// advanceQueue starts the next queued offer, closing out the batch when the
// queue drains
func (m *Machine) advanceQueue() {
	for len(m.outboundQueue) > 0 {
		path := m.outboundQueue[0]
		m.outboundQueue = m.outboundQueue[1:]
		if m.startOffer(path, m.sendBatchID) {
			return
		}
	}

	if m.sendBatch != nil {
		m.sendPayload(protocol.KindBatchComplete, protocol.BatchComplete{BatchID: m.sendBatch.ID()})
		if m.sendBatch.Complete() && m.sendBatch.Succeeded() {
			log.Printf("✅ Batch %s sent", m.sendBatch.ID())
		} else {
			log.Printf("⚠️  Batch %s finished with failures", m.sendBatch.ID())
		}
		m.sendBatch = nil
		m.sendBatchID = ""
	}
	m.settleTransferState()
}

// finishOutbound records a terminal outbound outcome and moves the queue on
func (m *Machine) finishOutbound(result transfer.Result) {
	m.record(resultToRecord(result))
	if m.sendBatch != nil {
		if err := m.sendBatch.FileFinished(result.TransferID, result.Success); err != nil {
			log.Printf("⚠️  Batch bookkeeping: %v", err)
		}
	}

	m.outbound = nil
	m.outboundCancel = nil
	m.closeOutboundSrc()
	m.advanceQueue()
}

func (m *Machine) handleFileAccepted(state State) {
	if m.outbound == nil || m.outboundCancel != nil || !state.active() {
		return
	}

	outbound := m.outbound
	m.setState(StateTransferring, "")

	ctx, cancel := context.WithCancel(context.Background())
	m.outboundCancel = cancel

	go func() {
		err := outbound.Stream(ctx)
		if err != nil {
			m.submit(transferFinishedEvent{result: outbound.Rejected(err.Error()), err: err})
			return
		}
		m.submit(transferFinishedEvent{result: outbound.Completed()})
	}()
}

func (m *Machine) handleFileRejected(env *protocol.Envelope) {
	if m.outbound == nil {
		return
	}

	info := m.decodeReject(env)
	m.finishOutbound(m.outbound.Rejected(info.Reason))
}

func (m *Machine) handleTransferFinished(state State, ev transferFinishedEvent) {
	if m.outbound == nil {
		// Already aborted by disconnect or failure.
		return
	}

	if ev.err != nil {
		log.Printf("❌ Outbound transfer failed: %v", ev.err)
	} else {
		log.Printf("✅ Sent %s (%d bytes)", ev.result.FileName, ev.result.Size)
	}

	m.finishOutbound(ev.result)
}

func (m *Machine) handleFileOffer(state State, env *protocol.Envelope) {
	if state != StateConnected && state != StateTransferring {
		return
	}

	meta, err := protocol.DecodePayload[protocol.TransferMetadata](env)
	if err != nil {
		log.Printf("⚠️  Dropping malformed file offer: %v", err)
		return
	}

	// Exactly one inbound transfer may be in flight per session.
	if m.inbound != nil || m.pendingOffer != nil {
		m.sendPayload(protocol.KindFileReject, protocol.RejectInfo{Reason: "a transfer is already in progress"})
		return
	}

	if m.cfg.AutoAcceptFiles {
		m.acceptOffer(meta)
		return
	}

	m.pendingOffer = meta
	log.Printf("📥 File offered: %s (%d bytes) - awaiting accept", meta.FileName, meta.Size)
}

func (m *Machine) handleAcceptFile(state State) {
	if m.pendingOffer == nil {
		log.Printf("⚠️  No pending file offer to accept")
		return
	}
	meta := m.pendingOffer
	m.pendingOffer = nil
	m.acceptOffer(meta)
}

func (m *Machine) handleRejectFile(state State, reason string) {
	if m.pendingOffer == nil {
		log.Printf("⚠️  No pending file offer to reject")
		return
	}

	meta := m.pendingOffer
	m.pendingOffer = nil
	m.sendPayload(protocol.KindFileReject, protocol.RejectInfo{Reason: reason})
	m.record(TransferRecord{
		FileName:  meta.FileName,
		Size:      meta.Size,
		Direction: string(transfer.DirectionReceive),
		Success:   false,
	})
}

func (m *Machine) acceptOffer(meta *protocol.TransferMetadata) {
	dir := m.cfg.DownloadDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("❌ Failed to create download dir: %v", err)
		m.sendPayload(protocol.KindFileReject, protocol.RejectInfo{Reason: "storage unavailable"})
		return
	}

	// Never trust sender-supplied paths.
	path := filepath.Join(dir, filepath.Base(meta.FileName))
	sink, err := os.Create(path)
	if err != nil {
		log.Printf("❌ Failed to create %s: %v", path, err)
		m.sendPayload(protocol.KindFileReject, protocol.RejectInfo{Reason: "storage unavailable"})
		return
	}

	m.inbound = transfer.NewInbound(meta, sink, func(fraction float64) {
		m.setProgress(fraction)
	})
	m.inboundSink = sink.Close

	if !m.sendKind(protocol.KindFileAccept) {
		return
	}
	m.setState(StateTransferring, "")
}

func (m *Machine) handleFileChunk(env *protocol.Envelope) {
	if m.inbound == nil {
		log.Printf("⚠️  Dropping stray file chunk")
		return
	}

	if err := m.inbound.HandleChunk(env.Payload); err != nil {
		log.Printf("❌ Inbound transfer failed: %v", err)
		m.record(resultToRecord(m.inbound.Abort(err.Error())))
		m.inbound = nil
		m.closeInboundSink()
		m.settleTransferState()
	}
}

func (m *Machine) handleFileComplete(env *protocol.Envelope) {
	if m.inbound == nil {
		return
	}

	payload, err := protocol.DecodePayload[protocol.FileComplete](env)
	if err != nil {
		log.Printf("⚠️  Dropping malformed file completion: %v", err)
		return
	}

	result := m.inbound.Complete(payload.Hash)
	m.record(resultToRecord(result))
	if m.batch != nil {
		if err := m.batch.FileFinished(result.TransferID, result.Success); err != nil {
			log.Printf("⚠️  Batch bookkeeping: %v", err)
		}
	}

	m.inbound = nil
	m.closeInboundSink()

	if result.Success {
		log.Printf("✅ Received %s (%d bytes, digest verified)", result.FileName, result.Size)
	} else {
		log.Printf("❌ Transfer of %s failed: %s", result.FileName, result.Reason)
	}

	m.settleTransferState()
}

func (m *Machine) handleBatchStart(env *protocol.Envelope) {
	meta, err := protocol.DecodePayload[protocol.BatchMetadata](env)
	if err != nil {
		log.Printf("⚠️  Dropping malformed batch start: %v", err)
		return
	}

	m.batch = transfer.NewBatch(meta)
	log.Printf("📦 Batch %s: %d files, %d bytes total", meta.BatchID, meta.FileCount, meta.TotalSize)
}

func (m *Machine) handleBatchComplete(env *protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.BatchComplete](env)
	if err != nil {
		log.Printf("⚠️  Dropping malformed batch completion: %v", err)
		return
	}

	if m.batch == nil || m.batch.ID() != payload.BatchID {
		log.Printf("⚠️  Completion for unknown batch %s", payload.BatchID)
		return
	}

	if m.batch.Complete() {
		if m.batch.Succeeded() {
			log.Printf("✅ Batch %s complete", payload.BatchID)
		} else {
			log.Printf("⚠️  Batch %s complete with failures", payload.BatchID)
		}
	} else {
		log.Printf("⚠️  Batch %s closed with files outstanding", payload.BatchID)
	}
	m.batch = nil
}

// ===== CHAT =====

func (m *Machine) handleSendText(state State, ev sendTextIntent) {
	if !state.active() {
		log.Printf("⚠️  Cannot send a message while %s", state)
		return
	}

	msg := protocol.TextMessage{
		MessageID: newMessageID(),
		Body:      ev.body,
		SentAt:    time.Now().UnixMilli(),
		ReplyTo:   ev.replyTo,
	}
	m.sendPayload(protocol.KindTextMessage, msg)
}

func (m *Machine) handleText(env *protocol.Envelope) {
	msg, err := protocol.DecodePayload[protocol.TextMessage](env)
	if err != nil {
		log.Printf("⚠️  Dropping malformed text message: %v", err)
		return
	}

	if m.cfg.OnText != nil {
		m.cfg.OnText(env.SenderID, *msg)
	}
	m.sendPayload(protocol.KindMessageReceipt, protocol.MessageReceipt{
		MessageID: msg.MessageID,
		Status:    protocol.ReceiptDelivered,
	})
}

func (m *Machine) handleMedia(env *protocol.Envelope) {
	msg, err := protocol.DecodePayload[protocol.MediaMessage](env)
	if err != nil {
		log.Printf("⚠️  Dropping malformed media message: %v", err)
		return
	}

	if m.cfg.OnMedia != nil {
		m.cfg.OnMedia(env.SenderID, *msg)
	}
	m.sendPayload(protocol.KindMessageReceipt, protocol.MessageReceipt{
		MessageID: msg.MessageID,
		Status:    protocol.ReceiptDelivered,
	})
}

// ===== CALLS =====

func (m *Machine) handleCallRequest(state State) {
	if state != StateConnected {
		log.Printf("⚠️  Cannot start a call while %s", state)
		return
	}
	if m.sendKind(protocol.KindCallRequest) {
		m.callRequested = true
	}
}

func (m *Machine) handleAcceptCall(state State) {
	if state != StateConnected || !m.callPending {
		log.Printf("⚠️  No pending call to accept")
		return
	}
	m.callPending = false
	if m.sendKind(protocol.KindCallAccept) {
		m.setState(StateVoiceCall, "")
	}
}

func (m *Machine) handleEndCall(state State) {
	if state != StateVoiceCall {
		return
	}
	m.sendKind(protocol.KindCallEnd)
	m.setState(StateConnected, "")
}
