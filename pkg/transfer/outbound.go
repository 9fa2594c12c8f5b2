package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/lanlink/protocol/pkg/protocol"
)

// Outbound streams one offered file to the remote peer. Exactly one outbound
// transfer may be in flight per session; the session layer enforces that and
// feeds accept/reject answers in.
//
// Stream runs on its own goroutine while the session loop may concurrently
// read progress or record a rejection, so the mutable fields are guarded.
type Outbound struct {
	meta     *protocol.TransferMetadata
	src      io.Reader
	send     SendFunc
	senderID string

	chunkSize int
	progress  ProgressFunc

	mu       sync.Mutex
	accepted bool
	finished bool
	sent     int64
	fraction float64
}

// NewOutbound prepares an outbound transfer. src must yield exactly the bytes
// described by meta.
func NewOutbound(meta *protocol.TransferMetadata, src io.Reader, send SendFunc, senderID string, progress ProgressFunc) *Outbound {
	return &Outbound{
		meta:      meta,
		src:       src,
		send:      send,
		senderID:  senderID,
		chunkSize: DefaultChunkSize,
		progress:  progress,
	}
}

// Offer announces the file to the remote peer. No bytes move until the peer
// accepts.
func (o *Outbound) Offer() error {
	env, err := protocol.NewPayloadEnvelope(protocol.KindFileOffer, o.meta, o.senderID)
	if err != nil {
		return err
	}
	return o.send(env)
}

// Stream runs after the peer accepted: emits ordered fileChunk envelopes and
// closes with fileComplete carrying the declared digest. Chunk emission is
// sequential in this call so wire order matches file order. Cancelling ctx
// aborts mid-stream.
func (o *Outbound) Stream(ctx context.Context) error {
	o.mu.Lock()
	if o.finished {
		o.mu.Unlock()
		return ErrAlreadyDone
	}
	o.accepted = true
	o.mu.Unlock()

	buf := make([]byte, o.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := o.src.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			env := protocol.NewEnvelope(protocol.KindFileChunk, chunk, o.senderID)
			if serr := o.send(env); serr != nil {
				return fmt.Errorf("failed to send chunk: %w", serr)
			}

			o.mu.Lock()
			o.sent += int64(n)
			o.fraction = clampFraction(o.sent, o.meta.Size, o.fraction)
			fraction := o.fraction
			o.mu.Unlock()
			if o.progress != nil {
				o.progress(fraction)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}
	}

	complete, err := protocol.NewPayloadEnvelope(protocol.KindFileComplete, protocol.FileComplete{Hash: o.meta.Digest}, o.senderID)
	if err != nil {
		return err
	}
	if err := o.send(complete); err != nil {
		return err
	}

	o.mu.Lock()
	o.finished = true
	o.mu.Unlock()
	return nil
}

// Rejected records the peer's refusal and returns the failed result
func (o *Outbound) Rejected(reason string) Result {
	o.mu.Lock()
	o.finished = true
	o.mu.Unlock()
	if reason == "" {
		reason = "rejected by peer"
	}
	return Result{
		TransferID: o.meta.TransferID,
		FileName:   o.meta.FileName,
		Size:       o.meta.Size,
		Direction:  DirectionSend,
		Success:    false,
		Reason:     reason,
	}
}

// Completed returns the successful result after Stream finished
func (o *Outbound) Completed() Result {
	return Result{
		TransferID: o.meta.TransferID,
		FileName:   o.meta.FileName,
		Size:       o.meta.Size,
		Direction:  DirectionSend,
		Success:    true,
	}
}

// Progress returns the emitted fraction in [0,1]
func (o *Outbound) Progress() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fraction
}

// Metadata returns the offered transfer metadata
func (o *Outbound) Metadata() *protocol.TransferMetadata {
	return o.meta
}
