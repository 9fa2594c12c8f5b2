package transfer

import (
	"fmt"
	"io"

	"github.com/lanlink/protocol/pkg/crypto"
	"github.com/lanlink/protocol/pkg/protocol"
)

// Inbound accumulates one offered file chunk by chunk. Chunks are hashed as
// they arrive; the receiver relies on arrival order, not sequence numbers, so
// the channel must deliver chunks in emission order.
type Inbound struct {
	meta     *protocol.TransferMetadata
	dst      io.Writer
	hasher   *crypto.StreamHasher
	progress ProgressFunc

	received int64
	fraction float64
	finished bool
}

// NewInbound prepares the receiving side of an accepted offer. Received bytes
// are written to dst as they arrive.
func NewInbound(meta *protocol.TransferMetadata, dst io.Writer, progress ProgressFunc) *Inbound {
	return &Inbound{
		meta:     meta,
		dst:      dst,
		hasher:   crypto.NewStreamHasher(),
		progress: progress,
	}
}

// HandleChunk consumes the next ordered chunk
func (in *Inbound) HandleChunk(data []byte) error {
	if in.finished {
		return ErrAlreadyDone
	}

	if _, err := in.hasher.Write(data); err != nil {
		return err
	}
	if _, err := in.dst.Write(data); err != nil {
		return fmt.Errorf("failed to store chunk: %w", err)
	}

	in.received += int64(len(data))
	in.fraction = clampFraction(in.received, in.meta.Size, in.fraction)
	if in.progress != nil {
		in.progress(in.fraction)
	}

	return nil
}

// Complete finalizes the transfer against the digest declared in the
// fileComplete message. A byte count short of the declared size or a digest
// mismatch fails this transfer only; the session stays connected.
func (in *Inbound) Complete(declaredDigest string) Result {
	in.finished = true

	result := Result{
		TransferID: in.meta.TransferID,
		FileName:   in.meta.FileName,
		Size:       in.meta.Size,
		Direction:  DirectionReceive,
	}

	if in.received < in.meta.Size {
		result.Reason = fmt.Sprintf("%v: got %d of %d bytes", ErrPrematureEnd, in.received, in.meta.Size)
		return result
	}

	computed := in.hasher.Finalize()
	if !crypto.FingerprintsEqual(computed, declaredDigest) {
		result.Reason = fmt.Sprintf("%v: computed %s, declared %s", ErrDigestMismatch, computed, declaredDigest)
		return result
	}

	result.Success = true
	return result
}

// Abort discards the partially received file; partial transfers are never
// resumed
func (in *Inbound) Abort(reason string) Result {
	in.finished = true
	return Result{
		TransferID: in.meta.TransferID,
		FileName:   in.meta.FileName,
		Size:       in.meta.Size,
		Direction:  DirectionReceive,
		Success:    false,
		Reason:     reason,
	}
}

// Progress returns the confirmed fraction in [0,1]
func (in *Inbound) Progress() float64 {
	return in.fraction
}

// Metadata returns the accepted transfer metadata
func (in *Inbound) Metadata() *protocol.TransferMetadata {
	return in.meta
}
