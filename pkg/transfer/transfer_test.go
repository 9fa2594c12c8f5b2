package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/lanlink/protocol/pkg/protocol"
)

// pipeEnvelopes wires an Outbound directly into chunk/complete handling on an
// Inbound, optionally corrupting one chunk on the way.
func runTransfer(t *testing.T, data []byte, corruptChunk int) Result {
	t.Helper()

	digest, err := ComputeDigest(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ComputeDigest() error = %v", err)
	}

	meta := &protocol.TransferMetadata{
		TransferID: "t-1",
		FileName:   "dataset.bin",
		Size:       int64(len(data)),
		Digest:     digest,
	}

	var received bytes.Buffer
	inbound := NewInbound(meta, &received, nil)

	var result Result
	chunkIndex := 0
	done := false

	send := func(env *protocol.Envelope) error {
		switch env.Type {
		case protocol.KindFileChunk:
			chunk := env.Payload
			if chunkIndex == corruptChunk {
				chunk = bytes.Clone(chunk)
				chunk[0] ^= 0xFF
			}
			chunkIndex++
			return inbound.HandleChunk(chunk)
		case protocol.KindFileComplete:
			payload, err := protocol.DecodePayload[protocol.FileComplete](env)
			if err != nil {
				return err
			}
			result = inbound.Complete(payload.Hash)
			done = true
			return nil
		default:
			t.Fatalf("unexpected envelope kind %q", env.Type)
			return nil
		}
	}

	outbound := NewOutbound(meta, bytes.NewReader(data), send, "sender", nil)
	if err := outbound.Stream(context.Background()); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if !done {
		t.Fatal("transfer never completed")
	}

	return result
}

func TestTransferIntegrity(t *testing.T) {
	// ~10 MB in ~320 chunks of 32 KB, delivered in order.
	data := make([]byte, 10*1024*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("failed to generate test data: %v", err)
	}

	result := runTransfer(t, data, -1)
	if !result.Success {
		t.Fatalf("transfer failed: %s", result.Reason)
	}
	if result.Direction != DirectionReceive {
		t.Errorf("Direction = %q, want %q", result.Direction, DirectionReceive)
	}
}

func TestTransferCorruptedChunk(t *testing.T) {
	data := make([]byte, 2*1024*1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("failed to generate test data: %v", err)
	}

	// Corrupting a mid-stream chunk must produce a digest mismatch.
	result := runTransfer(t, data, 30)
	if result.Success {
		t.Fatal("transfer succeeded despite corrupted chunk")
	}
	if result.Reason == "" {
		t.Error("failed result carries no human-readable reason")
	}
}

func TestInboundPrematureEnd(t *testing.T) {
	meta := &protocol.TransferMetadata{
		TransferID: "t-1",
		FileName:   "short.bin",
		Size:       1000,
		Digest:     "irrelevant",
	}

	var sink bytes.Buffer
	inbound := NewInbound(meta, &sink, nil)
	if err := inbound.HandleChunk(make([]byte, 400)); err != nil {
		t.Fatalf("HandleChunk() error = %v", err)
	}

	result := inbound.Complete("irrelevant")
	if result.Success {
		t.Fatal("Complete() succeeded with 400 of 1000 bytes")
	}
}

func TestProgressMonotone(t *testing.T) {
	data := make([]byte, 300*1024)
	rand.Read(data)

	digest, _ := ComputeDigest(bytes.NewReader(data))
	meta := &protocol.TransferMetadata{TransferID: "t-1", FileName: "f", Size: int64(len(data)), Digest: digest}

	var fractions []float64
	var sink bytes.Buffer
	inbound := NewInbound(meta, &sink, func(f float64) {
		fractions = append(fractions, f)
	})

	for offset := 0; offset < len(data); offset += DefaultChunkSize {
		end := offset + DefaultChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := inbound.HandleChunk(data[offset:end]); err != nil {
			t.Fatalf("HandleChunk() error = %v", err)
		}
	}

	last := -1.0
	for i, f := range fractions {
		if f < last {
			t.Fatalf("progress decreased at update %d: %f -> %f", i, last, f)
		}
		if f < 0 || f > 1 {
			t.Fatalf("progress %f outside [0,1]", f)
		}
		last = f
	}
	if last != 1.0 {
		t.Errorf("final progress = %f, want 1.0", last)
	}
}

func TestOutboundRejected(t *testing.T) {
	meta := &protocol.TransferMetadata{TransferID: "t-1", FileName: "f", Size: 10}
	outbound := NewOutbound(meta, bytes.NewReader(make([]byte, 10)), nil, "sender", nil)

	result := outbound.Rejected("no space left")
	if result.Success {
		t.Error("rejected transfer reported success")
	}
	if result.Reason != "no space left" {
		t.Errorf("Reason = %q, want %q", result.Reason, "no space left")
	}

	// A rejected transfer must not stream afterward.
	if err := outbound.Stream(context.Background()); err == nil {
		t.Error("Stream() after rejection succeeded")
	}
}

func TestOutboundCancelled(t *testing.T) {
	meta := &protocol.TransferMetadata{TransferID: "t-1", FileName: "f", Size: 1 << 20}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outbound := NewOutbound(meta, bytes.NewReader(make([]byte, 1<<20)), func(*protocol.Envelope) error {
		return nil
	}, "sender", nil)

	if err := outbound.Stream(ctx); err == nil {
		t.Error("Stream() with cancelled context succeeded")
	}
}

func TestBatchTracking(t *testing.T) {
	batch := NewBatch(&protocol.BatchMetadata{BatchID: "b-1", FileCount: 3})

	if batch.Complete() {
		t.Fatal("empty batch reported complete")
	}

	if err := batch.FileFinished("f-1", true); err != nil {
		t.Fatalf("FileFinished() error = %v", err)
	}
	if err := batch.FileFinished("f-2", false); err != nil {
		t.Fatalf("FileFinished() error = %v", err)
	}

	// Two of three files finished: batch must not signal completion yet.
	if batch.Complete() {
		t.Fatal("batch reported complete with a file outstanding")
	}

	if err := batch.FileFinished("f-3", true); err != nil {
		t.Fatalf("FileFinished() error = %v", err)
	}
	if !batch.Complete() {
		t.Fatal("batch not complete after all files finished")
	}

	// One rejected file means complete but not succeeded.
	if batch.Succeeded() {
		t.Error("batch with a rejected file reported success")
	}
}

func TestBatchDuplicateOutcome(t *testing.T) {
	batch := NewBatch(&protocol.BatchMetadata{BatchID: "b-1", FileCount: 2})

	if err := batch.FileFinished("f-1", true); err != nil {
		t.Fatalf("FileFinished() error = %v", err)
	}
	if err := batch.FileFinished("f-1", false); err == nil {
		t.Error("duplicate FileFinished() succeeded")
	}
}

// Exercises the abort path the session layer takes on disconnect: the run
// loop records a rejection while the Stream goroutine is mid-flight. Run
// under the race detector this must stay clean.
func TestOutboundAbortDuringStream(t *testing.T) {
	data := make([]byte, 8*DefaultChunkSize)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("failed to generate test data: %v", err)
	}

	digest, err := ComputeDigest(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ComputeDigest() error = %v", err)
	}
	meta := &protocol.TransferMetadata{
		TransferID: "t-abort",
		FileName:   "dataset.bin",
		Size:       int64(len(data)),
		Digest:     digest,
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstChunk := make(chan struct{})
	sent := 0
	send := func(env *protocol.Envelope) error {
		if env.Type == protocol.KindFileChunk {
			sent++
			if sent == 1 {
				close(firstChunk)
			}
		}
		return nil
	}

	outbound := NewOutbound(meta, bytes.NewReader(data), send, "sender", nil)

	streamErr := make(chan error, 1)
	go func() {
		streamErr <- outbound.Stream(ctx)
	}()

	<-firstChunk
	cancel()
	result := outbound.Rejected("session torn down")
	_ = outbound.Progress()

	if err := <-streamErr; err == nil && sent < 8 {
		t.Fatal("Stream() returned nil after cancellation without finishing")
	}
	if result.Success || result.Reason != "session torn down" {
		t.Fatalf("unexpected abort result: %+v", result)
	}
}
