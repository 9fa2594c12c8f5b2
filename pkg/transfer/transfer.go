// Package transfer implements the chunked file transfer engine.
//
// A transfer moves one file as ordered byte chunks over an established
// channel: fileOffer -> fileAccept/fileReject -> fileChunk stream ->
// fileComplete. The receiver hashes chunks incrementally as they arrive and
// confirms integrity against the sender-declared digest, so memory use is
// bounded by chunk size rather than file size. Multi-file batches wrap a
// sequence of single-file transfers between batchStart and batchComplete.
package transfer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/lanlink/protocol/pkg/crypto"
	"github.com/lanlink/protocol/pkg/protocol"
)

// DefaultChunkSize is the size of one fileChunk payload
const DefaultChunkSize = 32 * 1024

var (
	ErrDigestMismatch = errors.New("digest mismatch")
	ErrPrematureEnd   = errors.New("premature stream end")
	ErrNotAccepted    = errors.New("transfer not accepted")
	ErrAlreadyDone    = errors.New("transfer already finished")
)

// Direction marks which way the bytes flowed
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Result is the terminal outcome of one file transfer
type Result struct {
	TransferID string
	FileName   string
	Size       int64
	Direction  Direction
	Success    bool
	Reason     string
}

// SendFunc emits one envelope toward the remote peer
type SendFunc func(*protocol.Envelope) error

// ProgressFunc observes transfer progress as a fraction in [0,1]
type ProgressFunc func(fraction float64)

// OfferFile builds transfer metadata for a local file, computing its digest
// in one streaming pass
func OfferFile(path string) (*protocol.TransferMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	digest, err := ComputeDigest(f)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return &protocol.TransferMetadata{
		TransferID: uuid.NewString(),
		FileName:   info.Name(),
		Size:       info.Size(),
		Digest:     digest,
	}, nil
}

// ComputeDigest hashes an entire stream and returns the lowercase-hex digest
func ComputeDigest(r io.Reader) (string, error) {
	hasher := crypto.NewStreamHasher()
	buf := make([]byte, DefaultChunkSize)

	reader := bufio.NewReader(r)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, werr := hasher.Write(buf[:n]); werr != nil {
				return "", werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	return hasher.Finalize(), nil
}

// clampFraction keeps progress monotone in [0,1]
func clampFraction(confirmed, declared int64, previous float64) float64 {
	if declared <= 0 {
		return 1
	}
	fraction := float64(confirmed) / float64(declared)
	if fraction > 1 {
		fraction = 1
	}
	if fraction < previous {
		return previous
	}
	return fraction
}
