package transfer

import (
	"fmt"
	"sync"

	"github.com/lanlink/protocol/pkg/protocol"
)

// Batch tracks per-file completion of a multi-file transfer. Each file inside
// the batch runs the ordinary single-file sequence; the batch itself is only
// complete once every declared file has completed or been individually
// rejected.
type Batch struct {
	mu   sync.Mutex
	meta *protocol.BatchMetadata

	outcomes map[string]bool // transferID -> success
}

// NewBatch starts tracking a batch announced by batchStart
func NewBatch(meta *protocol.BatchMetadata) *Batch {
	return &Batch{
		meta:     meta,
		outcomes: make(map[string]bool),
	}
}

// ID returns the batch identifier
func (b *Batch) ID() string {
	return b.meta.BatchID
}

// FileFinished records the terminal outcome of one file in the batch
func (b *Batch) FileFinished(transferID string, success bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, seen := b.outcomes[transferID]; seen {
		return fmt.Errorf("duplicate outcome for transfer %s", transferID)
	}
	if len(b.outcomes) >= b.meta.FileCount {
		return fmt.Errorf("batch %s already has %d outcomes", b.meta.BatchID, b.meta.FileCount)
	}

	b.outcomes[transferID] = success
	return nil
}

// Complete reports whether every declared file has a terminal outcome
func (b *Batch) Complete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.outcomes) == b.meta.FileCount
}

// Succeeded reports whether the batch is complete with every file successful
func (b *Batch) Succeeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.outcomes) != b.meta.FileCount {
		return false
	}
	for _, ok := range b.outcomes {
		if !ok {
			return false
		}
	}
	return true
}
