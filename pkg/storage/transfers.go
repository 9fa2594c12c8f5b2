package storage

import (
	"fmt"

	"github.com/lanlink/protocol/pkg/session"
)

// TransferEntry is one row of transfer history
type TransferEntry struct {
	ID         int64  `json:"id"`
	FileName   string `json:"fileName"`
	Size       int64  `json:"size"`
	Direction  string `json:"direction"`
	Success    bool   `json:"success"`
	FinishedAt int64  `json:"finishedAt"`
}

// SaveTransfer records a terminal transfer outcome, satisfying
// session.RecordSink
func (s *Store) SaveTransfer(rec session.TransferRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO transfers (file_name, size, direction, success)
		VALUES (?, ?, ?, ?)
	`, rec.FileName, rec.Size, rec.Direction, rec.Success)
	if err != nil {
		return fmt.Errorf("failed to save transfer: %v", err)
	}
	return nil
}

// ListTransfers returns up to limit transfers, most recent first
func (s *Store) ListTransfers(limit int) ([]*TransferEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, file_name, size, direction, success, finished_at
		FROM transfers
		ORDER BY finished_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %v", err)
	}
	defer rows.Close()

	var entries []*TransferEntry
	for rows.Next() {
		entry := &TransferEntry{}
		if err := rows.Scan(&entry.ID, &entry.FileName, &entry.Size,
			&entry.Direction, &entry.Success, &entry.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %v", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
