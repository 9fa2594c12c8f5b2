package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Pinned returns the stored fingerprint for peerID, satisfying trust.PinStore
func (s *Store) Pinned(peerID string) (string, bool, error) {
	var fingerprint string
	err := s.db.QueryRow(`SELECT fingerprint FROM pins WHERE peer_id = ?`, peerID).Scan(&fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load pin: %v", err)
	}
	return fingerprint, true, nil
}

// Pin stores the fingerprint for peerID, replacing any existing pin
func (s *Store) Pin(peerID, fingerprint string) error {
	_, err := s.db.Exec(`
		INSERT INTO pins (peer_id, fingerprint) VALUES (?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			pinned_at = strftime('%s', 'now')
	`, peerID, strings.ToLower(fingerprint))
	if err != nil {
		return fmt.Errorf("failed to save pin: %v", err)
	}
	return nil
}

// ForgetPin removes the pin for peerID. This is the only recovery path after
// a fingerprint mismatch, so it must be an explicit user action.
func (s *Store) ForgetPin(peerID string) error {
	result, err := s.db.Exec(`DELETE FROM pins WHERE peer_id = ?`, peerID)
	if err != nil {
		return fmt.Errorf("failed to delete pin: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
