package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Contact is a peer this node has seen before
type Contact struct {
	PeerID      string `json:"peerId"`
	DisplayName string `json:"displayName"`
	LastAddress string `json:"lastAddress,omitempty"`
	LastSeen    int64  `json:"lastSeen,omitempty"`
}

// SaveContact inserts or refreshes a contact
func (s *Store) SaveContact(c *Contact) error {
	_, err := s.db.Exec(`
		INSERT INTO contacts (peer_id, display_name, last_address, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			display_name = excluded.display_name,
			last_address = excluded.last_address,
			last_seen = excluded.last_seen
	`, c.PeerID, c.DisplayName, c.LastAddress, c.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to save contact: %v", err)
	}
	return nil
}

// GetContact returns the contact with peerID or ErrNotFound
func (s *Store) GetContact(peerID string) (*Contact, error) {
	c := &Contact{}
	err := s.db.QueryRow(`
		SELECT peer_id, display_name, last_address, last_seen
		FROM contacts WHERE peer_id = ?
	`, peerID).Scan(&c.PeerID, &c.DisplayName, &c.LastAddress, &c.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contact: %v", err)
	}
	return c, nil
}

// ListContacts returns all contacts, most recently seen first
func (s *Store) ListContacts() ([]*Contact, error) {
	rows, err := s.db.Query(`
		SELECT peer_id, display_name, last_address, last_seen
		FROM contacts
		ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %v", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		c := &Contact{}
		if err := rows.Scan(&c.PeerID, &c.DisplayName, &c.LastAddress, &c.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %v", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
