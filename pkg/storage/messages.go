package storage

import (
	"fmt"

	"github.com/lanlink/protocol/pkg/vault"
)

// StoredMessage is one chat message in history. Body is plaintext at this
// API boundary; it is encrypted before touching disk.
type StoredMessage struct {
	MessageID string `json:"messageId"`
	PeerID    string `json:"peerId"`
	Body      string `json:"body"`
	Outgoing  bool   `json:"outgoing"`
	SentAt    int64  `json:"sentAt"`
}

// SaveMessage encrypts and stores one chat message
func (s *Store) SaveMessage(msg *StoredMessage) error {
	sealed, err := vault.Encrypt([]byte(msg.Body), s.key)
	if err != nil {
		return fmt.Errorf("failed to seal message: %v", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO messages (message_id, peer_id, content, is_outgoing, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.MessageID, msg.PeerID, sealed, msg.Outgoing, msg.SentAt)
	if err != nil {
		return fmt.Errorf("failed to save message: %v", err)
	}
	return nil
}

// ListMessages returns up to limit messages with peerID, most recent first
func (s *Store) ListMessages(peerID string, limit int) ([]*StoredMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT message_id, peer_id, content, is_outgoing, sent_at
		FROM messages
		WHERE peer_id = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?
	`, peerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %v", err)
	}
	defer rows.Close()

	var messages []*StoredMessage
	for rows.Next() {
		msg := &StoredMessage{}
		var sealed []byte
		if err := rows.Scan(&msg.MessageID, &msg.PeerID, &sealed, &msg.Outgoing, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %v", err)
		}

		body, err := vault.Decrypt(sealed, s.key)
		if err != nil {
			return nil, fmt.Errorf("failed to open message %s: %v", msg.MessageID, err)
		}
		msg.Body = string(body)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MigrateMessages re-seals any plaintext message bodies left by older
// versions that stored chat history unencrypted. Safe to run repeatedly.
func (s *Store) MigrateMessages() (int, error) {
	rows, err := s.db.Query(`SELECT id, content FROM messages`)
	if err != nil {
		return 0, fmt.Errorf("failed to scan messages: %v", err)
	}

	type pending struct {
		id      int64
		content []byte
	}
	var upgrades []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content); err != nil {
			rows.Close()
			return 0, err
		}
		if !vault.IsEncrypted(p.content) {
			upgrades = append(upgrades, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, p := range upgrades {
		sealed, err := vault.Encrypt(p.content, s.key)
		if err != nil {
			return 0, fmt.Errorf("failed to seal message %d: %v", p.id, err)
		}
		if _, err := s.db.Exec(`UPDATE messages SET content = ? WHERE id = ?`, sealed, p.id); err != nil {
			return 0, fmt.Errorf("failed to upgrade message %d: %v", p.id, err)
		}
	}
	return len(upgrades), nil
}
