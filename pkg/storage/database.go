// Package storage persists trust pins, transfer history, chat messages and
// contacts in a local SQLite database. Message bodies are encrypted at rest.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound = errors.New("not found")
)

// Store is the local persistence layer
type Store struct {
	db  *sql.DB
	key []byte // at-rest encryption key for message content
}

// Open opens (creating if needed) the database at path. key encrypts message
// bodies at rest and must be vault.KeySize bytes.
func Open(path string, key []byte) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	store := &Store{db: db, key: key}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates database tables
func (s *Store) initSchema() error {
	schema := `
	-- Pinned certificate fingerprints, one per peer
	CREATE TABLE IF NOT EXISTS pins (
		peer_id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		pinned_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	-- Terminal transfer outcomes
	CREATE TABLE IF NOT EXISTS transfers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_name TEXT NOT NULL,
		size INTEGER NOT NULL,
		direction TEXT NOT NULL,
		success INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	-- Chat history; content is encrypted at rest
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT UNIQUE NOT NULL,
		peer_id TEXT NOT NULL,
		content BLOB NOT NULL,
		is_outgoing INTEGER NOT NULL,
		sent_at INTEGER NOT NULL
	);

	-- Known peers
	CREATE TABLE IF NOT EXISTS contacts (
		peer_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		last_address TEXT NOT NULL DEFAULT '',
		last_seen INTEGER NOT NULL DEFAULT 0
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_messages_peer ON messages(peer_id, sent_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transfers_finished ON transfers(finished_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
