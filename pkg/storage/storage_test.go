package storage

import (
	"bytes"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/lanlink/protocol/pkg/session"
	"github.com/lanlink/protocol/pkg/vault"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	key := make([]byte, vault.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating key: %v", err)
	}

	store, err := Open(filepath.Join(t.TempDir(), "lanlink.db"), key)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPinRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if _, found, err := store.Pinned("peer-1"); err != nil || found {
		t.Fatalf("fresh store: found=%v err=%v", found, err)
	}

	if err := store.Pin("peer-1", "ABCDEF0123"); err != nil {
		t.Fatalf("pinning: %v", err)
	}

	fp, found, err := store.Pinned("peer-1")
	if err != nil || !found {
		t.Fatalf("after pin: found=%v err=%v", found, err)
	}
	if fp != "abcdef0123" {
		t.Fatalf("stored fingerprint = %q, want lowercase", fp)
	}
}

func TestForgetPin(t *testing.T) {
	store := openTestStore(t)

	if err := store.ForgetPin("nobody"); err != ErrNotFound {
		t.Fatalf("forgetting unknown pin: %v, want ErrNotFound", err)
	}

	if err := store.Pin("peer-1", "aa11"); err != nil {
		t.Fatalf("pinning: %v", err)
	}
	if err := store.ForgetPin("peer-1"); err != nil {
		t.Fatalf("forgetting: %v", err)
	}
	if _, found, _ := store.Pinned("peer-1"); found {
		t.Fatal("pin survived ForgetPin")
	}
}

func TestTransferHistoryOrder(t *testing.T) {
	store := openTestStore(t)

	records := []session.TransferRecord{
		{FileName: "first.bin", Size: 100, Direction: "send", Success: true},
		{FileName: "second.bin", Size: 200, Direction: "receive", Success: false},
		{FileName: "third.bin", Size: 300, Direction: "send", Success: true},
	}
	for _, rec := range records {
		if err := store.SaveTransfer(rec); err != nil {
			t.Fatalf("saving %s: %v", rec.FileName, err)
		}
	}

	entries, err := store.ListTransfers(10)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].FileName != "third.bin" {
		t.Fatalf("most recent first: got %s", entries[0].FileName)
	}
	if entries[1].FileName != "second.bin" || entries[1].Success {
		t.Fatalf("unexpected middle entry: %+v", entries[1])
	}

	limited, err := store.ListTransfers(2)
	if err != nil {
		t.Fatalf("listing limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit ignored: got %d entries", len(limited))
	}
}

func TestMessagesEncryptedAtRest(t *testing.T) {
	store := openTestStore(t)

	msg := &StoredMessage{
		MessageID: "msg-1",
		PeerID:    "peer-1",
		Body:      "meet at the usual place",
		Outgoing:  true,
		SentAt:    1700000000000,
	}
	if err := store.SaveMessage(msg); err != nil {
		t.Fatalf("saving: %v", err)
	}

	// The raw column must hold a sealed container, not the plaintext.
	var raw []byte
	if err := store.db.QueryRow(`SELECT content FROM messages WHERE message_id = ?`, "msg-1").Scan(&raw); err != nil {
		t.Fatalf("reading raw content: %v", err)
	}
	if !vault.IsEncrypted(raw) {
		t.Fatal("message stored without encryption")
	}
	if bytes.Contains(raw, []byte("usual place")) {
		t.Fatal("plaintext leaked into the stored container")
	}

	got, err := store.ListMessages("peer-1", 10)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(got) != 1 || got[0].Body != msg.Body {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestMigrateMessagesSealsPlaintext(t *testing.T) {
	store := openTestStore(t)

	// Simulate rows written by a version that stored plaintext.
	_, err := store.db.Exec(`
		INSERT INTO messages (message_id, peer_id, content, is_outgoing, sent_at)
		VALUES ('legacy-1', 'peer-1', ?, 0, 1700000000000)
	`, []byte("legacy plaintext body"))
	if err != nil {
		t.Fatalf("seeding legacy row: %v", err)
	}
	if err := store.SaveMessage(&StoredMessage{
		MessageID: "sealed-1", PeerID: "peer-1", Body: "already sealed", SentAt: 1700000000001,
	}); err != nil {
		t.Fatalf("saving sealed message: %v", err)
	}

	upgraded, err := store.MigrateMessages()
	if err != nil {
		t.Fatalf("migrating: %v", err)
	}
	if upgraded != 1 {
		t.Fatalf("upgraded %d rows, want 1", upgraded)
	}

	// Second run is a no-op.
	upgraded, err = store.MigrateMessages()
	if err != nil || upgraded != 0 {
		t.Fatalf("second migration: upgraded=%d err=%v", upgraded, err)
	}

	msgs, err := store.ListMessages("peer-1", 10)
	if err != nil {
		t.Fatalf("listing after migration: %v", err)
	}
	bodies := map[string]string{}
	for _, m := range msgs {
		bodies[m.MessageID] = m.Body
	}
	if bodies["legacy-1"] != "legacy plaintext body" || bodies["sealed-1"] != "already sealed" {
		t.Fatalf("unexpected bodies after migration: %v", bodies)
	}
}

func TestContacts(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.GetContact("peer-1"); err != ErrNotFound {
		t.Fatalf("unknown contact: %v, want ErrNotFound", err)
	}

	if err := store.SaveContact(&Contact{
		PeerID: "peer-1", DisplayName: "Alice", LastAddress: "192.0.2.7:4460", LastSeen: 100,
	}); err != nil {
		t.Fatalf("saving: %v", err)
	}
	if err := store.SaveContact(&Contact{
		PeerID: "peer-2", DisplayName: "Bob", LastAddress: "192.0.2.8:4460", LastSeen: 200,
	}); err != nil {
		t.Fatalf("saving: %v", err)
	}

	// Upsert refreshes fields.
	if err := store.SaveContact(&Contact{
		PeerID: "peer-1", DisplayName: "Alice M", LastAddress: "192.0.2.17:4460", LastSeen: 300,
	}); err != nil {
		t.Fatalf("updating: %v", err)
	}

	c, err := store.GetContact("peer-1")
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if c.DisplayName != "Alice M" || c.LastAddress != "192.0.2.17:4460" {
		t.Fatalf("upsert did not apply: %+v", c)
	}

	all, err := store.ListContacts()
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(all) != 2 || all[0].PeerID != "peer-1" {
		t.Fatalf("unexpected contact order: %+v", all)
	}
}

func TestContactDefaultColumns(t *testing.T) {
	store := openTestStore(t)

	// Rows written without address/last-seen take non-null defaults and must
	// still scan cleanly.
	_, err := store.db.Exec(`INSERT INTO contacts (peer_id, display_name) VALUES ('peer-min', 'Minimal')`)
	if err != nil {
		t.Fatalf("seeding minimal contact: %v", err)
	}

	c, err := store.GetContact("peer-min")
	if err != nil {
		t.Fatalf("loading minimal contact: %v", err)
	}
	if c.LastAddress != "" || c.LastSeen != 0 {
		t.Fatalf("unexpected defaults: %+v", c)
	}

	all, err := store.ListContacts()
	if err != nil {
		t.Fatalf("listing with minimal contact: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d contacts, want 1", len(all))
	}
}
