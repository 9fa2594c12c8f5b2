package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/lanlink/protocol/pkg/api"
	"github.com/lanlink/protocol/pkg/channel"
	"github.com/lanlink/protocol/pkg/crypto"
	"github.com/lanlink/protocol/pkg/discovery"
	"github.com/lanlink/protocol/pkg/protocol"
	"github.com/lanlink/protocol/pkg/session"
	"github.com/lanlink/protocol/pkg/storage"
	"github.com/lanlink/protocol/pkg/vault"
)

const (
	defaultListenPort    = 4460
	defaultDiscoveryPort = 4459
	defaultAPIPort       = 8460
)

var (
	displayName   = flag.String("name", "", "Display name announced to peers (default: hostname)")
	dataDir       = flag.String("data", "./data", "Directory for keys, database and downloads")
	listenPort    = flag.Int("port", defaultListenPort, "TCP port for incoming sessions")
	discoveryPort = flag.Int("discovery-port", defaultDiscoveryPort, "UDP port for peer discovery")
	apiPort       = flag.Int("api-port", defaultAPIPort, "Port for the local control API")
	noDiscovery   = flag.Bool("no-discovery", false, "Disable UDP peer discovery")
	autoAccept    = flag.Bool("auto-accept", false, "Accept inbound file offers without confirmation")
	passphrase    = flag.String("passphrase", "", "Vault passphrase (or LANLINK_PASSPHRASE)")
)

func main() {
	flag.Parse()

	printBanner()

	name := *displayName
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "lanlink-node"
		}
		name = hostname
	}

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// At-rest key, unwrapped by the vault passphrase.
	secret := *passphrase
	if secret == "" {
		secret = os.Getenv("LANLINK_PASSPHRASE")
	}
	keystore := vault.NewKeystore(filepath.Join(*dataDir, "vault.key"), secret)
	key, err := keystore.GetOrCreate()
	if err != nil {
		log.Fatalf("Failed to open vault keystore: %v", err)
	}
	log.Printf("✓ Vault key ready")

	store, err := storage.Open(filepath.Join(*dataDir, "lanlink.db"), key)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	// Re-seal any plaintext chat rows left by older versions.
	if upgraded, err := store.MigrateMessages(); err != nil {
		log.Fatalf("Failed to migrate message store: %v", err)
	} else if upgraded > 0 {
		log.Printf("🔁 Sealed %d legacy plaintext messages", upgraded)
	}

	identity, err := crypto.GenerateIdentity(name)
	if err != nil {
		log.Fatalf("Failed to generate TLS identity: %v", err)
	}

	nodeID := uuid.NewString()
	local := protocol.PeerIdentity{ID: nodeID, DisplayName: name}
	log.Printf("✓ Node %s (%s), fingerprint %s", name, nodeID, identity.Fingerprint())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	machine := session.New(session.Config{
		Identity:        identity,
		Local:           local,
		Pins:            store,
		Records:         store,
		DownloadDir:     filepath.Join(*dataDir, "downloads"),
		AutoAcceptFiles: *autoAccept,
		OnText: func(peerID string, msg protocol.TextMessage) {
			saveMessage(store, peerID, msg.MessageID, msg.Body, false, msg.SentAt)
		},
	})
	go machine.Run(ctx)

	// Incoming sessions.
	listener, err := channel.Listen(fmt.Sprintf(":%d", *listenPort), identity)
	if err != nil {
		log.Fatalf("Failed to listen on port %d: %v", *listenPort, err)
	}
	defer listener.Close()
	go acceptLoop(listener, machine)
	log.Printf("✓ Listening for sessions on tcp/%d", *listenPort)

	// Peer discovery.
	disc := discovery.New(
		discovery.Announcement{ID: nodeID, DisplayName: name, Port: *listenPort},
		func(p discovery.Peer) {
			machine.ReportCandidate(session.PeerCandidate{
				ID:          p.ID,
				DisplayName: p.DisplayName,
				Address:     p.Address,
			})
			saveContact(store, p)
		},
		discovery.WithPort(*discoveryPort),
	)
	if *noDiscovery {
		log.Println("⚠️  Peer discovery disabled")
	} else {
		go func() {
			if err := disc.Run(ctx); err != nil {
				log.Printf("❌ Discovery stopped: %v", err)
			}
		}()
	}

	// Local control API.
	server := api.NewServer(machine, disc, store, &api.Config{
		Port:       *apiPort,
		EnableCORS: true,
	})
	go func() {
		if err := server.Start(ctx); err != nil {
			log.Printf("❌ Control API stopped: %v", err)
		}
	}()

	waitForShutdown(cancel)
}

func acceptLoop(listener *channel.Listener, machine *session.Machine) {
	for {
		ch, err := listener.Accept()
		if err != nil {
			log.Printf("📡 Session listener closed: %v", err)
			return
		}
		log.Printf("📬 Incoming connection from %s", ch.RemoteAddr())
		machine.AttachInbound(ch)
	}
}

func saveMessage(store *storage.Store, peerID, messageID, body string, outgoing bool, sentAt int64) {
	if sentAt == 0 {
		sentAt = time.Now().UnixMilli()
	}
	err := store.SaveMessage(&storage.StoredMessage{
		MessageID: messageID,
		PeerID:    peerID,
		Body:      body,
		Outgoing:  outgoing,
		SentAt:    sentAt,
	})
	if err != nil {
		log.Printf("⚠️  Failed to store message %s: %v", messageID, err)
	}
}

func saveContact(store *storage.Store, p discovery.Peer) {
	err := store.SaveContact(&storage.Contact{
		PeerID:      p.ID,
		DisplayName: p.DisplayName,
		LastAddress: p.Address,
		LastSeen:    p.LastSeen.UnixMilli(),
	})
	if err != nil {
		log.Printf("⚠️  Failed to store contact %s: %v", p.ID, err)
	}
}

func waitForShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("🛑 Received %v, shutting down...", sig)
	cancel()

	// Give the collaborators a moment to close their sockets.
	time.Sleep(200 * time.Millisecond)
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════╗")
	fmt.Println("║         LanLink Node v1.0                 ║")
	fmt.Println("║   Secure LAN sessions and transfers       ║")
	fmt.Println("╚═══════════════════════════════════════════╝")
	fmt.Println()
}
