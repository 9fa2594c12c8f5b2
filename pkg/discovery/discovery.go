// Package discovery announces this node on the local network over UDP
// broadcast and collects announcements from other nodes, surfacing them as
// connection candidates.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// DefaultPort is the UDP port announcements are broadcast on
const DefaultPort = 4459

// DefaultInterval paces outgoing announcements
const DefaultInterval = 2 * time.Second

// staleAfter is how long a silent peer stays listed
const staleAfter = 10 * time.Second

// Announcement is the JSON datagram broadcast on the discovery port
type Announcement struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Port        int    `json:"port"`
}

// Peer is a reachable node seen on the local network
type Peer struct {
	ID          string
	DisplayName string
	Address     string
	LastSeen    time.Time
}

// PeerFunc observes each announcement from a remote node, repeats included
type PeerFunc func(Peer)

// Service broadcasts the local announcement and listens for remote ones
type Service struct {
	local    Announcement
	port     int
	interval time.Duration
	onPeer   PeerFunc

	mu    sync.Mutex
	peers map[string]Peer
}

// Option tunes a Service
type Option func(*Service)

// WithPort overrides the discovery UDP port
func WithPort(port int) Option {
	return func(s *Service) { s.port = port }
}

// WithInterval overrides the announcement pacing
func WithInterval(interval time.Duration) Option {
	return func(s *Service) { s.interval = interval }
}

// New creates a discovery service announcing local. onPeer may be nil.
func New(local Announcement, onPeer PeerFunc, opts ...Option) *Service {
	s := &Service{
		local:    local,
		port:     DefaultPort,
		interval: DefaultInterval,
		onPeer:   onPeer,
		peers:    make(map[string]Peer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run broadcasts and listens until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	listenAddr := &net.UDPAddr{Port: s.port}
	conn, err := net.ListenUDP("udp4", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to bind discovery port %d: %w", s.port, err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go s.broadcast(ctx)

	log.Printf("📡 Discovery listening on udp/%d", s.port)
	return s.listen(ctx, conn)
}

func (s *Service) broadcast(ctx context.Context) {
	addr := &net.UDPAddr{IP: net.IPv4bcast, Port: s.port}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		log.Printf("⚠️  Discovery broadcast unavailable: %v", err)
		return
	}
	defer conn.Close()

	payload, err := json.Marshal(s.local)
	if err != nil {
		log.Printf("⚠️  Failed to encode announcement: %v", err)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := conn.Write(payload); err != nil {
			log.Printf("⚠️  Announcement send failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) listen(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, 1024)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("discovery read failed: %w", err)
		}
		s.handleDatagram(buf[:n], remote)
	}
}

// handleDatagram parses one announcement. Malformed datagrams and our own
// echoed broadcasts are dropped.
func (s *Service) handleDatagram(data []byte, remote *net.UDPAddr) {
	var ann Announcement
	if err := json.Unmarshal(data, &ann); err != nil {
		return
	}
	if ann.ID == "" || ann.ID == s.local.ID {
		return
	}

	peer := Peer{
		ID:          ann.ID,
		DisplayName: ann.DisplayName,
		Address:     net.JoinHostPort(remote.IP.String(), fmt.Sprintf("%d", ann.Port)),
		LastSeen:    time.Now(),
	}

	s.mu.Lock()
	_, known := s.peers[peer.ID]
	s.peers[peer.ID] = peer
	s.mu.Unlock()

	if !known {
		log.Printf("📡 Discovered peer %s (%s) at %s", peer.DisplayName, peer.ID, peer.Address)
	}
	if s.onPeer != nil {
		s.onPeer(peer)
	}
}

// Peers returns the peers seen recently; stale entries are pruned
func (s *Service) Peers() []Peer {
	cutoff := time.Now().Add(-staleAfter)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Peer, 0, len(s.peers))
	for id, peer := range s.peers {
		if peer.LastSeen.Before(cutoff) {
			delete(s.peers, id)
			continue
		}
		out = append(out, peer)
	}
	return out
}
