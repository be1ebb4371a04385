// Package discovery lets clients find running remotedesk servers on
// the local network via periodic UDP broadcasts.
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

const (
	// DefaultPort is the default UDP port for discovery broadcasts
	DefaultPort = 50051
	// BroadcastInterval is how often a server announces itself
	BroadcastInterval = 5 * time.Second
	// StaleTimeout is how long before a server is considered gone
	StaleTimeout = 30 * time.Second
	// CleanupInterval is how often to check for stale servers
	CleanupInterval = 10 * time.Second
)

// Callback receives server lifecycle notifications
type Callback interface {
	OnServerFound(server *ServerAnnounce)
	OnServerLost(deviceID string)
}

// Service broadcasts this server's presence and/or listens for other
// servers. A serving daemon runs it with announce enabled; the
// discover CLI command runs it listen-only with a nil self.
type Service struct {
	port     int
	self     *ServerAnnounce // nil for listen-only mode
	callback Callback

	conn      *net.UDPConn
	broadcast *net.UDPAddr

	// Track last-seen times for stale detection
	lastSeen map[string]time.Time
	mu       sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a discovery service. self may be nil when only
// listening for servers.
func NewService(port int, self *ServerAnnounce, callback Callback) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		port:     port,
		self:     self,
		callback: callback,
		lastSeen: make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds the UDP socket and starts the background loops.
func (s *Service) Start() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: s.port})
	if err != nil {
		return fmt.Errorf("failed to bind UDP port %d: %w", s.port, err)
	}
	s.conn = conn
	s.broadcast = &net.UDPAddr{IP: net.IPv4bcast, Port: s.port}

	s.wg.Add(2)
	go s.listenLoop()
	go s.cleanupLoop()
	if s.self != nil {
		s.wg.Add(1)
		go s.announceLoop()
	}

	log.Printf("[INFO] discovery: started on UDP port %d (announce=%v)", s.port, s.self != nil)
	return nil
}

// Stop broadcasts a leave (when announcing) and shuts everything down.
func (s *Service) Stop() {
	if s.self != nil {
		s.send(MessageTypeLeave)
	}
	s.cancel()
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
	log.Printf("[INFO] discovery: stopped")
}

func (s *Service) listenLoop() {
	defer s.wg.Done()

	buf := make([]byte, MaxMessageSize)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		// Read deadline allows a periodic ctx check.
		s.conn.SetReadDeadline(time.Now().Add(1 * time.Second))

		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
			log.Printf("[WARN] discovery: read error: %v", err)
			continue
		}

		var msg Message
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			log.Printf("[DEBUG] discovery: invalid message from %s: %v", addr, err)
			continue
		}

		// Ignore our own broadcasts
		if s.self != nil && msg.Server.DeviceID == s.self.DeviceID {
			continue
		}
		s.handleMessage(&msg)
	}
}

func (s *Service) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeAnnounce:
		s.mu.Lock()
		_, known := s.lastSeen[msg.Server.DeviceID]
		s.lastSeen[msg.Server.DeviceID] = time.Now()
		s.mu.Unlock()

		if !known {
			log.Printf("[INFO] discovery: found server %q at %s (tls=%v)",
				msg.Server.Name, msg.Server.Addr, msg.Server.TLS)
		}
		s.callback.OnServerFound(&msg.Server)

	case MessageTypeLeave:
		s.mu.Lock()
		delete(s.lastSeen, msg.Server.DeviceID)
		s.mu.Unlock()

		log.Printf("[INFO] discovery: server %q left", msg.Server.Name)
		s.callback.OnServerLost(msg.Server.DeviceID)
	}
}

func (s *Service) announceLoop() {
	defer s.wg.Done()

	// Announce immediately on startup
	s.send(MessageTypeAnnounce)

	ticker := time.NewTicker(BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.send(MessageTypeAnnounce)
		}
	}
}

func (s *Service) send(msgType MessageType) {
	msg := Message{
		Type:      msgType,
		Version:   1,
		Timestamp: time.Now().UnixMilli(),
		Server:    *s.self,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ERROR] discovery: failed to marshal message: %v", err)
		return
	}

	if _, err := s.conn.WriteToUDP(data, s.broadcast); err != nil {
		// Broadcast failures are common on some networks; stay quiet.
		if s.ctx.Err() == nil {
			log.Printf("[DEBUG] discovery: broadcast failed: %v", err)
		}
	}
}

func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.purgeStale()
		}
	}
}

func (s *Service) purgeStale() {
	threshold := time.Now().Add(-StaleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	for deviceID, lastSeen := range s.lastSeen {
		if lastSeen.Before(threshold) {
			delete(s.lastSeen, deviceID)
			s.callback.OnServerLost(deviceID)
			log.Printf("[INFO] discovery: server %s marked stale", ShortID(deviceID))
		}
	}
}
