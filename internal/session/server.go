package session

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/remotedesk/remotedesk/internal/capture"
	"github.com/remotedesk/remotedesk/internal/netconn"
	"github.com/remotedesk/remotedesk/internal/protocol"
	"github.com/remotedesk/remotedesk/internal/stats"
)

// AuthGracePeriod is how long a rejected peer keeps its connection
// before the server closes it, long enough for the failure response
// to flush but never half-open.
const AuthGracePeriod = 1 * time.Second

// Authenticator decides an auth request. It returns acceptance and a
// message for the client. The policy is deliberately pluggable.
type Authenticator func(username, password string) (ok bool, message string)

// AcceptAll authenticates any credentials.
func AcceptAll(username, password string) (bool, string) {
	return true, "authenticated"
}

// StaticCredentials returns an Authenticator that accepts exactly one
// username/password pair, compared in constant time.
func StaticCredentials(username, password string) Authenticator {
	return func(u, p string) (bool, string) {
		userOK := subtle.ConstantTimeCompare([]byte(u), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(p), []byte(password)) == 1
		if userOK && passOK {
			return true, "authenticated"
		}
		return false, "bad credentials"
	}
}

// ServerController runs the serving side: it authenticates peers,
// injects their input events, answers clipboard requests, and
// broadcasts captured frames to every authenticated peer.
type ServerController struct {
	net       *netconn.Manager
	capturer  *capture.Capturer
	injector  Injector
	clipboard Clipboard
	auth      Authenticator
	stats     *stats.Store

	mu     sync.Mutex
	authed map[string]bool // conn ID -> passed auth

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer wires the controller's handlers into net. All registration
// happens here, before Start, per the connection contract.
func NewServer(net *netconn.Manager, capturer *capture.Capturer, injector Injector, clipboard Clipboard, auth Authenticator) (*ServerController, error) {
	if auth == nil {
		auth = AcceptAll
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &ServerController{
		net:       net,
		capturer:  capturer,
		injector:  injector,
		clipboard: clipboard,
		auth:      auth,
		stats:     stats.NewStore(),
		authed:    make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
	}

	net.OnDisconnect(func(c *netconn.Conn) {
		s.mu.Lock()
		delete(s.authed, c.ID)
		s.mu.Unlock()
		s.stats.Drop(c.ID)
		log.Printf("[INFO] session: peer %s removed", c.ID[:8])
	})

	handlers := map[protocol.Kind]netconn.Handler{
		protocol.KindAuthRequest:   s.handleAuth,
		protocol.KindMouseEvent:    s.handleMouse,
		protocol.KindKeyboardEvent: s.handleKeyboard,
		protocol.KindClipboardData: s.handleClipboard,
		protocol.KindDisconnect:    s.handleDisconnect,
	}
	for kind, h := range handlers {
		if err := net.RegisterHandler(kind, h); err != nil {
			cancel()
			return nil, fmt.Errorf("server setup: %w", err)
		}
	}
	return s, nil
}

// Stats exposes the per-peer throughput history.
func (s *ServerController) Stats() *stats.Store {
	return s.stats
}

// Start listens on addr and runs the capture-and-broadcast loop.
func (s *ServerController) Start(addr string) error {
	if err := s.net.Listen(addr); err != nil {
		return err
	}
	s.wg.Add(1)
	go s.broadcastLoop()
	log.Printf("[INFO] session: server started on %s", addr)
	return nil
}

// Stop shuts down the broadcast loop and every connection.
func (s *ServerController) Stop() {
	s.cancel()
	s.net.Stop()
	s.wg.Wait()
	s.stats.Stop()
	log.Printf("[INFO] session: server stopped")
}

func (s *ServerController) isAuthed(c *netconn.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authed[c.ID]
}

func (s *ServerController) handleAuth(p protocol.Payload, c *netconn.Conn) {
	req, err := protocol.ParseAuthRequest(p)
	if err != nil {
		log.Printf("[WARN] session: malformed auth request from %s: %v", c.ID[:8], err)
		c.Send(protocol.KindAuthResponse, protocol.AuthResponse{Success: false, Message: "malformed request"}.Payload())
		time.AfterFunc(AuthGracePeriod, c.Stop)
		return
	}

	ok, message := s.auth(req.Username, req.Password)
	resp := protocol.AuthResponse{Success: ok, Message: message}
	if err := c.Send(protocol.KindAuthResponse, resp.Payload()); err != nil {
		return
	}

	if !ok {
		log.Printf("[INFO] session: rejected auth for %q from %s", req.Username, c.ID[:8])
		// Not left half-open: the peer gets a moment to read the
		// response, then the server closes from its side.
		time.AfterFunc(AuthGracePeriod, c.Stop)
		return
	}

	s.mu.Lock()
	s.authed[c.ID] = true
	s.mu.Unlock()
	log.Printf("[INFO] session: authenticated %q on %s", req.Username, c.ID[:8])
}

func (s *ServerController) handleMouse(p protocol.Payload, c *netconn.Conn) {
	if !s.isAuthed(c) {
		return
	}
	event, err := protocol.ParseMouseEvent(p)
	if err != nil {
		log.Printf("[WARN] session: malformed mouse event from %s: %v", c.ID[:8], err)
		return
	}
	if err := s.injector.MouseEvent(event); err != nil {
		log.Printf("[WARN] session: mouse injection failed: %v", err)
	}
}

func (s *ServerController) handleKeyboard(p protocol.Payload, c *netconn.Conn) {
	if !s.isAuthed(c) {
		return
	}
	event, err := protocol.ParseKeyboardEvent(p)
	if err != nil {
		log.Printf("[WARN] session: malformed keyboard event from %s: %v", c.ID[:8], err)
		return
	}
	if err := s.injector.KeyboardEvent(event); err != nil {
		log.Printf("[WARN] session: keyboard injection failed: %v", err)
	}
}

func (s *ServerController) handleClipboard(p protocol.Payload, c *netconn.Conn) {
	if !s.isAuthed(c) {
		return
	}
	text, isRequest, err := protocol.ParseClipboard(p)
	if err != nil {
		log.Printf("[WARN] session: malformed clipboard message from %s: %v", c.ID[:8], err)
		return
	}

	if isRequest {
		content, err := s.clipboard.Get()
		if err != nil {
			log.Printf("[WARN] session: clipboard read failed: %v", err)
			return
		}
		c.Send(protocol.KindClipboardData, protocol.ClipboardDataPayload(content))
		return
	}
	if err := s.clipboard.Set(text); err != nil {
		log.Printf("[WARN] session: clipboard write failed: %v", err)
	}
}

func (s *ServerController) handleDisconnect(p protocol.Payload, c *netconn.Conn) {
	log.Printf("[INFO] session: peer %s requested disconnect", c.ID[:8])
	c.Stop()
}

// broadcastLoop drives the capture pipeline and fans frames out to
// authenticated peers. The capturer's own fps gate keeps the rate
// honest even if this loop wakes early.
func (s *ServerController) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.capturer.Interval()):
		}

		data, ok := s.capturer.Tick()
		if !ok {
			continue
		}

		payload := protocol.ScreenDataPayload(data)
		for _, peer := range s.net.Peers() {
			if !s.isAuthed(peer) {
				continue
			}
			if err := peer.Send(protocol.KindScreenData, payload); err != nil {
				continue // Send already stopped the connection.
			}
			s.stats.Record(peer.ID, len(data))
		}
	}
}
