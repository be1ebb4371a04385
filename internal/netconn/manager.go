package netconn

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/remotedesk/remotedesk/internal/protocol"
)

// DefaultPort is the TCP port the server listens on by default.
const DefaultPort = 50000

// Handler processes one decoded message. Handlers run synchronously on
// the receive goroutine of the source connection; errors and panics
// are contained there and never tear down the loop.
type Handler func(payload protocol.Payload, conn *Conn)

// Manager runs one of the two roles: a listening server that spawns a
// receive loop per accepted peer, or a client with a single dialed
// connection. The handler table must be fully populated before
// Listen/Dial and is read-only afterwards.
type Manager struct {
	handlers  map[protocol.Kind]Handler
	started   atomic.Bool
	tlsConfig *tls.Config

	listener net.Listener

	mu    sync.Mutex
	conns map[string]*Conn

	onConnect    func(*Conn)
	onDisconnect func(*Conn)

	wg sync.WaitGroup
}

// NewManager creates a Manager with an empty handler table.
func NewManager() *Manager {
	return &Manager{
		handlers: make(map[protocol.Kind]Handler),
		conns:    make(map[string]*Conn),
	}
}

// SetTLSConfig enables TLS. For the server role the config must carry
// a certificate; for the client role standard hostname verification
// applies. Must be called before Listen/Dial.
func (m *Manager) SetTLSConfig(cfg *tls.Config) {
	m.tlsConfig = cfg
}

// RegisterHandler binds a handler to a message kind. Registration
// after Listen/Dial fails: the table is read-only while loops run.
func (m *Manager) RegisterHandler(kind protocol.Kind, h Handler) error {
	if m.started.Load() {
		return fmt.Errorf("register %s: handlers must be registered before start", kind)
	}
	if !kind.Valid() {
		return fmt.Errorf("register: invalid kind %d", uint32(kind))
	}
	m.handlers[kind] = h
	return nil
}

// OnConnect sets a hook invoked for every new connection, before its
// receive loop starts. Must be set before Listen/Dial.
func (m *Manager) OnConnect(fn func(*Conn)) {
	m.onConnect = fn
}

// OnDisconnect sets a hook invoked once per connection when it stops.
func (m *Manager) OnDisconnect(fn func(*Conn)) {
	m.onDisconnect = fn
}

// Listen binds addr and runs the accept loop in the background. Each
// accepted peer gets its own Conn and receive goroutine.
func (m *Manager) Listen(addr string) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("listen: manager already started")
	}

	var ln net.Listener
	var err error
	if m.tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, m.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		m.started.Store(false)
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	m.listener = ln
	log.Printf("[INFO] netconn: listening on %s (tls=%v)", ln.Addr(), m.tlsConfig != nil)

	m.wg.Add(1)
	go m.acceptLoop()
	return nil
}

// Addr returns the bound listener address, or nil for the client role.
func (m *Manager) Addr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// Dial connects to a server and starts the receive loop. The returned
// Conn is the only peer for this manager.
func (m *Manager) Dial(addr string) (*Conn, error) {
	if !m.started.CompareAndSwap(false, true) {
		return nil, errors.New("dial: manager already started")
	}

	var sock net.Conn
	var err error
	if m.tlsConfig != nil {
		sock, err = tls.Dial("tcp", addr, m.tlsConfig)
	} else {
		sock, err = net.Dial("tcp", addr)
	}
	if err != nil {
		m.started.Store(false)
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	conn := m.adopt(sock)
	log.Printf("[INFO] netconn: connected to %s", addr)
	return conn, nil
}

// Attach runs the protocol over an already-established stream. Used by
// tests and by transports that hand over a ready socket.
func (m *Manager) Attach(sock net.Conn) *Conn {
	m.started.Store(true)
	return m.adopt(sock)
}

func (m *Manager) adopt(sock net.Conn) *Conn {
	conn := newConn(sock, m.dropConn)

	m.mu.Lock()
	m.conns[conn.ID] = conn
	m.mu.Unlock()

	if m.onConnect != nil {
		m.onConnect(conn)
	}

	m.wg.Add(1)
	go m.receiveLoop(conn)
	return conn
}

func (m *Manager) dropConn(c *Conn) {
	m.mu.Lock()
	delete(m.conns, c.ID)
	m.mu.Unlock()

	if m.onDisconnect != nil {
		m.onDisconnect(c)
	}
}

// Peers returns the live connections.
func (m *Manager) Peers() []*Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	peers := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		peers = append(peers, c)
	}
	return peers
}

// Send targets a specific connection when conn is non-nil, otherwise
// the first live peer. The nil form covers the client role, where
// there is exactly one connection.
func (m *Manager) Send(kind protocol.Kind, payload protocol.Payload, conn *Conn) error {
	if conn != nil {
		return conn.Send(kind, payload)
	}
	m.mu.Lock()
	for _, c := range m.conns {
		conn = c
		break
	}
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("send %s: no connected peer", kind)
	}
	return conn.Send(kind, payload)
}

// Stop closes the listener and every live connection, then waits for
// all loops to drain. Safe to call more than once.
func (m *Manager) Stop() {
	if m.listener != nil {
		m.listener.Close()
	}
	for _, c := range m.Peers() {
		c.Stop()
	}
	m.wg.Wait()
}

func (m *Manager) acceptLoop() {
	defer m.wg.Done()

	for {
		sock, err := m.listener.Accept()
		if err != nil {
			// Listener closed during Stop is the normal exit path.
			if !errors.Is(err, net.ErrClosed) {
				log.Printf("[WARN] netconn: accept: %v", err)
			}
			return
		}
		log.Printf("[INFO] netconn: connection from %s", sock.RemoteAddr())
		m.adopt(sock)
	}
}

// receiveLoop decodes messages until the stream ends or the framing
// contract is violated. Handler failures are contained per message.
func (m *Manager) receiveLoop(conn *Conn) {
	defer m.wg.Done()
	defer conn.Stop()

	for conn.Running() {
		kind, payload, err := protocol.Decode(conn.sock)
		if err != nil {
			switch {
			case err == io.EOF:
				log.Printf("[INFO] netconn: peer %s disconnected", conn.ID[:8])
			case !conn.Running():
				// Local Stop closed the socket under the read.
			case errors.Is(err, protocol.ErrTruncated):
				log.Printf("[INFO] netconn: peer %s closed mid-message", conn.ID[:8])
			default:
				// Unknown kind, oversized length or malformed payload:
				// the framing can no longer be trusted.
				log.Printf("[WARN] netconn: peer %s protocol violation: %v", conn.ID[:8], err)
			}
			return
		}

		handler, ok := m.handlers[kind]
		if !ok {
			log.Printf("[DEBUG] netconn: no handler for %s, dropping", kind)
			continue
		}
		m.dispatch(handler, kind, payload, conn)
	}
}

// dispatch invokes one handler, containing panics so a bad handler
// cannot tear down the receive loop.
func (m *Manager) dispatch(h Handler, kind protocol.Kind, payload protocol.Payload, conn *Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] netconn: handler for %s panicked: %v", kind, r)
		}
	}()
	h(payload, conn)
}
