package session

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/remotedesk/remotedesk/internal/frame"
	"github.com/remotedesk/remotedesk/internal/netconn"
	"github.com/remotedesk/remotedesk/internal/protocol"
)

// ClientController runs the viewing side: it authenticates against the
// server, renders received frames, and forwards local input events.
// Outbound events are gated until the auth round trip succeeds.
type ClientController struct {
	net       *netconn.Manager
	sink      Sink
	clipboard Clipboard

	conn   *netconn.Conn
	authed atomic.Bool

	// Duplicate mouse-move suppression bounds the event rate.
	posMu       sync.Mutex
	lastX       int
	lastY       int
	haveLastPos bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewClient wires the controller's handlers into net. Registration
// happens here, before Connect.
func NewClient(net *netconn.Manager, sink Sink, clipboard Clipboard) (*ClientController, error) {
	c := &ClientController{
		net:       net,
		sink:      sink,
		clipboard: clipboard,
		done:      make(chan struct{}),
	}

	net.OnDisconnect(func(*netconn.Conn) {
		c.authed.Store(false)
		c.doneOnce.Do(func() { close(c.done) })
	})

	handlers := map[protocol.Kind]netconn.Handler{
		protocol.KindScreenData:    c.handleScreenData,
		protocol.KindAuthResponse:  c.handleAuthResponse,
		protocol.KindClipboardData: c.handleClipboard,
		protocol.KindDisconnect:    c.handleDisconnect,
	}
	for kind, h := range handlers {
		if err := net.RegisterHandler(kind, h); err != nil {
			return nil, fmt.Errorf("client setup: %w", err)
		}
	}
	return c, nil
}

// Connect dials the server and opens the auth round trip.
func (c *ClientController) Connect(addr, username, password string) error {
	conn, err := c.net.Dial(addr)
	if err != nil {
		return err
	}
	c.conn = conn

	req := protocol.AuthRequest{Username: username, Password: password}
	if err := conn.Send(protocol.KindAuthRequest, req.Payload()); err != nil {
		return fmt.Errorf("auth request: %w", err)
	}
	return nil
}

// Done is closed when the connection ends, however that happens. The
// caller decides whether to reconnect.
func (c *ClientController) Done() <-chan struct{} {
	return c.done
}

// Authenticated reports whether the server accepted this session.
func (c *ClientController) Authenticated() bool {
	return c.authed.Load()
}

// Stop announces an orderly disconnect and tears down the connection.
func (c *ClientController) Stop() {
	if c.conn != nil && c.conn.Running() {
		c.conn.Send(protocol.KindDisconnect, nil)
	}
	c.net.Stop()
}

func (c *ClientController) handleAuthResponse(p protocol.Payload, conn *netconn.Conn) {
	resp, err := protocol.ParseAuthResponse(p)
	if err != nil {
		log.Printf("[WARN] session: malformed auth response: %v", err)
		conn.Stop()
		return
	}
	if !resp.Success {
		// Cease sending on this connection entirely.
		log.Printf("[ERROR] session: authentication failed: %s", resp.Message)
		c.authed.Store(false)
		conn.Stop()
		return
	}
	c.authed.Store(true)
	log.Printf("[INFO] session: authenticated with server")
}

// handleScreenData decodes one frame and hands it to the sink. Any
// failure drops the frame; the stream continues.
func (c *ClientController) handleScreenData(p protocol.Payload, conn *netconn.Conn) {
	compressed, err := protocol.ParseScreenData(p)
	if err != nil {
		log.Printf("[WARN] session: bad screen-data payload: %v", err)
		return
	}
	encoded, err := frame.Decompress(compressed)
	if err != nil {
		log.Printf("[WARN] session: frame decompression failed: %v", err)
		return
	}
	img, err := frame.DecodeImage(encoded)
	if err != nil {
		log.Printf("[WARN] session: frame decode failed: %v", err)
		return
	}
	if err := c.sink.Present(img); err != nil {
		log.Printf("[WARN] session: present failed: %v", err)
	}
}

func (c *ClientController) handleClipboard(p protocol.Payload, conn *netconn.Conn) {
	text, isRequest, err := protocol.ParseClipboard(p)
	if err != nil {
		log.Printf("[WARN] session: malformed clipboard message: %v", err)
		return
	}
	if isRequest {
		content, err := c.clipboard.Get()
		if err != nil {
			log.Printf("[WARN] session: clipboard read failed: %v", err)
			return
		}
		conn.Send(protocol.KindClipboardData, protocol.ClipboardDataPayload(content))
		return
	}
	if err := c.clipboard.Set(text); err != nil {
		log.Printf("[WARN] session: clipboard write failed: %v", err)
	}
}

func (c *ClientController) handleDisconnect(p protocol.Payload, conn *netconn.Conn) {
	log.Printf("[INFO] session: server requested disconnect")
	conn.Stop()
}

// sendEvent ships one input event if the session is authenticated.
func (c *ClientController) sendEvent(kind protocol.Kind, payload protocol.Payload) error {
	if !c.authed.Load() {
		return fmt.Errorf("send %s: not authenticated", kind)
	}
	return c.conn.Send(kind, payload)
}

// SendMouseMove forwards a pointer move. A move to the same position
// as the previous one is suppressed and never reaches the wire.
func (c *ClientController) SendMouseMove(x, y int) error {
	c.posMu.Lock()
	if c.haveLastPos && c.lastX == x && c.lastY == y {
		c.posMu.Unlock()
		return nil
	}
	c.lastX, c.lastY = x, y
	c.haveLastPos = true
	c.posMu.Unlock()

	e := protocol.MouseEvent{Action: protocol.MouseMove, X: x, Y: y}
	return c.sendEvent(protocol.KindMouseEvent, e.Payload())
}

// SendMouseClick forwards a button press or release. Clicks are always
// sent, even at an unchanged position.
func (c *ClientController) SendMouseClick(x, y int, button, subAction string) error {
	e := protocol.MouseEvent{Action: protocol.MouseClick, X: x, Y: y, Button: button, SubAction: subAction}
	return c.sendEvent(protocol.KindMouseEvent, e.Payload())
}

// SendMouseScroll forwards a scroll by amount at the pointer position.
func (c *ClientController) SendMouseScroll(x, y, amount int) error {
	e := protocol.MouseEvent{Action: protocol.MouseScroll, X: x, Y: y, Amount: amount}
	return c.sendEvent(protocol.KindMouseEvent, e.Payload())
}

// SendKey forwards one keyboard event.
func (c *ClientController) SendKey(key, action string) error {
	e := protocol.KeyboardEvent{Key: key, Action: action}
	return c.sendEvent(protocol.KindKeyboardEvent, e.Payload())
}

// RequestClipboard asks the server for its clipboard contents; the
// reply arrives through the clipboard handler.
func (c *ClientController) RequestClipboard() error {
	return c.sendEvent(protocol.KindClipboardData, protocol.ClipboardRequestPayload())
}

// SendClipboard pushes local clipboard text to the server.
func (c *ClientController) SendClipboard(text string) error {
	return c.sendEvent(protocol.KindClipboardData, protocol.ClipboardDataPayload(text))
}
