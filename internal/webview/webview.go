// Package webview serves received frames to a local browser: an HTTP
// page plus a WebSocket that pushes each presented frame as a JPEG
// binary message. It is an alternative render sink for the client.
package webview

import (
	"embed"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/remotedesk/remotedesk/internal/frame"
)

//go:embed static
var staticFiles embed.FS

const (
	// DefaultAddr is used when neither the flag nor the environment
	// sets a listen address.
	DefaultAddr = "127.0.0.1:8090"
	// EnvAddr overrides the listen address (.env supported).
	EnvAddr = "REMOTEDESK_WEB_ADDR"

	// viewQuality is the JPEG quality for browser-bound frames.
	viewQuality = 80
)

// InputEvent is a control event captured by the browser page and sent
// back over the WebSocket as JSON.
type InputEvent struct {
	Type      string `json:"type"` // move, click, scroll, key
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Button    string `json:"button,omitempty"`
	SubAction string `json:"sub_action,omitempty"`
	Amount    int    `json:"amount,omitempty"`
	Key       string `json:"key,omitempty"`
	Action    string `json:"action,omitempty"`
}

// Viewer implements session.Sink by mirroring frames to any number of
// connected browsers.
type Viewer struct {
	addr     string
	upgrader websocket.Upgrader
	srv      *http.Server
	ln       net.Listener

	// onInput, when set before Start, receives input events from the
	// browser page.
	onInput func(InputEvent)

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	latest  []byte // last JPEG, replayed to newly connected browsers
}

// ResolveAddr picks the listen address: explicit flag value, then the
// environment (including .env), then the default.
func ResolveAddr(flagAddr string) string {
	if flagAddr != "" {
		return flagAddr
	}
	// Missing .env files are fine; only explicit env matters then.
	_ = godotenv.Load()
	if addr := os.Getenv(EnvAddr); addr != "" {
		return addr
	}
	return DefaultAddr
}

// New creates a viewer that will listen on addr.
func New(addr string) *Viewer {
	return &Viewer{
		addr:    addr,
		clients: make(map[*websocket.Conn]bool),
	}
}

// OnInput registers the input forwarder. Must be set before Start.
func (v *Viewer) OnInput(fn func(InputEvent)) {
	v.onInput = fn
}

// Handler returns the HTTP mux serving the page and the WebSocket.
func (v *Viewer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", v.handleIndex)
	mux.HandleFunc("/ws", v.handleWS)
	return mux
}

// Start begins serving in the background.
func (v *Viewer) Start() error {
	ln, err := net.Listen("tcp", v.addr)
	if err != nil {
		return fmt.Errorf("webview listen on %s: %w", v.addr, err)
	}
	v.ln = ln
	v.srv = &http.Server{Handler: v.Handler()}

	go func() {
		if err := v.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[ERROR] webview: serve: %v", err)
		}
	}()

	log.Printf("[INFO] webview: open http://%s to watch the stream", ln.Addr())
	return nil
}

// Stop closes the server and every WebSocket.
func (v *Viewer) Stop() {
	v.mu.Lock()
	for c := range v.clients {
		c.Close()
	}
	v.clients = make(map[*websocket.Conn]bool)
	v.mu.Unlock()

	if v.srv != nil {
		v.srv.Close()
	}
}

// Present implements session.Sink: the frame is re-encoded as JPEG and
// pushed to every connected browser.
func (v *Viewer) Present(img image.Image) error {
	data, err := frame.EncodeImage(img, viewQuality)
	if err != nil {
		return fmt.Errorf("webview encode: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.latest = data

	for c := range v.clients {
		if err := c.WriteMessage(websocket.BinaryMessage, data); err != nil {
			c.Close()
			delete(v.clients, c)
		}
	}
	return nil
}

func (v *Viewer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "missing viewer page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (v *Viewer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := v.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] webview: upgrade failed: %v", err)
		return
	}

	log.Printf("[INFO] webview: browser connected from %s", r.RemoteAddr)

	// Replay the last frame so a fresh tab isn't blank until the next
	// capture tick. This happens before the socket joins the client
	// set, so it cannot race a broadcast from Present.
	v.mu.Lock()
	latest := v.latest
	v.mu.Unlock()
	if latest != nil {
		conn.WriteMessage(websocket.BinaryMessage, latest)
	}

	v.mu.Lock()
	v.clients[conn] = true
	v.mu.Unlock()

	// Read loop: text messages carry input events from the page,
	// everything else is control traffic.
	go func() {
		defer func() {
			v.mu.Lock()
			delete(v.clients, conn)
			v.mu.Unlock()
			conn.Close()
		}()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage || v.onInput == nil {
				continue
			}
			var event InputEvent
			if err := json.Unmarshal(data, &event); err != nil {
				log.Printf("[DEBUG] webview: bad input event: %v", err)
				continue
			}
			v.onInput(event)
		}
	}()
}
