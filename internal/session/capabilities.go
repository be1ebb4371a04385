// Package session holds the role-specific controllers: the server
// wires capture output to the wire and inbound control messages to
// input injection; the client renders received frames and forwards
// local input. OS-level capture, injection and rendering are injected
// capabilities, not implemented here.
package session

import (
	"image"
	"log"
	"sync"

	"github.com/remotedesk/remotedesk/internal/protocol"
)

// Injector applies remote input events to the local machine. Errors
// are per-event: the controller logs them and keeps going.
type Injector interface {
	MouseEvent(e protocol.MouseEvent) error
	KeyboardEvent(e protocol.KeyboardEvent) error
}

// Clipboard reads and writes the local clipboard.
type Clipboard interface {
	Get() (string, error)
	Set(text string) error
}

// Sink presents a decoded frame to the user.
type Sink interface {
	Present(img image.Image) error
}

// LogInjector logs events instead of injecting them. It stands in
// where no platform injector is wired up.
type LogInjector struct{}

func (LogInjector) MouseEvent(e protocol.MouseEvent) error {
	log.Printf("[DEBUG] inject: mouse %s at (%d,%d)", e.Action, e.X, e.Y)
	return nil
}

func (LogInjector) KeyboardEvent(e protocol.KeyboardEvent) error {
	log.Printf("[DEBUG] inject: key %q %s", e.Key, e.Action)
	return nil
}

// MemClipboard is an in-memory clipboard, used when no platform
// clipboard is wired up and by tests.
type MemClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *MemClipboard) Get() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}

func (c *MemClipboard) Set(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	return nil
}
