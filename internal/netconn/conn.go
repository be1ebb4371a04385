// Package netconn owns the stream sockets: a server accept loop or a
// single client connection, one receive goroutine per peer, and a
// handler table that dispatches decoded messages by kind.
package netconn

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/remotedesk/remotedesk/internal/protocol"
)

// Conn is one established peer connection. The receive loop is the
// only reader of the socket; Send may be called from any goroutine,
// writes are serialized so message bytes never interleave.
type Conn struct {
	// ID uniquely identifies this peer for logging and bookkeeping.
	ID string

	sock    net.Conn
	writeMu sync.Mutex
	running atomic.Bool
	stopped sync.Once

	onStop func(*Conn)
}

func newConn(sock net.Conn, onStop func(*Conn)) *Conn {
	c := &Conn{
		ID:     uuid.New().String(),
		sock:   sock,
		onStop: onStop,
	}
	c.running.Store(true)
	return c
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.sock.RemoteAddr()
}

// Running reports whether the connection is still live.
func (c *Conn) Running() bool {
	return c.running.Load()
}

// Send encodes and writes one message. Concurrent sends on the same
// connection are sequenced; a write failure stops the connection.
func (c *Conn) Send(kind protocol.Kind, payload protocol.Payload) error {
	if !c.running.Load() {
		return fmt.Errorf("send %s: connection stopped", kind)
	}

	data, err := protocol.Encode(kind, payload)
	if err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}

	c.writeMu.Lock()
	_, err = c.sock.Write(data)
	c.writeMu.Unlock()

	if err != nil {
		log.Printf("[WARN] netconn: send %s to %s failed: %v", kind, c.ID[:8], err)
		c.Stop()
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

// Stop closes the transport and prevents further sends. It is
// idempotent and unblocks any in-progress read in the receive loop.
func (c *Conn) Stop() {
	c.stopped.Do(func() {
		c.running.Store(false)
		if err := c.sock.Close(); err != nil {
			log.Printf("[DEBUG] netconn: close %s: %v", c.ID[:8], err)
		}
		if c.onStop != nil {
			c.onStop(c)
		}
	})
}
