package webrtcstream

import (
	"context"
	"sync"
	"testing"

	"github.com/pion/webrtc/v3"
)

func newTestStream(t *testing.T) (*Stream, context.Context) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("peer connection: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		ID:             "stream-1",
		PeerConnection: pc,
		ctx:            ctx,
		cancel:         cancel,
	}, ctx
}

func TestStopCancelsStreamContext(t *testing.T) {
	s, ctx := newTestStream(t)

	m := NewManager(nil)
	m.streams[s.ID] = s

	if err := m.Stop(s.ID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if ctx.Err() == nil {
		t.Error("stop did not cancel the capture context")
	}
	if err := m.Stop(s.ID); err == nil {
		t.Error("second stop should report an unknown stream")
	}
}

func TestStopAllCancelsEveryStream(t *testing.T) {
	m := NewManager(nil)
	a, ctxA := newTestStream(t)
	b, ctxB := newTestStream(t)
	b.ID = "stream-2"
	m.streams[a.ID] = a
	m.streams[b.ID] = b

	m.StopAll()

	if ctxA.Err() == nil || ctxB.Err() == nil {
		t.Error("StopAll left a stream context live")
	}
	if len(m.streams) != 0 {
		t.Errorf("expected no streams after StopAll, got %d", len(m.streams))
	}
}

// The data channel close callback and Stop may fire at the same time
// from different goroutines; cancellation must tolerate that.
func TestConcurrentCancelIsSafe(t *testing.T) {
	s, ctx := newTestStream(t)

	m := NewManager(nil)
	m.streams[s.ID] = s

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.cancel() // what dc.OnClose does
	}()
	go func() {
		defer wg.Done()
		m.Stop(s.ID)
	}()
	wg.Wait()

	if ctx.Err() == nil {
		t.Error("stream context still live after concurrent cancellation")
	}
}
