// Package webrtcstream broadcasts captured frames over WebRTC data
// channels, an alternative transport for browser peers that cannot
// speak the framed TCP protocol.
package webrtcstream

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/remotedesk/remotedesk/internal/capture"
	"github.com/remotedesk/remotedesk/internal/frame"
)

const maxMessageSize = 63 * 1024 // 63KB, safely under 64KB SCTP limit

// Stream is one active WebRTC screen streaming session.
type Stream struct {
	ID             string
	PeerConnection *webrtc.PeerConnection
	DataChannel    *webrtc.DataChannel

	source      capture.Source
	targetFPS   int
	jpegQuality int

	// ctx/cancel are set once at construction, before any data channel
	// callback can fire, so Stop and the callbacks never race on them.
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager tracks active WebRTC streams over a shared capture source.
type Manager struct {
	source  capture.Source
	streams map[string]*Stream
	mu      sync.RWMutex
}

// NewManager creates a manager that captures from source.
func NewManager(source capture.Source) *Manager {
	return &Manager{
		source:  source,
		streams: make(map[string]*Stream),
	}
}

// Start creates a peer connection plus data channel and returns the
// offer SDP with ICE candidates gathered (non-trickle).
func (m *Manager) Start(targetFPS, jpegQuality int) (streamID, offerSDP string, err error) {
	if targetFPS <= 0 {
		targetFPS = 8
	}
	if jpegQuality <= 0 {
		jpegQuality = 60
	}
	jpegQuality = frame.ClampQuality(jpegQuality)

	// No ICE servers: LAN only.
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return "", "", fmt.Errorf("failed to create peer connection: %w", err)
	}

	dc, err := pc.CreateDataChannel("frames", nil)
	if err != nil {
		pc.Close()
		return "", "", fmt.Errorf("failed to create data channel: %w", err)
	}

	streamID = uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	stream := &Stream{
		ID:             streamID,
		PeerConnection: pc,
		DataChannel:    dc,
		source:         m.source,
		targetFPS:      targetFPS,
		jpegQuality:    jpegQuality,
		ctx:            ctx,
		cancel:         cancel,
	}

	dc.OnOpen(func() {
		log.Printf("[INFO] webrtc stream %s: data channel opened, starting capture", streamID)
		go stream.captureLoop(stream.ctx)
	})

	dc.OnClose(func() {
		log.Printf("[INFO] webrtc stream %s: data channel closed", streamID)
		stream.cancel()
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		cancel()
		pc.Close()
		return "", "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		cancel()
		pc.Close()
		return "", "", fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-time.After(5 * time.Second):
		cancel()
		pc.Close()
		return "", "", fmt.Errorf("ICE gathering timeout")
	}

	m.mu.Lock()
	m.streams[streamID] = stream
	m.mu.Unlock()

	return streamID, pc.LocalDescription().SDP, nil
}

// Complete installs the peer's answer SDP for a stream.
func (m *Manager) Complete(streamID, answerSDP string) error {
	m.mu.RLock()
	stream, ok := m.streams[streamID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("stream not found: %s", streamID)
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := stream.PeerConnection.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	log.Printf("[INFO] webrtc stream %s: connection established", streamID)
	return nil
}

// Stop closes one stream and cleans up its resources.
func (m *Manager) Stop(streamID string) error {
	m.mu.Lock()
	stream, ok := m.streams[streamID]
	if ok {
		delete(m.streams, streamID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("stream not found: %s", streamID)
	}

	stream.cancel()
	log.Printf("[INFO] webrtc stream %s: stopped", streamID)
	return stream.PeerConnection.Close()
}

// StopAll tears down every active stream.
func (m *Manager) StopAll() {
	m.mu.Lock()
	streams := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.streams = make(map[string]*Stream)
	m.mu.Unlock()

	for _, s := range streams {
		s.cancel()
		s.PeerConnection.Close()
	}
}

func (s *Stream) captureLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(s.targetFPS))
	defer ticker.Stop()

	log.Printf("[INFO] webrtc stream %s: capture loop started (fps=%d, quality=%d)",
		s.ID, s.targetFPS, s.jpegQuality)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.captureAndSend(); err != nil {
				log.Printf("[WARN] webrtc stream %s: %v", s.ID, err)
				return
			}
		}
	}
}

// captureAndSend grabs one frame and ships it, shrinking scale and
// quality until the JPEG fits the SCTP message budget.
func (s *Stream) captureAndSend() error {
	img, err := s.source.Capture(nil)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	scale := 0.5
	quality := s.jpegQuality
	for attempts := 0; attempts < 4; attempts++ {
		data, err := frame.EncodeImage(frame.Scale(img, scale), quality)
		if err != nil {
			return fmt.Errorf("encode failed: %w", err)
		}
		if len(data) <= maxMessageSize {
			return s.DataChannel.Send(data)
		}
		scale *= 0.7
		if quality > 20 {
			quality -= 10
		}
	}
	return fmt.Errorf("frame too large after scaling attempts")
}
