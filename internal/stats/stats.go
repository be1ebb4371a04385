// Package stats keeps an in-memory throughput history per streaming
// peer: frames and bytes sent, bucketed per second.
package stats

import (
	"sync"
	"time"
)

const (
	// MaxHistoryPoints is the maximum number of samples kept per peer.
	MaxHistoryPoints = 120 // 2 minutes at 1 sample/second

	// CleanupInterval is how often stale peers are purged.
	CleanupInterval = 5 * time.Minute

	// Retention is how long a peer's history survives after its last
	// recorded frame.
	Retention = 10 * time.Minute
)

// Sample is one second of streaming activity.
type Sample struct {
	Timestamp int64 `json:"timestamp_ms"`
	Frames    int   `json:"frames"`
	Bytes     int   `json:"bytes"`
}

// peerHistory accumulates the open bucket and the closed samples.
type peerHistory struct {
	samples    []Sample
	bucket     Sample
	bucketSec  int64
	lastUpdate time.Time

	totalFrames int
	totalBytes  int64
}

// Store manages streaming history for all peers.
type Store struct {
	mu     sync.Mutex
	peers  map[string]*peerHistory
	stopCh chan struct{}
}

// NewStore creates a store with a background cleanup goroutine.
func NewStore() *Store {
	s := &Store{
		peers:  make(map[string]*peerHistory),
		stopCh: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Stop stops the background cleanup goroutine.
func (s *Store) Stop() {
	close(s.stopCh)
}

// Record notes one transmitted frame of n bytes for a peer.
func (s *Store) Record(peerID string, n int) {
	now := time.Now()
	sec := now.Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.peers[peerID]
	if !ok {
		h = &peerHistory{bucketSec: sec}
		s.peers[peerID] = h
	}

	if sec != h.bucketSec {
		if h.bucket.Frames > 0 {
			h.samples = append(h.samples, h.bucket)
			if len(h.samples) > MaxHistoryPoints {
				h.samples = h.samples[len(h.samples)-MaxHistoryPoints:]
			}
		}
		h.bucket = Sample{}
		h.bucketSec = sec
	}

	h.bucket.Timestamp = now.UnixMilli()
	h.bucket.Frames++
	h.bucket.Bytes += n
	h.lastUpdate = now
	h.totalFrames++
	h.totalBytes += int64(n)
}

// History returns the closed per-second samples for a peer, oldest
// first. The open bucket is not included.
func (s *Store) History(peerID string) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.peers[peerID]
	if !ok {
		return nil
	}
	out := make([]Sample, len(h.samples))
	copy(out, h.samples)
	return out
}

// Totals returns lifetime frame and byte counts for a peer.
func (s *Store) Totals(peerID string) (frames int, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.peers[peerID]
	if !ok {
		return 0, 0
	}
	return h.totalFrames, h.totalBytes
}

// Drop removes a peer's history immediately, typically on disconnect.
func (s *Store) Drop(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, peerID)
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.purgeStale()
		}
	}
}

func (s *Store) purgeStale() {
	threshold := time.Now().Add(-Retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, h := range s.peers {
		if h.lastUpdate.Before(threshold) {
			delete(s.peers, id)
		}
	}
}
