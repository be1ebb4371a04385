package discovery

import (
	"encoding/json"
	"testing"
	"time"
)

type recordingCallback struct {
	found chan *ServerAnnounce
	lost  chan string
}

func newRecordingCallback() *recordingCallback {
	return &recordingCallback{
		found: make(chan *ServerAnnounce, 4),
		lost:  make(chan string, 4),
	}
}

func (c *recordingCallback) OnServerFound(s *ServerAnnounce) { c.found <- s }
func (c *recordingCallback) OnServerLost(id string)          { c.lost <- id }

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		Type:      MessageTypeAnnounce,
		Version:   1,
		Timestamp: time.Now().UnixMilli(),
		Server: ServerAnnounce{
			DeviceID: "abc-123",
			Name:     "workstation",
			Addr:     "192.168.1.10:50000",
			TLS:      true,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if len(data) > MaxMessageSize {
		t.Fatalf("announce message exceeds UDP budget: %d bytes", len(data))
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Server != msg.Server {
		t.Errorf("server info mismatch: %+v vs %+v", decoded.Server, msg.Server)
	}
}

func TestHandleMessageAnnounceAndLeave(t *testing.T) {
	cb := newRecordingCallback()
	s := NewService(DefaultPort, nil, cb)

	announce := &Message{
		Type:   MessageTypeAnnounce,
		Server: ServerAnnounce{DeviceID: "dev-1", Name: "host-a", Addr: "10.0.0.1:50000"},
	}
	s.handleMessage(announce)

	select {
	case found := <-cb.found:
		if found.Addr != "10.0.0.1:50000" {
			t.Errorf("unexpected server: %+v", found)
		}
	default:
		t.Fatal("announce did not trigger OnServerFound")
	}

	s.handleMessage(&Message{Type: MessageTypeLeave, Server: announce.Server})
	select {
	case id := <-cb.lost:
		if id != "dev-1" {
			t.Errorf("unexpected lost ID: %s", id)
		}
	default:
		t.Fatal("leave did not trigger OnServerLost")
	}
}

func TestShortID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "abc"},
		{"exactly8", "exactly8"},
		{"0123456789abcdef", "01234567"},
	}
	for _, c := range cases {
		if got := ShortID(c.in); got != c.want {
			t.Errorf("ShortID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// Device IDs arrive verbatim from the network, so a peer can announce
// with an ID of any length; purging such an entry must not panic.
func TestPurgeStaleShortDeviceID(t *testing.T) {
	cb := newRecordingCallback()
	s := NewService(DefaultPort, nil, cb)

	s.handleMessage(&Message{
		Type:   MessageTypeAnnounce,
		Server: ServerAnnounce{DeviceID: "abc", Name: "tiny", Addr: "10.0.0.9:50000"},
	})
	select {
	case <-cb.found:
	default:
		t.Fatal("announce with short device ID was not accepted")
	}

	s.mu.Lock()
	s.lastSeen["abc"] = time.Now().Add(-2 * StaleTimeout)
	s.mu.Unlock()

	s.purgeStale()

	select {
	case id := <-cb.lost:
		if id != "abc" {
			t.Errorf("expected abc purged, got %s", id)
		}
	default:
		t.Fatal("short-ID server was not purged")
	}
}

func TestPurgeStale(t *testing.T) {
	cb := newRecordingCallback()
	s := NewService(DefaultPort, nil, cb)

	s.mu.Lock()
	s.lastSeen["dev-stale"] = time.Now().Add(-2 * StaleTimeout)
	s.lastSeen["dev-fresh"] = time.Now()
	s.mu.Unlock()

	s.purgeStale()

	select {
	case id := <-cb.lost:
		if id != "dev-stale" {
			t.Errorf("expected dev-stale purged, got %s", id)
		}
	default:
		t.Fatal("stale server was not purged")
	}

	s.mu.Lock()
	_, fresh := s.lastSeen["dev-fresh"]
	s.mu.Unlock()
	if !fresh {
		t.Error("fresh server was purged")
	}
}
