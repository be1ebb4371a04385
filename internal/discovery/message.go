package discovery

// MessageType identifies the discovery message type
type MessageType string

const (
	// MessageTypeAnnounce is sent periodically while a server runs
	MessageTypeAnnounce MessageType = "ANNOUNCE"
	// MessageTypeLeave is sent when a server shuts down gracefully
	MessageTypeLeave MessageType = "LEAVE"
)

// Message is the UDP broadcast payload (JSON encoded)
type Message struct {
	Type      MessageType    `json:"type"`
	Version   uint8          `json:"version"`
	Timestamp int64          `json:"ts"`
	Server    ServerAnnounce `json:"server"`
}

// ServerAnnounce describes a reachable remote desktop server
type ServerAnnounce struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	// Addr is the TCP endpoint speaking the framed protocol
	Addr string `json:"addr"`
	// TLS tells clients whether to wrap the connection
	TLS bool `json:"tls"`
}

// MaxMessageSize is the maximum UDP payload size (stay under MTU)
const MaxMessageSize = 1024

// ShortID abbreviates a device ID for display. Peer-supplied IDs come
// straight off the wire and may be arbitrarily short, so it truncates
// only when there is enough to cut.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
