// Package protocol defines the wire format shared by the remotedesk
// server and client: a fixed 8-byte frame header followed by a JSON
// payload. Binary fields (screen frame bytes) are carried hex-encoded
// because the payload layer is text-based.
package protocol

import "fmt"

// Kind identifies the purpose of a message on the wire.
type Kind uint32

const (
	// KindScreenData carries one compressed screen frame, hex-encoded.
	KindScreenData Kind = 1
	// KindMouseEvent carries a mouse move/click/scroll from the client.
	KindMouseEvent Kind = 2
	// KindKeyboardEvent carries a key down/up/press/write from the client.
	KindKeyboardEvent Kind = 3
	// KindClipboardData carries clipboard text or a clipboard request.
	KindClipboardData Kind = 4
	// KindFileTransfer is reserved and never dispatched.
	KindFileTransfer Kind = 5
	// KindAuthRequest opens the authentication round trip.
	KindAuthRequest Kind = 6
	// KindAuthResponse answers an auth request with success/failure.
	KindAuthResponse Kind = 7
	// KindDisconnect announces an orderly shutdown of one side.
	KindDisconnect Kind = 8
)

// Payload is the self-describing message body. Values are restricted to
// what JSON can represent losslessly: strings, numbers, booleans, null,
// arrays and nested maps.
type Payload = map[string]any

// Valid reports whether k belongs to the closed kind set. Decoders must
// reject anything else rather than silently ignore it.
func (k Kind) Valid() bool {
	return k >= KindScreenData && k <= KindDisconnect
}

func (k Kind) String() string {
	switch k {
	case KindScreenData:
		return "screen-data"
	case KindMouseEvent:
		return "mouse-event"
	case KindKeyboardEvent:
		return "keyboard-event"
	case KindClipboardData:
		return "clipboard-data"
	case KindFileTransfer:
		return "file-transfer"
	case KindAuthRequest:
		return "auth-request"
	case KindAuthResponse:
		return "auth-response"
	case KindDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}
