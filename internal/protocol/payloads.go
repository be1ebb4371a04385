package protocol

import (
	"encoding/hex"
	"fmt"
)

// Mouse actions accepted on the wire.
const (
	MouseMove   = "move"
	MouseClick  = "click"
	MouseScroll = "scroll"
)

// Keyboard actions accepted on the wire.
const (
	KeyDown  = "down"
	KeyUp    = "up"
	KeyPress = "press"
	KeyWrite = "write"
)

// MouseEvent is the decoded shape of a mouse-event payload.
type MouseEvent struct {
	Action    string
	X, Y      int
	Button    string // left, right, middle; click only
	SubAction string // down or up; click only
	Amount    int    // scroll only
}

// KeyboardEvent is the decoded shape of a keyboard-event payload.
type KeyboardEvent struct {
	Key    string
	Action string
}

// AuthRequest is the decoded shape of an auth-request payload.
type AuthRequest struct {
	Username string
	Password string
}

// AuthResponse is the decoded shape of an auth-response payload.
type AuthResponse struct {
	Success bool
	Message string
}

// ScreenDataPayload wraps compressed frame bytes for transmission. The
// payload layer is JSON, so the bytes travel as a hex string.
func ScreenDataPayload(frame []byte) Payload {
	return Payload{"frame": hex.EncodeToString(frame)}
}

// ParseScreenData extracts and decodes the frame bytes.
func ParseScreenData(p Payload) ([]byte, error) {
	raw, err := stringField(p, "frame")
	if err != nil {
		return nil, err
	}
	frame, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: frame is not valid hex: %v", ErrBadPayload, err)
	}
	return frame, nil
}

// Payload converts the event to its wire shape.
func (e MouseEvent) Payload() Payload {
	p := Payload{
		"action": e.Action,
		"pos":    []any{e.X, e.Y},
	}
	switch e.Action {
	case MouseClick:
		p["button"] = e.Button
		p["sub_action"] = e.SubAction
	case MouseScroll:
		p["amount"] = e.Amount
	}
	return p
}

// ParseMouseEvent validates a mouse-event payload. Field presence is
// checked here so handlers never trip over missing keys.
func ParseMouseEvent(p Payload) (MouseEvent, error) {
	var e MouseEvent
	action, err := stringField(p, "action")
	if err != nil {
		return e, err
	}
	e.Action = action

	switch action {
	case MouseMove, MouseClick, MouseScroll:
	default:
		return e, fmt.Errorf("%w: unsupported mouse action %q", ErrBadPayload, action)
	}

	e.X, e.Y, err = posField(p)
	if err != nil {
		return e, err
	}

	if action == MouseClick {
		if e.Button, err = stringField(p, "button"); err != nil {
			return e, err
		}
		if e.SubAction, err = stringField(p, "sub_action"); err != nil {
			return e, err
		}
		if e.SubAction != KeyDown && e.SubAction != KeyUp {
			return e, fmt.Errorf("%w: sub_action must be down or up", ErrBadPayload)
		}
	}
	if action == MouseScroll {
		if e.Amount, err = intField(p, "amount"); err != nil {
			return e, err
		}
	}
	return e, nil
}

// Payload converts the event to its wire shape.
func (e KeyboardEvent) Payload() Payload {
	return Payload{"key": e.Key, "action": e.Action}
}

// ParseKeyboardEvent validates a keyboard-event payload.
func ParseKeyboardEvent(p Payload) (KeyboardEvent, error) {
	var e KeyboardEvent
	var err error
	if e.Key, err = stringField(p, "key"); err != nil {
		return e, err
	}
	if e.Action, err = stringField(p, "action"); err != nil {
		return e, err
	}
	switch e.Action {
	case KeyDown, KeyUp, KeyPress, KeyWrite:
		return e, nil
	}
	return e, fmt.Errorf("%w: unsupported key action %q", ErrBadPayload, e.Action)
}

// ClipboardRequestPayload asks the peer for its clipboard contents.
func ClipboardRequestPayload() Payload {
	return Payload{"request": true}
}

// ClipboardDataPayload carries clipboard text to the peer.
func ClipboardDataPayload(text string) Payload {
	return Payload{"data": text}
}

// ParseClipboard returns (text, isRequest, err). A payload with
// request=true has no data; otherwise data must be present.
func ParseClipboard(p Payload) (string, bool, error) {
	if req, ok := p["request"].(bool); ok && req {
		return "", true, nil
	}
	text, err := stringField(p, "data")
	return text, false, err
}

// Payload converts the request to its wire shape.
func (a AuthRequest) Payload() Payload {
	return Payload{"username": a.Username, "password": a.Password}
}

// ParseAuthRequest validates an auth-request payload.
func ParseAuthRequest(p Payload) (AuthRequest, error) {
	var a AuthRequest
	var err error
	if a.Username, err = stringField(p, "username"); err != nil {
		return a, err
	}
	if a.Password, err = stringField(p, "password"); err != nil {
		return a, err
	}
	return a, nil
}

// Payload converts the response to its wire shape.
func (a AuthResponse) Payload() Payload {
	p := Payload{"success": a.Success}
	if a.Message != "" {
		p["message"] = a.Message
	}
	return p
}

// ParseAuthResponse validates an auth-response payload. The message
// field is optional.
func ParseAuthResponse(p Payload) (AuthResponse, error) {
	var a AuthResponse
	success, ok := p["success"].(bool)
	if !ok {
		return a, fmt.Errorf("%w: missing or non-boolean success", ErrBadPayload)
	}
	a.Success = success
	if msg, ok := p["message"].(string); ok {
		a.Message = msg
	}
	return a, nil
}

func stringField(p Payload, key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrBadPayload, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a string", ErrBadPayload, key)
	}
	return s, nil
}

// intField accepts float64 because JSON numbers decode that way, and
// int for payloads built locally and never serialized.
func intField(p Payload, key string) (int, error) {
	switch v := p[key].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case nil:
		return 0, fmt.Errorf("%w: missing %q", ErrBadPayload, key)
	default:
		return 0, fmt.Errorf("%w: %q is not a number", ErrBadPayload, key)
	}
}

func posField(p Payload) (int, int, error) {
	v, ok := p["pos"]
	if !ok {
		return 0, 0, fmt.Errorf("%w: missing \"pos\"", ErrBadPayload)
	}
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return 0, 0, fmt.Errorf("%w: \"pos\" is not a [x, y] pair", ErrBadPayload)
	}
	x, err := coordinate(arr[0])
	if err != nil {
		return 0, 0, err
	}
	y, err := coordinate(arr[1])
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func coordinate(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("%w: coordinate is not a number", ErrBadPayload)
	}
}
