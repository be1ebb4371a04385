package protocol

import (
	"bytes"
	"errors"
	"testing"
)

// viaWire pushes a payload through Encode/Decode so parsers see the
// same types a real receiver would (JSON numbers become float64).
func viaWire(t *testing.T, kind Kind, p Payload) Payload {
	t.Helper()
	data, err := Encode(kind, p)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	_, decoded, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return decoded
}

func TestScreenDataRoundTrip(t *testing.T) {
	frame := []byte{0x00, 0xFF, 0x10, 0x20, 0x30}
	p := viaWire(t, KindScreenData, ScreenDataPayload(frame))

	got, err := ParseScreenData(p)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("frame bytes mismatch: sent %x, got %x", frame, got)
	}
}

func TestParseScreenDataBadHex(t *testing.T) {
	_, err := ParseScreenData(Payload{"frame": "zz"})
	if !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload, got %v", err)
	}
	_, err = ParseScreenData(Payload{})
	if !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload for missing frame, got %v", err)
	}
}

func TestMouseEventRoundTrip(t *testing.T) {
	cases := []MouseEvent{
		{Action: MouseMove, X: 10, Y: 20},
		{Action: MouseClick, X: 5, Y: 6, Button: "left", SubAction: "down"},
		{Action: MouseClick, X: 5, Y: 6, Button: "right", SubAction: "up"},
		{Action: MouseScroll, X: 0, Y: 0, Amount: -3},
	}
	for _, want := range cases {
		p := viaWire(t, KindMouseEvent, want.Payload())
		got, err := ParseMouseEvent(p)
		if err != nil {
			t.Fatalf("%s: parse failed: %v", want.Action, err)
		}
		if got != want {
			t.Errorf("round trip mismatch: sent %+v, got %+v", want, got)
		}
	}
}

func TestParseMouseEventMalformed(t *testing.T) {
	cases := []struct {
		name string
		p    Payload
	}{
		{"missing action", Payload{"pos": []any{float64(1), float64(2)}}},
		{"bad action", Payload{"action": "teleport", "pos": []any{float64(1), float64(2)}}},
		{"missing pos", Payload{"action": "move"}},
		{"short pos", Payload{"action": "move", "pos": []any{float64(1)}}},
		{"non-numeric pos", Payload{"action": "move", "pos": []any{"a", "b"}}},
		{"click without button", Payload{"action": "click", "pos": []any{float64(1), float64(2)}, "sub_action": "down"}},
		{"click bad sub_action", Payload{"action": "click", "pos": []any{float64(1), float64(2)}, "button": "left", "sub_action": "hold"}},
		{"scroll without amount", Payload{"action": "scroll", "pos": []any{float64(0), float64(0)}}},
	}
	for _, tc := range cases {
		if _, err := ParseMouseEvent(tc.p); !errors.Is(err, ErrBadPayload) {
			t.Errorf("%s: expected ErrBadPayload, got %v", tc.name, err)
		}
	}
}

func TestKeyboardEventRoundTrip(t *testing.T) {
	for _, action := range []string{KeyDown, KeyUp, KeyPress, KeyWrite} {
		want := KeyboardEvent{Key: "enter", Action: action}
		got, err := ParseKeyboardEvent(viaWire(t, KindKeyboardEvent, want.Payload()))
		if err != nil {
			t.Fatalf("%s: parse failed: %v", action, err)
		}
		if got != want {
			t.Errorf("round trip mismatch: sent %+v, got %+v", want, got)
		}
	}

	if _, err := ParseKeyboardEvent(Payload{"key": "a", "action": "hold"}); !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload for unsupported action, got %v", err)
	}
	if _, err := ParseKeyboardEvent(Payload{"action": "down"}); !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload for missing key, got %v", err)
	}
}

func TestClipboardPayloads(t *testing.T) {
	_, isReq, err := ParseClipboard(viaWire(t, KindClipboardData, ClipboardRequestPayload()))
	if err != nil {
		t.Fatalf("parse request failed: %v", err)
	}
	if !isReq {
		t.Error("expected request=true")
	}

	text, isReq, err := ParseClipboard(viaWire(t, KindClipboardData, ClipboardDataPayload("copied text")))
	if err != nil {
		t.Fatalf("parse data failed: %v", err)
	}
	if isReq {
		t.Error("expected request=false for data payload")
	}
	if text != "copied text" {
		t.Errorf("expected 'copied text', got %q", text)
	}

	if _, _, err := ParseClipboard(Payload{}); !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload for empty clipboard payload, got %v", err)
	}
}

func TestAuthPayloads(t *testing.T) {
	req, err := ParseAuthRequest(viaWire(t, KindAuthRequest, AuthRequest{Username: "u", Password: "p"}.Payload()))
	if err != nil {
		t.Fatalf("parse auth request failed: %v", err)
	}
	if req.Username != "u" || req.Password != "p" {
		t.Errorf("unexpected auth request: %+v", req)
	}

	resp, err := ParseAuthResponse(viaWire(t, KindAuthResponse, AuthResponse{Success: false, Message: "bad credentials"}.Payload()))
	if err != nil {
		t.Fatalf("parse auth response failed: %v", err)
	}
	if resp.Success || resp.Message != "bad credentials" {
		t.Errorf("unexpected auth response: %+v", resp)
	}

	// Message is optional on success.
	resp, err = ParseAuthResponse(viaWire(t, KindAuthResponse, AuthResponse{Success: true}.Payload()))
	if err != nil {
		t.Fatalf("parse auth response failed: %v", err)
	}
	if !resp.Success || resp.Message != "" {
		t.Errorf("unexpected auth response: %+v", resp)
	}

	if _, err := ParseAuthResponse(Payload{"message": "no flag"}); !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload for missing success, got %v", err)
	}
}
