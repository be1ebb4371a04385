package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the fixed frame prefix: kind (4 bytes) then payload
	// length (4 bytes), both unsigned big-endian.
	HeaderSize = 8
	// MaxPayloadSize caps the declared payload length. A peer announcing
	// more than this is treated as a protocol violation.
	MaxPayloadSize = 64 * 1024 * 1024
)

var (
	// ErrTruncated means the stream ended inside a frame. Callers treat
	// it like a transport close, the framing can no longer be trusted.
	ErrTruncated = errors.New("protocol: truncated message")
	// ErrUnknownKind means the header carried a kind outside the closed set.
	ErrUnknownKind = errors.New("protocol: unknown message kind")
	// ErrOversized means the declared payload length exceeds MaxPayloadSize.
	ErrOversized = errors.New("protocol: payload length exceeds limit")
	// ErrBadPayload means the payload bytes were not a valid JSON document.
	ErrBadPayload = errors.New("protocol: malformed payload")
)

// Encode serializes a message as header || JSON payload. A nil payload
// encodes as an empty JSON object so the frame is always well formed.
func Encode(kind Kind, payload Payload) ([]byte, error) {
	if payload == nil {
		payload = Payload{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	buf := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(kind))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(body)))
	copy(buf[HeaderSize:], body)
	return buf, nil
}

// Decode reads exactly one message from r. It blocks until the full
// header and payload have been collected, looping over short reads.
// A stream that closes before the first header byte returns io.EOF;
// a stream that closes mid-frame returns ErrTruncated.
func Decode(r io.Reader) (Kind, Payload, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, ErrTruncated
	}

	kind := Kind(binary.BigEndian.Uint32(header[0:4]))
	length := binary.BigEndian.Uint32(header[4:8])

	if !kind.Valid() {
		return 0, nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint32(kind))
	}
	if length > MaxPayloadSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrOversized, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, ErrTruncated
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return kind, payload, nil
}
