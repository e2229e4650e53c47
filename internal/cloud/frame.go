// Package cloud defines the wire format and client interface for the
// optional CloudEscalationClient a LogicBackend may route to. The mTLS
// tunnel, billing, LoRA upload, and collaborator-invite flows that a real
// deployment needs around this are explicitly out of scope for the core;
// this package owns only the frame codec and the interface the core
// consumes.
package cloud

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// FrameType tags the payload carried by a Frame.
type FrameType byte

// Supported frame types.
const (
	FrameRequest  FrameType = 0x01
	FrameResponse FrameType = 0x02
	FrameError    FrameType = 0x03
)

// MaxPayloadBytes bounds a single frame's payload before any allocation,
// so a malicious or corrupt length prefix can't be used to exhaust memory.
const MaxPayloadBytes = 10 * 1024 * 1024

// Frame is a length-prefixed envelope: 1-byte type tag, 4-byte big-endian
// length, JSON payload.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// EscalationRequest is the JSON payload of a FrameRequest.
type EscalationRequest struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
	Model     string `json:"model,omitempty"`
}

// EscalationResponse is the JSON payload of a FrameResponse.
type EscalationResponse struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

// WriteFrame encodes typ/payload and writes the envelope to w.
func WriteFrame(w io.Writer, typ FrameType, payload []byte) error {
	if len(payload) > MaxPayloadBytes {
		return fmt.Errorf("cloud: frame payload %d bytes exceeds max %d", len(payload), MaxPayloadBytes)
	}
	header := make([]byte, 5)
	header[0] = byte(typ)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("cloud: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("cloud: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r. The declared length is bounds-checked
// against MaxPayloadBytes before any payload buffer is allocated.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, fmt.Errorf("cloud: read frame header: %w", err)
	}
	typ := FrameType(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxPayloadBytes {
		return Frame{}, fmt.Errorf("cloud: declared frame length %d exceeds max %d", length, MaxPayloadBytes)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("cloud: read frame payload: %w", err)
	}
	return Frame{Type: typ, Payload: payload}, nil
}

// WriteRequest marshals req as JSON and writes it as a FrameRequest.
func WriteRequest(w io.Writer, req EscalationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("cloud: marshal request: %w", err)
	}
	return WriteFrame(w, FrameRequest, body)
}

// ReadResponse reads one frame from r and decodes it as an
// EscalationResponse; a FrameError frame is surfaced as a plain error.
func ReadResponse(r io.Reader) (EscalationResponse, error) {
	frame, err := ReadFrame(r)
	if err != nil {
		return EscalationResponse{}, err
	}
	switch frame.Type {
	case FrameResponse:
		var resp EscalationResponse
		if err := json.Unmarshal(frame.Payload, &resp); err != nil {
			return EscalationResponse{}, fmt.Errorf("cloud: decode response: %w", err)
		}
		return resp, nil
	case FrameError:
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(frame.Payload, &msg)
		return EscalationResponse{}, fmt.Errorf("cloud: escalation error: %s", msg.Message)
	default:
		return EscalationResponse{}, fmt.Errorf("cloud: unexpected frame type %d", frame.Type)
	}
}

// Client is the CloudEscalationClient external interface: a LogicBackend
// may route generation requests to a remote cloud model over this
// interface instead of the local LocalModel chain. Neither Intent nor
// Truth ever escalates.
type Client interface {
	Escalate(req EscalationRequest) (EscalationResponse, error)
}
