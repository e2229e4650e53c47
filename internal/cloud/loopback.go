package cloud

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Loopback is an in-memory Client that round-trips requests through the
// frame codec without any network transport, for exercising the wire
// format and LogicBackend wiring in tests.
type Loopback struct {
	Handler func(EscalationRequest) EscalationResponse
}

func (l *Loopback) Escalate(req EscalationRequest) (EscalationResponse, error) {
	var wire bytes.Buffer
	if err := WriteRequest(&wire, req); err != nil {
		return EscalationResponse{}, err
	}

	frame, err := ReadFrame(&wire)
	if err != nil {
		return EscalationResponse{}, err
	}
	var decoded EscalationRequest
	if err := json.Unmarshal(frame.Payload, &decoded); err != nil {
		return EscalationResponse{}, fmt.Errorf("cloud: decode looped request: %w", err)
	}

	resp := l.Handler(decoded)

	respBody, err := json.Marshal(resp)
	if err != nil {
		return EscalationResponse{}, fmt.Errorf("cloud: marshal looped response: %w", err)
	}
	var respWire bytes.Buffer
	if err := WriteFrame(&respWire, FrameResponse, respBody); err != nil {
		return EscalationResponse{}, err
	}
	return ReadResponse(&respWire)
}

var _ Client = (*Loopback)(nil)
