package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies websocket envelope variants.
type EventType string

// Client -> server events.
const (
	TypeLogin         EventType = "login"
	TypeAgentRequest  EventType = "agent_request"
	TypeCancelRequest EventType = "cancel_request"
	TypeLogout        EventType = "logout"
)

// Server -> client events.
const (
	TypeLoginResponse        EventType = "login_response"
	TypeAgentRequestReceived EventType = "agent_request_received"
	TypeToolCall             EventType = "tool_call"
	TypeToolResult           EventType = "tool_result"
	TypeAgentOutput          EventType = "agent_output"
	TypeAgentResponse        EventType = "agent_response"
	TypeRequestCancelled     EventType = "request_cancelled"
	TypeTaskCancelled        EventType = "task_cancelled"
	TypeLogoutResponse       EventType = "logout_response"
	TypeError                EventType = "error"
)

// ErrMalformedEnvelope is returned by Decode when the bytes are not a JSON
// object carrying a string "event" key and an object (or absent) "data" key.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the single message unit exchanged in both directions.
type Envelope struct {
	Event EventType      `json:"event"`
	Data  map[string]any `json:"data"`
}

// Encode renders {"event": event, "data": data}. A nil data map is encoded as {}.
func Encode(event string, data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(Envelope{Event: EventType(event), Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return raw, nil
}

// Encode renders the envelope in wire form.
func (e Envelope) Encode() ([]byte, error) {
	return Encode(string(e.Event), e.Data)
}

// Decode parses one inbound envelope. Keys match exactly, so "Event" or
// "DATA" do not stand in for "event" and "data". A missing or null "data"
// yields an empty map.
func Decode(raw []byte) (string, map[string]any, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	var event *string
	if v, ok := fields["event"]; ok {
		if err := json.Unmarshal(v, &event); err != nil {
			return "", nil, fmt.Errorf("%w: event must be a string", ErrMalformedEnvelope)
		}
	}
	if event == nil {
		return "", nil, fmt.Errorf("%w: missing event", ErrMalformedEnvelope)
	}

	data := map[string]any{}
	trimmed := bytes.TrimSpace(fields["data"])
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &data); err != nil {
			return "", nil, fmt.Errorf("%w: data must be an object", ErrMalformedEnvelope)
		}
		if data == nil {
			data = map[string]any{}
		}
	}
	return *event, data, nil
}

// String reads a string field from a decoded payload. Missing or non-string
// values yield "".
func String(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
