package protocol

import (
	"github.com/goccy/go-json"
)

// Protocol names.
const (
	ProtocolRuntime   = "runtime"
	ProtocolGraph     = "graph"
	ProtocolComponent = "component"
	ProtocolNetwork   = "network"
	ProtocolTrace     = "trace"
)

// CommandError is the command of every error envelope.
const CommandError = "error"

// Message is the protocol envelope.
type Message struct {
	Protocol string          `json:"protocol"`
	Command  string          `json:"command"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the payload of an error envelope.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessage builds an envelope, encoding payload.
func NewMessage(protocol, command string, payload any) (Message, error) {
	msg := Message{Protocol: protocol, Command: command}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return msg, err
	}
	msg.Payload = raw
	return msg, nil
}

// Decode parses an envelope.
func Decode(raw []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(raw, &msg)
	return msg, err
}

// Encode serializes an envelope.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Bind decodes the payload into v. An empty payload leaves v untouched.
func (m Message) Bind(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
