package protocol

import (
	"context"

	"github.com/aretw0/weft/pkg/ports"
)

// RuntimePayload describes this runtime to clients.
type RuntimePayload struct {
	Type         string   `json:"type"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	Graph        string   `json:"graph"`
	Label        string   `json:"label"`
	Library      string   `json:"library"`
}

var capabilities = []string{
	"protocol:graph",
	"protocol:component",
	"protocol:network",
	"protocol:runtime",
	"network:control",
	"network:status",
	"graph:readonly",
}

// RuntimeHandler answers runtime queries.
type RuntimeHandler struct {
	m *Manager
}

func (h *RuntimeHandler) Handle(ctx context.Context, client ports.Client, msg Message) {
	switch msg.Command {
	case "getruntime":
		h.m.reply(ctx, client, ProtocolRuntime, "runtime", RuntimePayload{
			Type:         "weft",
			Version:      h.m.version,
			Capabilities: capabilities,
			Graph:        h.m.ws.UUID(),
			Label:        h.m.ws.Name(),
			Library:      h.m.ws.Library(),
		})
	case "packet":
		h.m.SendError(ctx, client, ProtocolRuntime, "packet not supported")
	default:
		h.m.SendError(ctx, client, ProtocolRuntime, "unknown runtime command: "+msg.Command)
	}
}
