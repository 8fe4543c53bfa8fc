package protocol

import (
	"context"

	"github.com/aretw0/weft/pkg/ports"
)

// ComponentHandler lists the component library.
type ComponentHandler struct {
	m *Manager
}

func (h *ComponentHandler) Handle(ctx context.Context, client ports.Client, msg Message) {
	switch msg.Command {
	case "list":
		components := h.m.ws.Components()
		for _, c := range components {
			h.m.reply(ctx, client, ProtocolComponent, "component", c)
		}
		h.m.reply(ctx, client, ProtocolComponent, "componentsready", len(components))
	case "getsource", "source":
		h.m.SendError(ctx, client, ProtocolComponent, msg.Command+" not supported")
	default:
		h.m.SendError(ctx, client, ProtocolComponent, "unknown component command: "+msg.Command)
	}
}
