package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

type networkPayload struct {
	Graph string `json:"graph"`
}

// StatusPayload answers network/getstatus and accompanies started/stopped.
type StatusPayload struct {
	Graph   string `json:"graph"`
	Running bool   `json:"running"`
	Started bool   `json:"started"`
	Time    string `json:"time,omitempty"`
}

// NetworkHandler starts, stops and reports runs.
type NetworkHandler struct {
	m *Manager
}

func (h *NetworkHandler) Handle(ctx context.Context, client ports.Client, msg Message) {
	var p networkPayload
	if err := msg.Bind(&p); err != nil {
		h.m.SendError(ctx, client, ProtocolNetwork, fmt.Sprintf("%s: invalid payload: %v", msg.Command, err))
		return
	}

	switch msg.Command {
	case "start":
		if err := h.m.ws.Run(ctx, p.Graph); err != nil {
			h.m.SendError(ctx, client, ProtocolNetwork, networkError("start", p.Graph, err))
			return
		}
		h.m.broadcast(ctx, ProtocolNetwork, "started", StatusPayload{
			Graph: p.Graph, Running: true, Started: true, Time: time.Now().UTC().Format(time.RFC3339),
		})
	case "stop":
		if err := h.m.ws.Stop(p.Graph); err != nil {
			h.m.SendError(ctx, client, ProtocolNetwork, networkError("stop", p.Graph, err))
			return
		}
	case "getstatus":
		running, err := h.m.ws.IsRunning(p.Graph)
		if err != nil {
			h.m.SendError(ctx, client, ProtocolNetwork, networkError("getstatus", p.Graph, err))
			return
		}
		h.m.reply(ctx, client, ProtocolNetwork, "status", StatusPayload{Graph: p.Graph, Running: running, Started: running})
	case "debug", "edges":
		h.m.SendError(ctx, client, ProtocolNetwork, msg.Command+" not supported")
	default:
		h.m.SendError(ctx, client, ProtocolNetwork, "unknown network command: "+msg.Command)
	}
}

// RunEnded broadcasts network/stopped once a run of graph is over.
func (m *Manager) RunEnded(ctx context.Context, graph string) {
	m.broadcast(ctx, ProtocolNetwork, "stopped", StatusPayload{
		Graph: graph, Time: time.Now().UTC().Format(time.RFC3339),
	})
}

func networkError(command, graph string, err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownGraph):
		return fmt.Sprintf("%s: unknown graph %q", command, graph)
	case errors.Is(err, domain.ErrAlreadyRunning):
		return fmt.Sprintf("%s: graph %q is already running", command, graph)
	}
	return fmt.Sprintf("%s: %v", command, err)
}
