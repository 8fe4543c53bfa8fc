package protocol

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// graphPayload is the union of every graph command payload.
type graphPayload struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name,omitempty"`
	Library     string          `json:"library,omitempty"`
	Description string          `json:"description,omitempty"`
	Component   string          `json:"component,omitempty"`
	Executable  *bool           `json:"executable,omitempty"`
	Metadata    domain.Metadata `json:"metadata,omitempty"`
	Graph       string          `json:"graph,omitempty"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	Src         portPayload     `json:"src"`
	Tgt         domain.PortRef  `json:"tgt"`
	Public      string          `json:"public,omitempty"`
	Node        string          `json:"node,omitempty"`
	Port        string          `json:"port,omitempty"`
	Nodes       []string        `json:"nodes,omitempty"`
}

// portPayload is an edge source, or the data of an initial packet.
type portPayload struct {
	domain.PortRef
	Data any `json:"data,omitempty"`
}

// NodeUpdate is the payload of graph/changenode.
type NodeUpdate struct {
	ID       string          `json:"id"`
	Metadata domain.Metadata `json:"metadata"`
	Graph    string          `json:"graph"`
}

// GraphHandler applies live edits to the workspace Flow. Each command maps
// to one Flow operation; success is broadcast with the unchanged payload and
// failure is answered to the requester only.
type GraphHandler struct {
	m *Manager
}

func (h *GraphHandler) Handle(ctx context.Context, client ports.Client, msg Message) {
	var p graphPayload
	if err := msg.Bind(&p); err != nil {
		h.m.SendError(ctx, client, ProtocolGraph, fmt.Sprintf("%s: invalid payload: %v", msg.Command, err))
		return
	}

	if msg.Command == "getgraph" {
		h.sendGraph(ctx, client)
		return
	}

	ok, known := h.apply(msg.Command, p)
	if !known {
		h.m.SendError(ctx, client, ProtocolGraph, fmt.Sprintf("unknown graph command: %s", msg.Command))
		return
	}
	if !ok {
		h.m.SendError(ctx, client, ProtocolGraph, fmt.Sprintf("%s failed: %s", msg.Command, describe(msg.Command, p)))
		return
	}
	h.m.SendToAll(ctx, Message{Protocol: ProtocolGraph, Command: msg.Command, Payload: msg.Payload})
}

func (h *GraphHandler) apply(command string, p graphPayload) (ok, known bool) {
	f := h.m.ws.Flow()
	switch command {
	case "clear":
		if p.ID != f.ID() {
			return false, true
		}
		f.Clear()
		if p.Description != "" {
			f.SetDescription(p.Description)
		}
		return true, true
	case "addnode":
		executable := p.Executable == nil || *p.Executable
		return f.AddNode(p.ID, p.Component, p.Metadata, p.Graph, executable), true
	case "removenode":
		return f.RemoveNode(p.ID, p.Graph), true
	case "renamenode":
		return f.RenameNode(p.From, p.To, p.Graph), true
	case "changenode":
		return f.ChangeNode(p.ID, p.Metadata, p.Graph), true
	case "addedge":
		return f.AddEdge(p.Src.PortRef, p.Tgt, p.Metadata, p.Graph), true
	case "removeedge":
		return f.RemoveEdge(p.Graph, p.Src.PortRef, p.Tgt), true
	case "changeedge":
		return f.ChangeEdge(p.Graph, p.Metadata, p.Src.PortRef, p.Tgt), true
	case "addinitial":
		return f.AddInitial(p.Graph, p.Metadata, p.Src.Data, p.Tgt), true
	case "removeinitial":
		return f.RemoveInitial(p.Graph, p.Tgt), true
	case "addinport":
		return f.AddInport(p.Graph, p.Public, domain.PortRef{Node: p.Node, Port: p.Port}), true
	case "removeinport":
		return f.RemoveInport(p.Graph, p.Public), true
	case "renameinport":
		return f.RenameInport(p.Graph, p.From, p.To), true
	case "addoutport":
		return f.AddOutport(p.Graph, p.Public, domain.PortRef{Node: p.Node, Port: p.Port}), true
	case "removeoutport":
		return f.RemoveOutport(p.Graph, p.Public), true
	case "renameoutport":
		return f.RenameOutport(p.Graph, p.From, p.To), true
	case "addgroup":
		return f.AddGroup(p.Name, p.Nodes, p.Metadata, p.Graph), true
	case "removegroup":
		return f.RemoveGroup(p.Name, p.Graph), true
	case "renamegroup":
		return f.RenameGroup(p.From, p.To, p.Graph), true
	case "changegroup":
		return f.ChangeGroup(p.Name, p.Metadata, p.Graph), true
	}
	return false, false
}

func describe(command string, p graphPayload) string {
	switch command {
	case "clear":
		return fmt.Sprintf("graph %q is not this workspace", p.ID)
	case "addnode":
		return fmt.Sprintf("cannot add node %q to graph %q", p.ID, p.Graph)
	case "removenode", "changenode":
		return fmt.Sprintf("no node %q in graph %q", p.ID, p.Graph)
	case "renamenode":
		return fmt.Sprintf("cannot rename node %q to %q in graph %q", p.From, p.To, p.Graph)
	case "addedge":
		return fmt.Sprintf("cannot connect %s.%s to %s.%s in graph %q", p.Src.Node, p.Src.Port, p.Tgt.Node, p.Tgt.Port, p.Graph)
	case "removeedge", "changeedge":
		return fmt.Sprintf("no edge %s.%s -> %s.%s in graph %q", p.Src.Node, p.Src.Port, p.Tgt.Node, p.Tgt.Port, p.Graph)
	case "addgroup":
		return fmt.Sprintf("cannot add group %q to graph %q", p.Name, p.Graph)
	case "removegroup", "changegroup":
		return fmt.Sprintf("no group %q in graph %q", p.Name, p.Graph)
	case "renamegroup":
		return fmt.Sprintf("cannot rename group %q to %q in graph %q", p.From, p.To, p.Graph)
	}
	return "invalid request"
}

// sendGraph replies with the whole Flow document.
func (h *GraphHandler) sendGraph(ctx context.Context, client ports.Client) {
	raw, err := json.Marshal(h.m.ws.Flow().Document())
	if err != nil {
		h.m.SendError(ctx, client, ProtocolGraph, err.Error())
		return
	}
	h.m.Send(ctx, client, Message{Protocol: ProtocolGraph, Command: "graph", Payload: raw})
}
