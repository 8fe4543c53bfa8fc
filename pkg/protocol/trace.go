package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/weft/pkg/ports"
)

// maxTraceEvents bounds the trace buffer; older events are discarded.
const maxTraceEvents = 1000

// TraceEvent is one recorded node update.
type TraceEvent struct {
	Time     time.Time  `json:"time"`
	Protocol string     `json:"protocol"`
	Command  string     `json:"command"`
	Payload  NodeUpdate `json:"payload"`
}

type tracePayload struct {
	Graph     string       `json:"graph"`
	Flowtrace []TraceEvent `json:"flowtrace,omitempty"`
}

// TraceHandler records node updates while tracing is on.
type TraceHandler struct {
	m *Manager

	mu      sync.Mutex
	enabled bool
	events  []TraceEvent
}

func newTraceHandler(m *Manager) *TraceHandler {
	return &TraceHandler{m: m}
}

func (h *TraceHandler) Handle(ctx context.Context, client ports.Client, msg Message) {
	var p tracePayload
	if err := msg.Bind(&p); err != nil {
		h.m.SendError(ctx, client, ProtocolTrace, "invalid payload: "+err.Error())
		return
	}
	if p.Graph != "" && p.Graph != h.m.ws.UUID() {
		h.m.SendError(ctx, client, ProtocolTrace, "trace is only available for the workspace graph")
		return
	}

	h.mu.Lock()
	switch msg.Command {
	case "start":
		h.enabled = true
	case "stop":
		h.enabled = false
	case "clear":
		h.events = nil
	case "dump":
		p.Flowtrace = append([]TraceEvent(nil), h.events...)
	default:
		h.mu.Unlock()
		h.m.SendError(ctx, client, ProtocolTrace, "unknown trace command: "+msg.Command)
		return
	}
	h.mu.Unlock()

	p.Graph = h.m.ws.UUID()
	h.m.reply(ctx, client, ProtocolTrace, msg.Command, p)
}

func (h *TraceHandler) record(p NodeUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.enabled {
		return
	}
	h.events = append(h.events, TraceEvent{
		Time:     time.Now().UTC(),
		Protocol: ProtocolGraph,
		Command:  "changenode",
		Payload:  p,
	})
	if len(h.events) > maxTraceEvents {
		h.events = h.events[len(h.events)-maxTraceEvents:]
	}
}
