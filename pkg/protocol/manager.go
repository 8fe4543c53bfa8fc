package protocol

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Workspace is what the handlers need from the workspace owning the Manager.
type Workspace interface {
	UUID() string
	Name() string
	Library() string
	Flow() *domain.Flow
	Clients() []ports.Client
	Components() []ports.ComponentInfo

	// Run starts a run of graph in the background.
	Run(ctx context.Context, graph string) error
	// Stop stops the active run of graph.
	Stop(graph string) error
	IsRunning(graph string) (bool, error)
}

// Handler processes the messages of one protocol.
type Handler interface {
	Handle(ctx context.Context, client ports.Client, msg Message)
}

// Manager routes inbound messages and provides the outbound primitives.
type Manager struct {
	ws       Workspace
	logger   *slog.Logger
	version  string
	handlers map[string]Handler
	trace    *TraceHandler
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithVersion sets the version reported by runtime/getruntime.
func WithVersion(v string) Option {
	return func(m *Manager) {
		m.version = v
	}
}

// NewManager creates the Manager of a workspace.
func NewManager(ws Workspace, opts ...Option) *Manager {
	m := &Manager{
		ws:      ws,
		logger:  logging.NewNop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(m)
	}
	m.trace = newTraceHandler(m)
	m.handlers = map[string]Handler{
		ProtocolRuntime:   &RuntimeHandler{m: m},
		ProtocolGraph:     &GraphHandler{m: m},
		ProtocolComponent: &ComponentHandler{m: m},
		ProtocolNetwork:   &NetworkHandler{m: m},
		ProtocolTrace:     m.trace,
	}
	return m
}

// Handle decodes and dispatches one inbound message. Undecodable messages
// and unknown protocols are logged and dropped without a reply.
func (m *Manager) Handle(ctx context.Context, client ports.Client, raw []byte) {
	msg, err := Decode(raw)
	if err != nil {
		m.logger.WarnContext(ctx, "dropping undecodable message", "workspace", m.ws.UUID(), "error", err)
		return
	}
	m.Dispatch(ctx, client, msg)
}

// Dispatch routes an already decoded message.
func (m *Manager) Dispatch(ctx context.Context, client ports.Client, msg Message) {
	h, ok := m.handlers[msg.Protocol]
	if !ok {
		m.logger.WarnContext(ctx, "received message for unknown protocol",
			"workspace", m.ws.UUID(), "protocol", msg.Protocol, "command", msg.Command)
		return
	}
	h.Handle(ctx, client, msg)
}

// Send replies to a single client.
func (m *Manager) Send(ctx context.Context, client ports.Client, msg Message) {
	if client == nil {
		return
	}
	raw, err := msg.Encode()
	if err != nil {
		m.logger.ErrorContext(ctx, "encode message", "protocol", msg.Protocol, "command", msg.Command, "error", err)
		return
	}
	if err := client.Send(ctx, raw); err != nil {
		m.logger.WarnContext(ctx, "send to client failed", "client", client.ID(), "error", err)
	}
}

// SendToAll broadcasts to every client connected to the workspace.
func (m *Manager) SendToAll(ctx context.Context, msg Message) {
	raw, err := msg.Encode()
	if err != nil {
		m.logger.ErrorContext(ctx, "encode message", "protocol", msg.Protocol, "command", msg.Command, "error", err)
		return
	}
	for _, c := range m.ws.Clients() {
		if err := c.Send(ctx, raw); err != nil {
			m.logger.WarnContext(ctx, "broadcast to client failed", "client", c.ID(), "error", err)
		}
	}
}

// reply encodes payload and sends it to client.
func (m *Manager) reply(ctx context.Context, client ports.Client, protocol, command string, payload any) {
	msg, err := NewMessage(protocol, command, payload)
	if err != nil {
		m.SendError(ctx, client, protocol, fmt.Sprintf("%s: %v", command, err))
		return
	}
	m.Send(ctx, client, msg)
}

// broadcast encodes payload and sends it to every client.
func (m *Manager) broadcast(ctx context.Context, protocol, command string, payload any) {
	msg, err := NewMessage(protocol, command, payload)
	if err != nil {
		m.logger.ErrorContext(ctx, "encode broadcast", "command", command, "error", err)
		return
	}
	m.SendToAll(ctx, msg)
}

func errorMessage(protocol, message string) Message {
	msg, _ := NewMessage(protocol, CommandError, ErrorPayload{Message: message})
	return msg
}

// SendError replies with an error envelope.
func (m *Manager) SendError(ctx context.Context, client ports.Client, protocol, message string) {
	m.Send(ctx, client, errorMessage(protocol, message))
}

// SendErrorToAll broadcasts an error envelope.
func (m *Manager) SendErrorToAll(ctx context.Context, protocol, message string) {
	m.SendToAll(ctx, errorMessage(protocol, message))
}

// SendNodeUpdate broadcasts graph/changenode with the node's current
// metadata and execution state, and records it in the trace buffer.
func (m *Manager) SendNodeUpdate(ctx context.Context, node *domain.Node) {
	metadata := node.Metadata()
	metadata[domain.KeyState] = node.State().String()
	payload := NodeUpdate{
		ID:       node.ID(),
		Metadata: metadata,
		Graph:    node.Graph(),
	}
	m.trace.record(payload)
	m.broadcast(ctx, ProtocolGraph, "changenode", payload)
}
