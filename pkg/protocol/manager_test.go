package protocol_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/protocol"
)

const wsID = "ws-1"

type recorder struct {
	id   string
	mu   sync.Mutex
	msgs []protocol.Message
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(_ context.Context, raw []byte) error {
	msg, err := protocol.Decode(raw)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) messages() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.msgs...)
}

func (r *recorder) last(t *testing.T) protocol.Message {
	t.Helper()
	msgs := r.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

type fakeWorkspace struct {
	flow    *domain.Flow
	clients []ports.Client
	running map[string]bool
}

func newFakeWorkspace(clients ...ports.Client) *fakeWorkspace {
	return &fakeWorkspace{
		flow:    domain.NewFlow(wsID, "demo", "core"),
		clients: clients,
		running: make(map[string]bool),
	}
}

func (w *fakeWorkspace) UUID() string            { return wsID }
func (w *fakeWorkspace) Name() string            { return "demo" }
func (w *fakeWorkspace) Library() string         { return "core" }
func (w *fakeWorkspace) Flow() *domain.Flow      { return w.flow }
func (w *fakeWorkspace) Clients() []ports.Client { return w.clients }

func (w *fakeWorkspace) Components() []ports.ComponentInfo {
	return []ports.ComponentInfo{{Name: "core/Pass"}, {Name: "core/Delay"}}
}

func (w *fakeWorkspace) Run(_ context.Context, graph string) error {
	if _, ok := w.flow.Graph(graph); !ok {
		return domain.ErrUnknownGraph
	}
	if w.running[graph] {
		return domain.ErrAlreadyRunning
	}
	w.running[graph] = true
	return nil
}

func (w *fakeWorkspace) Stop(graph string) error {
	if _, ok := w.flow.Graph(graph); !ok {
		return domain.ErrUnknownGraph
	}
	w.running[graph] = false
	return nil
}

func (w *fakeWorkspace) IsRunning(graph string) (bool, error) {
	if _, ok := w.flow.Graph(graph); !ok {
		return false, domain.ErrUnknownGraph
	}
	return w.running[graph], nil
}

func envelope(t *testing.T, protocolName, command string, payload any) []byte {
	t.Helper()
	msg, err := protocol.NewMessage(protocolName, command, payload)
	require.NoError(t, err)
	raw, err := msg.Encode()
	require.NoError(t, err)
	return raw
}

func errorText(t *testing.T, msg protocol.Message) string {
	t.Helper()
	require.Equal(t, protocol.CommandError, msg.Command)
	var p protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p.Message
}

func TestManager_DropsUnknownProtocol(t *testing.T) {
	sender := &recorder{id: "a"}
	other := &recorder{id: "b"}
	m := protocol.NewManager(newFakeWorkspace(sender, other))

	m.Handle(context.Background(), sender, envelope(t, "bogus", "anything", nil))
	m.Handle(context.Background(), sender, []byte("{not json"))

	assert.Empty(t, sender.messages())
	assert.Empty(t, other.messages())
}

func TestManager_ErrorEnvelope(t *testing.T) {
	sender := &recorder{id: "a"}
	other := &recorder{id: "b"}
	m := protocol.NewManager(newFakeWorkspace(sender, other))

	m.SendError(context.Background(), sender, protocol.ProtocolGraph, "nope")
	msg := sender.last(t)
	assert.Equal(t, protocol.ProtocolGraph, msg.Protocol)
	assert.Equal(t, "nope", errorText(t, msg))
	assert.Empty(t, other.messages())

	m.SendErrorToAll(context.Background(), protocol.ProtocolNetwork, "everyone")
	assert.Equal(t, "everyone", errorText(t, sender.last(t)))
	assert.Equal(t, "everyone", errorText(t, other.last(t)))

	raw, err := sender.last(t).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"protocol":"network","command":"error","payload":{"message":"everyone"}}`, string(raw))
}

func TestManager_SendNodeUpdate(t *testing.T) {
	client := &recorder{id: "a"}
	ws := newFakeWorkspace(client)
	require.True(t, ws.flow.AddNode("n1", "core/Pass", domain.Metadata{"x": 1.0}, wsID, true))
	n, _ := ws.flow.Node("n1", wsID)
	n.SetState(domain.NodeRunning)

	m := protocol.NewManager(ws)
	m.SendNodeUpdate(context.Background(), n)

	msg := client.last(t)
	assert.Equal(t, protocol.ProtocolGraph, msg.Protocol)
	assert.Equal(t, "changenode", msg.Command)
	assert.JSONEq(t, fmt.Sprintf(`{"id":"n1","graph":%q,"metadata":{"x":1,"state":"running"}}`, wsID), string(msg.Payload))

	// The stored metadata is not polluted by the state.
	assert.NotContains(t, n.Metadata(), domain.KeyState)
}

func TestRuntimeHandler(t *testing.T) {
	client := &recorder{id: "a"}
	m := protocol.NewManager(newFakeWorkspace(client), protocol.WithVersion("1.2.3"))

	m.Handle(context.Background(), client, envelope(t, "runtime", "getruntime", nil))
	msg := client.last(t)
	assert.Equal(t, "runtime", msg.Command)
	var p protocol.RuntimePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, "1.2.3", p.Version)
	assert.Equal(t, wsID, p.Graph)
	assert.Equal(t, "core", p.Library)

	m.Handle(context.Background(), client, envelope(t, "runtime", "packet", nil))
	assert.Contains(t, errorText(t, client.last(t)), "not supported")
}

func TestComponentHandler(t *testing.T) {
	client := &recorder{id: "a"}
	m := protocol.NewManager(newFakeWorkspace(client))

	m.Handle(context.Background(), client, envelope(t, "component", "list", nil))
	msgs := client.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "component", msgs[0].Command)
	assert.Equal(t, "componentsready", msgs[2].Command)
	assert.Equal(t, "2", string(msgs[2].Payload))
}

func TestNetworkHandler(t *testing.T) {
	sender := &recorder{id: "a"}
	other := &recorder{id: "b"}
	ws := newFakeWorkspace(sender, other)
	m := protocol.NewManager(ws)
	ctx := context.Background()

	m.Handle(ctx, sender, envelope(t, "network", "start", map[string]string{"graph": wsID}))
	assert.Equal(t, "started", other.last(t).Command)

	m.Handle(ctx, sender, envelope(t, "network", "start", map[string]string{"graph": wsID}))
	assert.Contains(t, errorText(t, sender.last(t)), "already running")

	m.Handle(ctx, sender, envelope(t, "network", "getstatus", map[string]string{"graph": wsID}))
	var status protocol.StatusPayload
	require.NoError(t, json.Unmarshal(sender.last(t).Payload, &status))
	assert.True(t, status.Running)

	m.Handle(ctx, sender, envelope(t, "network", "stop", map[string]string{"graph": wsID}))
	m.RunEnded(ctx, wsID)
	assert.Equal(t, "stopped", other.last(t).Command)

	m.Handle(ctx, sender, envelope(t, "network", "start", map[string]string{"graph": "missing"}))
	assert.Contains(t, errorText(t, sender.last(t)), "unknown graph")
}

func TestTraceHandler(t *testing.T) {
	client := &recorder{id: "a"}
	ws := newFakeWorkspace(client)
	require.True(t, ws.flow.AddNode("n1", "core/Pass", nil, wsID, true))
	n, _ := ws.flow.Node("n1", wsID)
	m := protocol.NewManager(ws)
	ctx := context.Background()

	m.SendNodeUpdate(ctx, n) // not traced yet
	m.Handle(ctx, client, envelope(t, "trace", "start", map[string]string{"graph": wsID}))
	m.SendNodeUpdate(ctx, n)
	m.Handle(ctx, client, envelope(t, "trace", "dump", map[string]string{"graph": wsID}))

	var dump struct {
		Flowtrace []protocol.TraceEvent `json:"flowtrace"`
	}
	require.NoError(t, json.Unmarshal(client.last(t).Payload, &dump))
	require.Len(t, dump.Flowtrace, 1)
	assert.Equal(t, "n1", dump.Flowtrace[0].Payload.ID)

	m.Handle(ctx, client, envelope(t, "trace", "clear", nil))
	m.Handle(ctx, client, envelope(t, "trace", "dump", nil))
	dump.Flowtrace = nil
	require.NoError(t, json.Unmarshal(client.last(t).Payload, &dump))
	assert.Empty(t, dump.Flowtrace)
}
