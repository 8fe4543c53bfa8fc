package workspace_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/protocol"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/workspace"
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

func (r *recorder) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Protocol + "/" + m.Command
	}
	return out
}

// stopLibrary wraps the core components and records StopNode calls.
type stopLibrary struct {
	*registry.Registry
	mu      sync.Mutex
	stopped []string
}

func (l *stopLibrary) StopNode(_ context.Context, _ string, nodeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = append(l.stopped, nodeID)
	return nil
}

func (l *stopLibrary) stoppedNodes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.stopped...)
}

// lingeringLibrary runs the core components with two exceptions. The first
// run of node a ignores cancellation until linger is closed, then closes
// returned. Node b waits for proceed.
type lingeringLibrary struct {
	*registry.Registry
	lingered atomic.Bool
	started  chan struct{}
	linger   chan struct{}
	returned chan struct{}
	proceed  chan struct{}
}

func newLingeringLibrary() *lingeringLibrary {
	return &lingeringLibrary{
		Registry: registry.NewCore(),
		started:  make(chan struct{}),
		linger:   make(chan struct{}),
		returned: make(chan struct{}),
		proceed:  make(chan struct{}),
	}
}

func (l *lingeringLibrary) RunComponent(ctx context.Context, req ports.ComponentRequest) error {
	switch {
	case req.NodeID == "a" && l.lingered.CompareAndSwap(false, true):
		close(l.started)
		<-l.linger
		close(l.returned)
		return nil
	case req.NodeID == "b":
		select {
		case <-l.proceed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return l.Registry.RunComponent(ctx, req)
}

var slow = domain.Metadata{domain.KeyComponentOverrides: map[string]any{"delay": "5s"}}

func chainFlow(t *testing.T, component string, metadata domain.Metadata) *domain.Flow {
	t.Helper()
	f := domain.NewFlow(wsID, "demo", registry.CoreLibrary)
	require.True(t, f.AddNode("a", component, metadata, wsID, true))
	require.True(t, f.AddNode("b", "core/Pass", nil, wsID, true))
	require.True(t, f.AddEdge(domain.PortRef{Node: "a", Port: "out"}, domain.PortRef{Node: "b", Port: "in"}, nil, wsID))
	return f
}

func open(t *testing.T, f *domain.Flow, lib workspace.Library) *workspace.Workspace {
	t.Helper()
	ws := workspace.New(f, workspace.WithLibrary(lib))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ws.Close(ctx)
	})
	return ws
}

func envelope(t *testing.T, protocolName, command string, payload any) []byte {
	t.Helper()
	msg, err := protocol.NewMessage(protocolName, command, payload)
	require.NoError(t, err)
	raw, err := msg.Encode()
	require.NoError(t, err)
	return raw
}

func TestWorkspace_DoSerializesJobs(t *testing.T) {
	ws := open(t, domain.NewFlow(wsID, "demo", "core"), registry.NewCore())
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ws.Do(ctx, func(context.Context) error {
				v := counter
				time.Sleep(100 * time.Microsecond)
				counter = v + 1
				return nil
			}))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestWorkspace_DoReturnsJobErrorAndRecoversPanics(t *testing.T) {
	ws := open(t, domain.NewFlow(wsID, "demo", "core"), registry.NewCore())
	ctx := context.Background()

	boom := errors.New("boom")
	assert.ErrorIs(t, ws.Do(ctx, func(context.Context) error { return boom }), boom)
	assert.ErrorContains(t, ws.Do(ctx, func(context.Context) error { panic("oops") }), "panicked")
	assert.NoError(t, ws.Do(ctx, func(context.Context) error { return nil }), "actor survives a panic")
}

func TestWorkspace_DoAfterClose(t *testing.T) {
	ws := workspace.New(domain.NewFlow(wsID, "demo", "core"))
	require.NoError(t, ws.Close(context.Background()))

	err := ws.Do(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, workspace.ErrClosed)
	assert.ErrorIs(t, ws.Run(context.Background(), wsID), workspace.ErrClosed)
}

func TestWorkspace_ExecuteRunsChain(t *testing.T) {
	f := chainFlow(t, "core/Pass", nil)
	ws := open(t, f, registry.NewCore())
	client := &recorder{id: "c1"}
	ws.Connect(client)

	require.NoError(t, ws.Execute(context.Background(), wsID))

	for _, id := range []string{"a", "b"} {
		n, ok := f.Node(id, wsID)
		require.True(t, ok)
		assert.Equal(t, domain.NodeFinished, n.State(), id)
	}
	running, err := ws.IsRunning(wsID)
	require.NoError(t, err)
	assert.False(t, running)

	cmds := client.commands()
	assert.Equal(t, []string{
		"graph/changenode", "graph/changenode",
		"graph/changenode", "graph/changenode",
		"network/stopped",
	}, cmds)
}

func TestWorkspace_ExecuteCancelStops(t *testing.T) {
	ws := open(t, chainFlow(t, "core/Delay", slow), registry.NewCore())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := ws.Execute(ctx, wsID)
	assert.ErrorIs(t, err, runtime.ErrStopped)
}

func TestWorkspace_RunAndStop(t *testing.T) {
	f := chainFlow(t, "core/Delay", slow)
	ws := open(t, f, registry.NewCore())
	ctx := context.Background()

	require.NoError(t, ws.Run(ctx, wsID))
	assert.Eventually(t, func() bool {
		running, _ := ws.IsRunning(wsID)
		return running
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, ws.Run(ctx, wsID), domain.ErrAlreadyRunning)

	require.NoError(t, ws.Stop(wsID))
	assert.Eventually(t, func() bool {
		running, _ := ws.IsRunning(wsID)
		return !running
	}, time.Second, 5*time.Millisecond)

	a, _ := f.Node("a", wsID)
	b, _ := f.Node("b", wsID)
	assert.Eventually(t, func() bool { return a.State() == domain.NodeInterrupted }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.NodeIdle, b.State())

	// The scope can run again once the previous run is gone.
	assert.Eventually(t, func() bool { return ws.Run(ctx, wsID) == nil }, time.Second, 5*time.Millisecond)
	require.NoError(t, ws.Stop(wsID))
}

func TestWorkspace_StopIdleGraphIsNoop(t *testing.T) {
	ws := open(t, chainFlow(t, "core/Pass", nil), registry.NewCore())
	assert.NoError(t, ws.Stop(wsID))
}

func TestWorkspace_UnknownGraph(t *testing.T) {
	ws := open(t, chainFlow(t, "core/Pass", nil), registry.NewCore())
	ctx := context.Background()

	assert.ErrorIs(t, ws.Run(ctx, "missing"), domain.ErrUnknownGraph)
	assert.ErrorIs(t, ws.Execute(ctx, "missing"), domain.ErrUnknownGraph)
	assert.ErrorIs(t, ws.Stop("missing"), domain.ErrUnknownGraph)
	_, err := ws.IsRunning("missing")
	assert.ErrorIs(t, err, domain.ErrUnknownGraph)
}

func TestWorkspace_GroupRun(t *testing.T) {
	f := chainFlow(t, "core/Pass", nil)
	require.True(t, f.AddNode("c", "core/Pass", nil, wsID, true))
	require.True(t, f.AddGroup("only-c", []string{"c"}, nil, wsID))
	ws := open(t, f, registry.NewCore())

	require.NoError(t, ws.Execute(context.Background(), "only-c"))

	a, _ := f.Node("a", wsID)
	c, _ := f.Node("c", wsID)
	assert.Equal(t, domain.NodeFinished, c.State())
	assert.Equal(t, domain.NodeIdle, a.State(), "nodes outside the group are not scheduled")
}

func TestWorkspace_GroupRunStaysInScope(t *testing.T) {
	f := chainFlow(t, "core/Pass", nil)
	require.True(t, f.AddNode("c", "core/Pass", nil, wsID, true))
	require.True(t, f.AddEdge(domain.PortRef{Node: "b", Port: "out"}, domain.PortRef{Node: "c", Port: "in"}, nil, wsID))
	require.True(t, f.AddGroup("ab", []string{"a", "b"}, nil, wsID))
	ws := open(t, f, registry.NewCore())

	require.NoError(t, ws.Execute(context.Background(), "ab"))

	b, _ := f.Node("b", wsID)
	c, _ := f.Node("c", wsID)
	assert.Equal(t, domain.NodeFinished, b.State())
	assert.Equal(t, domain.NodeIdle, c.State(), "successors outside the group are not scheduled")
}

func TestWorkspace_RestartRightAfterStop(t *testing.T) {
	f := domain.NewFlow(wsID, "demo", registry.CoreLibrary)
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, f.AddNode(id, "core/Pass", nil, wsID, true))
	}
	require.True(t, f.AddEdge(domain.PortRef{Node: "a", Port: "out"}, domain.PortRef{Node: "c", Port: "in"}, nil, wsID))
	require.True(t, f.AddEdge(domain.PortRef{Node: "b", Port: "out"}, domain.PortRef{Node: "c", Port: "in"}, nil, wsID))
	lib := newLingeringLibrary()
	ws := open(t, f, lib)
	ctx := context.Background()

	require.NoError(t, ws.Run(ctx, wsID))
	select {
	case <-lib.started:
	case <-time.After(time.Second):
		t.Fatal("a never started")
	}
	require.NoError(t, ws.Stop(wsID))

	// No wait for the first run's a: it is still executing.
	require.Eventually(t, func() bool { return ws.Run(ctx, wsID) == nil }, time.Second, time.Millisecond)

	a, _ := f.Node("a", wsID)
	c, _ := f.Node("c", wsID)
	require.Eventually(t, func() bool { return a.State() == domain.NodeFinished }, time.Second, 5*time.Millisecond)

	close(lib.linger)
	<-lib.returned
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.NodeFinished, a.State(), "the first run's a must not overwrite the new state")

	close(lib.proceed)
	assert.Eventually(t, func() bool { return c.State() == domain.NodeFinished }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		running, _ := ws.IsRunning(wsID)
		return !running
	}, time.Second, 5*time.Millisecond)
}

func TestWorkspace_StopNode(t *testing.T) {
	f := chainFlow(t, "core/Delay", slow)
	lib := &stopLibrary{Registry: registry.NewCore()}
	ws := open(t, f, lib)

	done := make(chan error, 1)
	go func() { done <- ws.Execute(context.Background(), wsID) }()

	a, _ := f.Node("a", wsID)
	require.Eventually(t, a.IsRunning, time.Second, 5*time.Millisecond)

	ws.StopNode(a)

	select {
	case err := <-done:
		// An interrupted node never finishes, so b is never queued and the run ends.
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not end after StopNode")
	}
	assert.Equal(t, domain.NodeInterrupted, a.State())
	assert.Contains(t, lib.stoppedNodes(), "a")
}

func TestWorkspace_HandleEditsFlow(t *testing.T) {
	f := domain.NewFlow(wsID, "demo", "core")
	ws := open(t, f, registry.NewCore())
	editor := &recorder{id: "editor"}
	viewer := &recorder{id: "viewer"}
	ws.Connect(editor)
	ws.Connect(viewer)
	ctx := context.Background()

	require.NoError(t, ws.Handle(ctx, editor, envelope(t, protocol.ProtocolGraph, "addnode",
		map[string]any{"id": "a", "component": "core/Pass", "graph": wsID})))

	assert.True(t, f.NodeExists("a"))
	assert.Equal(t, []string{"graph/addnode"}, viewer.commands())

	require.NoError(t, ws.Handle(ctx, editor, envelope(t, protocol.ProtocolGraph, "addnode",
		map[string]any{"id": "a", "component": "core/Pass", "graph": wsID})))
	assert.Equal(t, "graph/error", editor.commands()[len(editor.commands())-1])
	assert.Len(t, viewer.commands(), 1, "failures are not broadcast")

	doc, err := ws.Document(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Nodes, 1)
}

func TestWorkspace_Clients(t *testing.T) {
	ws := open(t, domain.NewFlow(wsID, "demo", "core"), nil)
	a, b := &recorder{id: "a"}, &recorder{id: "b"}

	ws.Connect(a)
	ws.Connect(b)
	ws.Connect(a)
	ids := func() []string {
		var out []string
		for _, c := range ws.Clients() {
			out = append(out, c.ID())
		}
		return out
	}
	assert.Equal(t, []string{"b", "a"}, ids(), "reconnecting moves the client to the end")

	ws.Disconnect("b")
	assert.Equal(t, []string{"a"}, ids())
	assert.Empty(t, ws.Components(), "no library, no components")
}

var _ ports.NodeStopper = (*stopLibrary)(nil)
