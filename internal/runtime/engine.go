package runtime

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// ErrStopped is returned by Run when the run ended through Stop or
// context cancellation instead of completing.
var ErrStopped = errors.New("run stopped")

// Engine schedules the nodes of one scope (a Flow or a Group).
//
// A node is promoted from toLaunch to a running unit once every direct
// predecessor inside the scope has finished. Units enqueue their successors
// through AddToLaunch when they finish; successors outside the scope are
// dropped. The loop sleeps on a wake channel between scans and exits when
// nothing is queued and nothing is running.
type Engine struct {
	scope     domain.Graph
	nodes     []*domain.Node
	members   map[*domain.Node]struct{}
	runner    ports.ComponentRunner
	workspace string
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	stopNode  func(*domain.Node)
	notify    func(*domain.Node)

	runMu    sync.Mutex
	mu       sync.Mutex
	toLaunch []*domain.Node
	launched map[*domain.Node]struct{}
	running  map[*unit]struct{}
	units    map[*domain.Node]*unit
	stopped  bool
	runCtx   context.Context

	wake chan struct{}
}

// NewEngine creates an engine for the given scope and its nodes.
func NewEngine(scope domain.Graph, nodes []*domain.Node, runner ports.ComponentRunner, opts ...Option) *Engine {
	e := &Engine{
		scope:  scope,
		nodes:  slices.Clone(nodes),
		runner: runner,
		logger: logging.NewNop(),
		wake:   make(chan struct{}, 1),
	}
	e.members = make(map[*domain.Node]struct{}, len(e.nodes))
	for _, n := range e.nodes {
		e.members[n] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scope returns the graph being run.
func (e *Engine) Scope() domain.Graph {
	return e.scope
}

// IsRunning delegates to the scope status.
func (e *Engine) IsRunning() bool {
	return e.scope.Status().IsRunning()
}

// Run executes the scope until every reachable node is done, Stop is called
// or ctx is cancelled. It blocks for the whole run.
//
// A run whose queued nodes can never become ready (a cycle, or a failed or
// interrupted predecessor) stalls: a warning is logged once and Run keeps
// waiting for Stop.
func (e *Engine) Run(ctx context.Context) error {
	status := e.scope.Status()
	if !status.TryStart() {
		return domain.ErrAlreadyRunning
	}

	// A stopped Run marks the scope idle before its loop has returned.
	e.runMu.Lock()
	defer e.runMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.toLaunch = nil
	e.launched = make(map[*domain.Node]struct{})
	e.running = make(map[*unit]struct{})
	e.units = make(map[*domain.Node]*unit)
	e.stopped = false
	e.runCtx = runCtx
	for _, n := range e.nodes {
		n.PrepareForExecution()
	}
	e.mu.Unlock()
	e.drainWake()

	for _, n := range domain.FindFirstNodes(e.nodes) {
		e.AddToLaunch(n)
	}

	e.logger.InfoContext(ctx, "run started", "graph", e.scope.GraphID(), "nodes", len(e.nodes))
	e.emitRun(ctx, domain.EventRunStart, e.hooks.OnRunStart)

	done := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-runCtx.Done():
			e.Stop()
		case <-done:
		}
	}()
	// The watcher must be gone before runMu is released, or it could stop
	// the next run.
	defer func() {
		close(done)
		<-watched
	}()

	stalled := false
	for {
		if runCtx.Err() != nil {
			e.Stop()
		}
		e.mu.Lock()
		if e.stopped {
			e.mu.Unlock()
			e.logger.InfoContext(ctx, "run stopped", "graph", e.scope.GraphID())
			e.emitRun(ctx, domain.EventRunStop, e.hooks.OnRunEnd)
			return ErrStopped
		}
		if len(e.toLaunch) == 0 && len(e.running) == 0 {
			e.mu.Unlock()
			status.Stop()
			e.logger.InfoContext(ctx, "run completed", "graph", e.scope.GraphID())
			e.emitRun(ctx, domain.EventRunCompleted, e.hooks.OnRunEnd)
			return nil
		}
		promoted := e.promoteReadyLocked()
		idle := promoted == 0 && len(e.running) == 0
		queued := len(e.toLaunch)
		e.mu.Unlock()

		if promoted > 0 {
			stalled = false
			continue
		}
		if idle && !stalled {
			stalled = true
			e.logger.WarnContext(ctx, "run stalled: queued nodes can never become ready",
				"graph", e.scope.GraphID(), "queued", queued)
			e.emitRun(ctx, domain.EventRunStalled, e.hooks.OnRunStall)
		}
		<-e.wake
	}
}

// promoteReadyLocked scans toLaunch in insertion order and promotes every
// ready node. Callers hold e.mu.
func (e *Engine) promoteReadyLocked() int {
	promoted := 0
	remaining := e.toLaunch[:0]
	for _, n := range e.toLaunch {
		if !e.previousNodesFinished(n) {
			remaining = append(remaining, n)
			continue
		}
		e.runOrStopLocked(n)
		promoted++
	}
	clear(e.toLaunch[len(remaining):])
	e.toLaunch = remaining
	return promoted
}

// previousNodesFinished is the readiness rule: every direct predecessor in
// the scope must have finished, together with its own in-scope ancestry.
// Predecessors outside the scope are not waited on, so a node without
// in-scope predecessors is always ready.
func (e *Engine) previousNodesFinished(n *domain.Node) bool {
	for _, prev := range n.PreviousInFlow() {
		if !e.member(prev) {
			continue
		}
		if !prev.HasFinishedWithin(e.member) {
			return false
		}
	}
	return true
}

func (e *Engine) member(n *domain.Node) bool {
	_, ok := e.members[n]
	return ok
}

// RunOrStop toggles a node: a running node is stopped, any other node is
// started in a new unit.
func (e *Engine) RunOrStop(n *domain.Node) {
	e.mu.Lock()
	stopping := e.runOrStopLocked(n)
	e.mu.Unlock()
	if stopping && e.stopNode != nil {
		e.stopNode(n)
	}
	e.signal()
}

func (e *Engine) runOrStopLocked(n *domain.Node) (stopping bool) {
	if u, ok := e.units[n]; ok && n.IsRunning() {
		u.cancel()
		return true
	}
	if e.stopped || e.runCtx == nil || e.runCtx.Err() != nil {
		return false
	}
	u := newUnit(e, n)
	e.units[n] = u
	e.running[u] = struct{}{}
	e.launched[n] = struct{}{}
	go u.run()
	return false
}

// AddToLaunch queues a node for scheduling. Nodes outside the scope, nodes
// already queued or already launched during this run are ignored, as is
// everything after Stop.
func (e *Engine) AddToLaunch(n *domain.Node) {
	if !e.member(n) {
		return
	}
	e.mu.Lock()
	if e.stopped || e.launched == nil {
		e.mu.Unlock()
		return
	}
	if _, ok := e.launched[n]; ok || slices.Contains(e.toLaunch, n) {
		e.mu.Unlock()
		return
	}
	e.toLaunch = append(e.toLaunch, n)
	e.mu.Unlock()
	e.signal()
}

// Interrupt cancels the unit running n, if any.
func (e *Engine) Interrupt(n *domain.Node) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.units[n]
	if ok {
		u.cancel()
	}
	return ok
}

// Stop interrupts every running unit, asks the owner to stop every node of
// the scope and marks the scope idle. Safe to call concurrently with Run and
// more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	snapshot := make([]*unit, 0, len(e.running))
	for u := range e.running {
		snapshot = append(snapshot, u)
	}
	e.running = make(map[*unit]struct{})
	e.toLaunch = nil
	e.mu.Unlock()

	for _, u := range snapshot {
		u.cancel()
	}
	if e.stopNode != nil {
		for _, n := range e.nodes {
			e.stopNode(n)
		}
	}
	e.scope.Status().Stop()
	e.signal()
}

// finalize decides the outcome of a unit under the engine lock so a stop
// and a completion are never both observed. The node keeps its state when
// owned is false: it was reset or claimed by a later run in the meantime.
func (e *Engine) finalize(u *unit, ctx context.Context, err error) (state domain.NodeState, owned bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.stopped || ctx.Err() != nil:
		state = domain.NodeInterrupted
	case err != nil:
		state = domain.NodeFailed
	default:
		state = domain.NodeFinished
	}
	return state, u.node.Settle(u.token, state)
}

func (e *Engine) unitFinished(u *unit) {
	e.mu.Lock()
	delete(e.running, u)
	if e.units[u.node] == u {
		delete(e.units, u.node)
	}
	e.mu.Unlock()
	e.signal()
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) drainWake() {
	select {
	case <-e.wake:
	default:
	}
}

func (e *Engine) publish(n *domain.Node) {
	if e.notify != nil {
		e.notify(n)
	}
}

func (e *Engine) emitRun(ctx context.Context, typ domain.EventType, hook func(context.Context, *domain.RunEvent)) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.RunEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      typ,
			Workspace: e.workspace,
			Graph:     e.scope.GraphID(),
		},
		Nodes: len(e.nodes),
	})
}
