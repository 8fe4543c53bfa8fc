package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// unit executes the component of one node.
type unit struct {
	engine *Engine
	node   *domain.Node
	cancel context.CancelFunc
	ctx    context.Context
	token  uint64
}

// newUnit claims n for this run. Callers hold e.mu, so every claim of a run
// happens before its Stop returns.
func newUnit(e *Engine, n *domain.Node) *unit {
	ctx, cancel := context.WithCancel(e.runCtx)
	return &unit{engine: e, node: n, ctx: ctx, cancel: cancel, token: n.Claim()}
}

func (u *unit) run() {
	e := u.engine
	ctx := u.ctx
	defer e.unitFinished(u)
	defer u.cancel()

	n := u.node
	start := time.Now()
	e.publish(n)
	e.emitNode(ctx, domain.EventNodeStart, n, domain.NodeRunning, 0, nil, e.hooks.OnNodeStart)

	err := u.execute(ctx)

	state, owned := e.finalize(u, ctx, err)
	elapsed := time.Since(start)
	switch {
	case !owned:
		e.logger.DebugContext(ctx, "node settled after its run ended", "node", n.ID(), "state", state)
	case state == domain.NodeFailed:
		e.logger.ErrorContext(ctx, "node failed", "node", n.ID(), "component", n.Component(), "error", err)
	case state == domain.NodeInterrupted:
		e.logger.DebugContext(ctx, "node interrupted", "node", n.ID())
	default:
		e.logger.DebugContext(ctx, "node finished", "node", n.ID(), "duration", elapsed)
	}
	if owned {
		e.publish(n)
	}
	e.emitNode(ctx, domain.EventNodeFinish, n, state, elapsed, err, e.hooks.OnNodeFinish)

	if owned && state == domain.NodeFinished {
		for _, next := range n.NextInFlow() {
			e.AddToLaunch(next)
		}
	}
}

func (u *unit) execute(ctx context.Context) (err error) {
	n := u.node
	if !n.Executable() {
		return nil
	}
	if u.engine.runner == nil {
		return fmt.Errorf("%w: %s", domain.ErrComponentNotFound, n.Component())
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("component %s panicked: %v", n.Component(), r)
		}
	}()
	return u.engine.runner.RunComponent(ctx, ports.ComponentRequest{
		Workspace: u.engine.workspace,
		Graph:     u.engine.scope.GraphID(),
		NodeID:    n.ID(),
		Component: n.Component(),
		Metadata:  n.Metadata(),
	})
}

func (e *Engine) emitNode(ctx context.Context, typ domain.EventType, n *domain.Node, state domain.NodeState, d time.Duration, err error, hook func(context.Context, *domain.NodeEvent)) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      typ,
			Workspace: e.workspace,
			Graph:     e.scope.GraphID(),
		},
		NodeID:    n.ID(),
		Component: n.Component(),
		State:     state,
		Duration:  d,
		Err:       err,
	})
}
