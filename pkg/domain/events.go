package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeStart    EventType = "node_start"
	EventNodeFinish   EventType = "node_finish"
	EventRunStart     EventType = "run_start"
	EventRunStop      EventType = "run_stop"
	EventRunStalled   EventType = "run_stalled"
	EventRunCompleted EventType = "run_completed"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Workspace string    `json:"workspace"`
	Graph     string    `json:"graph"`
}

// NodeEvent reports a node execution starting or ending.
type NodeEvent struct {
	EventBase
	NodeID    string        `json:"node_id"`
	Component string        `json:"component"`
	State     NodeState     `json:"state"`
	Duration  time.Duration `json:"duration,omitempty"`
	Err       error         `json:"-"`
}

// RunEvent reports a scope run changing phase.
type RunEvent struct {
	EventBase
	Nodes int `json:"nodes"`
}

// LifecycleHooks defines callbacks for engine observability.
// Nil callbacks are skipped.
type LifecycleHooks struct {
	OnNodeStart  func(context.Context, *NodeEvent)
	OnNodeFinish func(context.Context, *NodeEvent)
	OnRunStart   func(context.Context, *RunEvent)
	OnRunStall   func(context.Context, *RunEvent)
	OnRunEnd     func(context.Context, *RunEvent)
}

// ChainHooks returns hooks calling each of hooks in order.
func ChainHooks(hooks ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeStart: func(ctx context.Context, e *NodeEvent) {
			for _, h := range hooks {
				if h.OnNodeStart != nil {
					h.OnNodeStart(ctx, e)
				}
			}
		},
		OnNodeFinish: func(ctx context.Context, e *NodeEvent) {
			for _, h := range hooks {
				if h.OnNodeFinish != nil {
					h.OnNodeFinish(ctx, e)
				}
			}
		},
		OnRunStart: func(ctx context.Context, e *RunEvent) {
			for _, h := range hooks {
				if h.OnRunStart != nil {
					h.OnRunStart(ctx, e)
				}
			}
		},
		OnRunStall: func(ctx context.Context, e *RunEvent) {
			for _, h := range hooks {
				if h.OnRunStall != nil {
					h.OnRunStall(ctx, e)
				}
			}
		},
		OnRunEnd: func(ctx context.Context, e *RunEvent) {
			for _, h := range hooks {
				if h.OnRunEnd != nil {
					h.OnRunEnd(ctx, e)
				}
			}
		},
	}
}
