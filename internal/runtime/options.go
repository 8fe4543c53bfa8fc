package runtime

import (
	"log/slog"

	"github.com/aretw0/weft/pkg/domain"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks sets the observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithWorkspace tags events and component requests with the workspace id.
func WithWorkspace(id string) Option {
	return func(e *Engine) {
		e.workspace = id
	}
}

// WithNodeStopper sets the hook used to forcibly stop a node, normally the
// owning workspace's StopNode.
func WithNodeStopper(stop func(*domain.Node)) Option {
	return func(e *Engine) {
		e.stopNode = stop
	}
}

// WithNodeUpdates sets the callback receiving every node state change.
func WithNodeUpdates(notify func(*domain.Node)) Option {
	return func(e *Engine) {
		e.notify = notify
	}
}
