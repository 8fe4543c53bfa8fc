package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/weft/pkg/domain"
)

// LoggingHooks returns lifecycle hooks writing one structured line per event.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStart: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_start",
				"workspace", e.Workspace, "graph", e.Graph,
				"node_id", e.NodeID, "component", e.Component)
		},
		OnNodeFinish: func(ctx context.Context, e *domain.NodeEvent) {
			attrs := []any{
				"workspace", e.Workspace, "graph", e.Graph,
				"node_id", e.NodeID, "component", e.Component,
				"state", e.State.String(), "duration", e.Duration,
			}
			if e.Err != nil {
				logger.WarnContext(ctx, "node_finish", append(attrs, "err", e.Err)...)
				return
			}
			logger.InfoContext(ctx, "node_finish", attrs...)
		},
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			logger.InfoContext(ctx, "run_start", "workspace", e.Workspace, "graph", e.Graph, "nodes", e.Nodes)
		},
		OnRunStall: func(ctx context.Context, e *domain.RunEvent) {
			logger.WarnContext(ctx, "run_stalled", "workspace", e.Workspace, "graph", e.Graph)
		},
		OnRunEnd: func(ctx context.Context, e *domain.RunEvent) {
			logger.InfoContext(ctx, string(e.Type), "workspace", e.Workspace, "graph", e.Graph)
		},
	}
}
