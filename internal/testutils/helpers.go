package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/workspace"
)

// NewHub creates a Hub over an in-memory store whose workspaces run the core
// components. Every live workspace is closed when the test ends.
func NewHub(t *testing.T, opts ...workspace.HubOption) *workspace.Hub {
	t.Helper()

	opts = append([]workspace.HubOption{
		workspace.WithWorkspaceOptions(workspace.WithLibrary(registry.NewCore())),
	}, opts...)
	hub := workspace.NewHub(memory.NewStore(), opts...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})
	return hub
}
