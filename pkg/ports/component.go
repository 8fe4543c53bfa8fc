package ports

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// ComponentRequest identifies one execution of a node's component.
type ComponentRequest struct {
	Workspace string
	Graph     string
	NodeID    string
	Component string
	Metadata  domain.Metadata
}

// ComponentRunner executes the component behind a node.
// RunComponent blocks until the component completes and must return promptly
// once ctx is cancelled.
type ComponentRunner interface {
	RunComponent(ctx context.Context, req ComponentRequest) error
}

// NodeStopper is implemented by runners able to forcibly stop a node whose
// component does not observe cancellation.
type NodeStopper interface {
	StopNode(ctx context.Context, workspace, nodeID string) error
}

// ComponentInfo describes a catalog entry.
type ComponentInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	InPorts     []string `json:"inPorts"`
	OutPorts    []string `json:"outPorts"`
}

// ComponentCatalog lists the components a library offers.
type ComponentCatalog interface {
	Components() []ComponentInfo
}
