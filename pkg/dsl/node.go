package dsl

import (
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

// Default port names used by To.
const (
	OutPort = "out"
	InPort  = "in"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.NodeDocument
	edges   []domain.EdgeDocument
	builder *Builder
}

// Meta sets a metadata value.
func (n *NodeBuilder) Meta(key string, value any) *NodeBuilder {
	n.node.Metadata[key] = value
	return n
}

// Setting sets a per-node component setting, read by the component runner.
func (n *NodeBuilder) Setting(key string, value any) *NodeBuilder {
	overrides, _ := n.node.Metadata[domain.KeyComponentOverrides].(map[string]any)
	if overrides == nil {
		overrides = make(map[string]any)
		n.node.Metadata[domain.KeyComponentOverrides] = overrides
	}
	overrides[key] = value
	return n
}

// Delay configures how long a core/Delay node waits.
func (n *NodeBuilder) Delay(d time.Duration) *NodeBuilder {
	return n.Setting("delay", d.String())
}

// Passive marks the node as not executable: it is scheduled but runs nothing.
func (n *NodeBuilder) Passive() *NodeBuilder {
	n.node.Executable = false
	return n
}

// To connects the out port of this node to the in port of target.
func (n *NodeBuilder) To(target string) *NodeBuilder {
	return n.Connect(OutPort, target, InPort)
}

// Connect adds an edge from port of this node to targetPort of target.
func (n *NodeBuilder) Connect(port, target, targetPort string) *NodeBuilder {
	n.edges = append(n.edges, domain.EdgeDocument{
		Src:      domain.PortRef{Node: n.node.ID, Port: port},
		Tgt:      domain.PortRef{Node: target, Port: targetPort},
		Metadata: domain.Metadata{},
		Graph:    n.builder.id,
	})
	return n
}

// Build returns the underlying node document.
func (n *NodeBuilder) Build() domain.NodeDocument {
	return n.node
}
