package domain

import (
	"slices"
	"sync"
)

// Group is a named, independently runnable subset of a Flow's nodes.
type Group struct {
	mu       sync.RWMutex
	name     string
	nodes    []string
	metadata Metadata
	graph    string
	status   *Status
}

func newGroup(name string, nodes []string, metadata Metadata, graph string) *Group {
	return &Group{
		name:     name,
		nodes:    slices.Clone(nodes),
		metadata: metadata.Clone(),
		graph:    graph,
		status:   NewStatus(),
	}
}

// Name returns the group name, which is also its graph identifier.
func (g *Group) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// GraphID implements Graph.
func (g *Group) GraphID() string {
	return g.Name()
}

// Status implements Graph.
func (g *Group) Status() *Status {
	return g.status
}

// Nodes returns the member node ids in insertion order.
func (g *Group) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.nodes)
}

// Metadata returns a copy of the group metadata.
func (g *Group) Metadata() Metadata {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.metadata.Clone()
}

// Graph returns the identifier of the graph the group was added to.
func (g *Group) Graph() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.graph
}

func (g *Group) setName(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.name = name
}

func (g *Group) setMetadata(metadata Metadata) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metadata = metadata.Clone()
}

func (g *Group) renameMember(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, id := range g.nodes {
		if id == from {
			g.nodes[i] = to
		}
	}
}

func (g *Group) dropMember(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = slices.DeleteFunc(g.nodes, func(n string) bool { return n == id })
}
