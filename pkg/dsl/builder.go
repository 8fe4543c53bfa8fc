package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	id, name, library string
	description       string

	order  []string
	nodes  map[string]*NodeBuilder
	groups []domain.GroupDocument
}

// New creates a new builder for the flow id.
func New(id string) *Builder {
	return &Builder{
		id:      id,
		name:    id,
		library: "core",
		nodes:   make(map[string]*NodeBuilder),
	}
}

// Name sets the display name of the flow.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Library sets the component library of the flow.
func (b *Builder) Library(library string) *Builder {
	b.library = library
	return b
}

// Describe sets the flow description.
func (b *Builder) Describe(description string) *Builder {
	b.description = description
	return b
}

// Add creates a new node in the flow running component.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id, component string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node: domain.NodeDocument{
			ID:         id,
			Component:  component,
			Metadata:   domain.Metadata{},
			Graph:      b.id,
			Executable: true,
		},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Group declares a named subset of nodes that can be run on its own.
func (b *Builder) Group(name string, nodes ...string) *Builder {
	b.groups = append(b.groups, domain.GroupDocument{
		Name:     name,
		Nodes:    nodes,
		Metadata: domain.Metadata{},
		Graph:    b.id,
	})
	return b
}

// Build compiles the nodes into a flow document. Connections to nodes that
// were never added are reported.
func (b *Builder) Build() (domain.FlowDocument, error) {
	doc := domain.FlowDocument{
		ID:          b.id,
		Name:        b.name,
		Library:     b.library,
		Description: b.description,
		Nodes:       []domain.NodeDocument{},
		Edges:       []domain.EdgeDocument{},
		Groups:      append([]domain.GroupDocument{}, b.groups...),
	}

	var errs []error
	for _, id := range b.order {
		nb := b.nodes[id]
		doc.Nodes = append(doc.Nodes, nb.node)
		for _, e := range nb.edges {
			if _, ok := b.nodes[e.Tgt.Node]; !ok {
				errs = append(errs, fmt.Errorf("node %q connects to unknown node %q", id, e.Tgt.Node))
				continue
			}
			doc.Edges = append(doc.Edges, e)
		}
	}
	for _, g := range b.groups {
		for _, id := range g.Nodes {
			if _, ok := b.nodes[id]; !ok {
				errs = append(errs, fmt.Errorf("group %q lists unknown node %q", g.Name, id))
			}
		}
	}
	if len(errs) > 0 {
		return domain.FlowDocument{}, errors.Join(errs...)
	}
	return doc, nil
}

// Flow builds the document and turns it into a live Flow.
func (b *Builder) Flow() (*domain.Flow, error) {
	doc, err := b.Build()
	if err != nil {
		return nil, err
	}
	return domain.FlowFromDocument(doc)
}
