package domain

import "fmt"

// FlowDocument is the serialized form of a Flow.
type FlowDocument struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Library     string          `json:"library"`
	Description string          `json:"description,omitempty"`
	Nodes       []NodeDocument  `json:"nodes"`
	Edges       []EdgeDocument  `json:"edges"`
	Groups      []GroupDocument `json:"groups"`
	Sealed      string          `json:"sealed,omitempty"`
}

type NodeDocument struct {
	ID         string              `json:"id"`
	Component  string              `json:"component"`
	Metadata   Metadata            `json:"metadata"`
	Graph      string              `json:"graph"`
	Executable bool                `json:"executable"`
	Ports      map[string][]string `json:"ports,omitempty"`
}

type EdgeDocument struct {
	ID       string   `json:"id"`
	Src      PortRef  `json:"src"`
	Tgt      PortRef  `json:"tgt"`
	Metadata Metadata `json:"metadata"`
	Graph    string   `json:"graph"`
}

type GroupDocument struct {
	Name     string   `json:"name"`
	Nodes    []string `json:"nodes"`
	Metadata Metadata `json:"metadata"`
	Graph    string   `json:"graph"`
}

// Document snapshots the Flow.
func (f *Flow) Document() FlowDocument {
	doc := FlowDocument{
		ID:          f.id,
		Name:        f.Name(),
		Library:     f.Library(),
		Description: f.Description(),
		Nodes:       []NodeDocument{},
		Edges:       []EdgeDocument{},
		Groups:      []GroupDocument{},
	}
	for _, n := range f.Nodes() {
		doc.Nodes = append(doc.Nodes, NodeDocument{
			ID:         n.ID(),
			Component:  n.Component(),
			Metadata:   n.Metadata(),
			Graph:      n.Graph(),
			Executable: n.Executable(),
			Ports:      n.Ports(),
		})
	}
	for _, e := range f.Edges() {
		doc.Edges = append(doc.Edges, EdgeDocument{
			ID:       e.ID,
			Src:      e.Src,
			Tgt:      e.Tgt,
			Metadata: e.Metadata,
			Graph:    e.Graph,
		})
	}
	for _, g := range f.Groups() {
		doc.Groups = append(doc.Groups, GroupDocument{
			Name:     g.Name(),
			Nodes:    g.Nodes(),
			Metadata: g.Metadata(),
			Graph:    g.Graph(),
		})
	}
	return doc
}

// FlowFromDocument rebuilds a Flow. Port adjacency is derived from the edges;
// the ports recorded in the document are ignored.
func FlowFromDocument(doc FlowDocument) (*Flow, error) {
	if doc.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	if doc.Sealed != "" {
		return nil, fmt.Errorf("%w: document is sealed", ErrInvalidDocument)
	}
	f := NewFlow(doc.ID, doc.Name, doc.Library)
	f.description = doc.Description

	// Groups first so node and edge graph ids that name a group resolve.
	for _, g := range doc.Groups {
		if f.groupLocked(g.Name) != nil {
			return nil, fmt.Errorf("%w: duplicate group %q", ErrInvalidDocument, g.Name)
		}
		f.groups = append(f.groups, newGroup(g.Name, g.Nodes, g.Metadata, g.Graph))
	}
	for _, n := range doc.Nodes {
		if !f.AddNode(n.ID, n.Component, n.Metadata, graphOr(n.Graph, doc.ID), n.Executable) {
			return nil, fmt.Errorf("%w: node %q", ErrInvalidDocument, n.ID)
		}
	}
	for _, e := range doc.Edges {
		src, ok := f.nodes[e.Src.Node]
		if !ok {
			return nil, fmt.Errorf("%w: edge source %q", ErrInvalidDocument, e.Src.Node)
		}
		tgt, ok := f.nodes[e.Tgt.Node]
		if !ok {
			return nil, fmt.Errorf("%w: edge target %q", ErrInvalidDocument, e.Tgt.Node)
		}
		graph := graphOr(e.Graph, doc.ID)
		if f.edgeLocked(e.Src, e.Tgt, graph) != nil {
			return nil, fmt.Errorf("%w: duplicate edge %s -> %s", ErrInvalidDocument, e.Src.Node, e.Tgt.Node)
		}
		id := e.ID
		if id == "" {
			id = newEdgeID()
		}
		f.insertEdgeLocked(&Edge{ID: id, Src: e.Src, Tgt: e.Tgt, Metadata: e.Metadata.Clone(), Graph: graph}, src, tgt)
	}
	return f, nil
}

func graphOr(graph, fallback string) string {
	if graph == "" {
		return fallback
	}
	return graph
}
