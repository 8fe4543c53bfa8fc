package domain

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Graph is a runnable scope: the Flow itself or one of its Groups.
type Graph interface {
	GraphID() string
	Status() *Status
}

// Flow is the graph of one workspace.
//
// Every mutating operation takes the write lock for its whole duration and
// every adjacency query takes the read lock for that query only, so the
// scheduler never observes a half-applied edit.
type Flow struct {
	mu          sync.RWMutex
	id          string
	name        string
	description string
	library     string

	nodes     map[string]*Node
	order     []*Node
	edges     []*Edge
	edgeIndex map[string]*Edge
	groups    []*Group

	status *Status
}

// NewFlow returns an empty Flow identified by id.
func NewFlow(id, name, library string) *Flow {
	return &Flow{
		id:        id,
		name:      name,
		library:   library,
		nodes:     make(map[string]*Node),
		edgeIndex: make(map[string]*Edge),
		status:    NewStatus(),
	}
}

// GraphID implements Graph.
func (f *Flow) GraphID() string { return f.id }

// Status implements Graph.
func (f *Flow) Status() *Status { return f.status }

// ID returns the flow id, equal to the owning workspace id.
func (f *Flow) ID() string { return f.id }

// Name returns the human readable flow name.
func (f *Flow) Name() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.name
}

// Library returns the component library the flow was created against.
func (f *Flow) Library() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.library
}

// Description returns the free-form flow description.
func (f *Flow) Description() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.description
}

// SetDescription replaces the flow description.
func (f *Flow) SetDescription(description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.description = description
}

// Graph resolves id to the Flow itself or to the Group with that name.
func (f *Flow) Graph(id string) (Graph, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.graphLocked(id)
}

func (f *Flow) graphLocked(id string) (Graph, bool) {
	if id == f.id {
		return f, true
	}
	if g := f.groupLocked(id); g != nil {
		return g, true
	}
	return nil, false
}

func (f *Flow) groupLocked(name string) *Group {
	for _, g := range f.groups {
		if g.Name() == name {
			return g
		}
	}
	return nil
}

func (f *Flow) resolves(graph string) bool {
	_, ok := f.graphLocked(graph)
	return ok
}

// adjacent returns the predecessors (next == false) or successors of n.
func (f *Flow) adjacent(n *Node, next bool) []*Node {
	ids := n.edgeIDs()
	id := n.ID()

	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []*Node
	seen := make(map[*Node]struct{})
	for _, edgeID := range ids {
		e, ok := f.edgeIndex[edgeID]
		if !ok {
			continue
		}
		var other string
		switch {
		case next && e.Src.Node == id:
			other = e.Tgt.Node
		case !next && e.Tgt.Node == id:
			other = e.Src.Node
		default:
			continue
		}
		peer, ok := f.nodes[other]
		if !ok {
			continue
		}
		if _, dup := seen[peer]; dup {
			continue
		}
		seen[peer] = struct{}{}
		out = append(out, peer)
	}
	return out
}

// FindFirstNodes returns the nodes a run of the given scope starts from.
//
// Only edges between nodes of the scope count. A single-node scope starts
// from that node. Otherwise a node qualifies when it has no predecessor and
// at least one successor in the scope, so a node isolated within a
// multi-node scope is never scheduled.
func FindFirstNodes(nodes []*Node) []*Node {
	if len(nodes) == 1 {
		return []*Node{nodes[0]}
	}
	scope := make(map[*Node]struct{}, len(nodes))
	for _, n := range nodes {
		scope[n] = struct{}{}
	}
	inScope := func(list []*Node) bool {
		for _, m := range list {
			if _, ok := scope[m]; ok {
				return true
			}
		}
		return false
	}
	var first []*Node
	for _, n := range nodes {
		if !inScope(n.PreviousInFlow()) && inScope(n.NextInFlow()) {
			first = append(first, n)
		}
	}
	return first
}

// ScopeNodes returns the nodes scheduled when g runs: every node for the
// Flow, the members for a Group.
func (f *Flow) ScopeNodes(g Graph) []*Node {
	if grp, ok := g.(*Group); ok {
		return f.GroupNodes(grp)
	}
	return f.Nodes()
}

// GroupNodes resolves the member ids of g to nodes, skipping unknown ids.
func (f *Flow) GroupNodes(g *Group) []*Node {
	members := g.Nodes()
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Node, 0, len(members))
	for _, id := range members {
		if n, ok := f.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Nodes returns every node in insertion order.
func (f *Flow) Nodes() []*Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.order)
}

// Edges returns copies of every edge in insertion order.
func (f *Flow) Edges() []Edge {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Edge, 0, len(f.edges))
	for _, e := range f.edges {
		out = append(out, e.clone())
	}
	return out
}

// Groups returns every group in insertion order.
func (f *Flow) Groups() []*Group {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.groups)
}

// NodeExists reports whether a node with the given id exists.
func (f *Flow) NodeExists(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.nodes[id]
	return ok
}

// Node returns the node with the given id if graph resolves.
func (f *Flow) Node(id, graph string) (*Node, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.resolves(graph) {
		return nil, false
	}
	n, ok := f.nodes[id]
	return n, ok
}

// EdgeExists reports whether an edge connects src to tgt in graph.
func (f *Flow) EdgeExists(src, tgt PortRef, graph string) bool {
	_, ok := f.Edge(src, tgt, graph)
	return ok
}

// Edge returns a copy of the edge connecting src to tgt in graph.
func (f *Flow) Edge(src, tgt PortRef, graph string) (Edge, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if e := f.edgeLocked(src, tgt, graph); e != nil {
		return e.clone(), true
	}
	return Edge{}, false
}

func (f *Flow) edgeLocked(src, tgt PortRef, graph string) *Edge {
	for _, e := range f.edges {
		if e.Graph == graph && e.connects(src, tgt) {
			return e
		}
	}
	return nil
}

// EdgeByID returns a copy of the edge with the given id.
func (f *Flow) EdgeByID(id string) (Edge, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if e, ok := f.edgeIndex[id]; ok {
		return e.clone(), true
	}
	return Edge{}, false
}

// GroupExists reports whether a group with the given name exists.
func (f *Flow) GroupExists(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.groupLocked(name) != nil
}

// Group returns the group with the given name if graph resolves.
func (f *Flow) Group(name, graph string) (*Group, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.resolves(graph) {
		return nil, false
	}
	g := f.groupLocked(name)
	return g, g != nil
}

// AddNode adds a node. It fails when graph does not resolve or id is taken.
func (f *Flow) AddNode(id, component string, metadata Metadata, graph string, executable bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolves(graph) {
		return false
	}
	if _, exists := f.nodes[id]; exists {
		return false
	}
	n := newNode(id, component, metadata, graph, executable, f)
	f.nodes[id] = n
	f.order = append(f.order, n)
	return true
}

// RemoveNode removes the node together with its edges and group memberships.
func (f *Flow) RemoveNode(id, graph string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolves(graph) {
		return false
	}
	n, ok := f.nodes[id]
	if !ok {
		return false
	}
	for _, e := range slices.Clone(f.edges) {
		if e.Src.Node == id || e.Tgt.Node == id {
			f.dropEdgeLocked(e)
		}
	}
	for _, g := range f.groups {
		g.dropMember(id)
	}
	delete(f.nodes, id)
	f.order = slices.DeleteFunc(f.order, func(o *Node) bool { return o == n })
	return true
}

// RenameNode changes a node id, rewriting edge endpoints and group
// memberships. It fails when from is missing or to is already taken.
func (f *Flow) RenameNode(from, to, graph string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolves(graph) {
		return false
	}
	n, ok := f.nodes[from]
	if !ok {
		return false
	}
	if _, taken := f.nodes[to]; taken {
		return false
	}
	n.SetID(to)
	delete(f.nodes, from)
	f.nodes[to] = n
	for _, e := range f.edges {
		if e.Src.Node == from {
			e.Src.Node = to
		}
		if e.Tgt.Node == from {
			e.Tgt.Node = to
		}
	}
	for _, g := range f.groups {
		g.renameMember(from, to)
	}
	return true
}

// ChangeNode merges metadata into the node metadata. Nil values delete keys.
func (f *Flow) ChangeNode(id string, metadata Metadata, graph string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolves(graph) {
		return false
	}
	n, ok := f.nodes[id]
	if !ok {
		return false
	}
	n.SetMetadata(n.Metadata().Merge(metadata))
	return true
}

// AddEdge connects src to tgt and records the new edge id on both node
// ports. It fails when an endpoint is missing or the pair already exists.
func (f *Flow) AddEdge(src, tgt PortRef, metadata Metadata, graph string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolves(graph) {
		return false
	}
	srcNode, ok := f.nodes[src.Node]
	if !ok {
		return false
	}
	tgtNode, ok := f.nodes[tgt.Node]
	if !ok {
		return false
	}
	if f.edgeLocked(src, tgt, graph) != nil {
		return false
	}
	e := &Edge{
		ID:       newEdgeID(),
		Src:      src,
		Tgt:      tgt,
		Metadata: metadata.Clone(),
		Graph:    graph,
	}
	f.insertEdgeLocked(e, srcNode, tgtNode)
	return true
}

func (f *Flow) insertEdgeLocked(e *Edge, src, tgt *Node) {
	f.edges = append(f.edges, e)
	f.edgeIndex[e.ID] = e
	src.AssignPortToEdge(e.Src.Port, e.ID)
	tgt.AssignPortToEdge(e.Tgt.Port, e.ID)
}

func (f *Flow) dropEdgeLocked(e *Edge) {
	if n, ok := f.nodes[e.Src.Node]; ok {
		n.ReleasePortEdge(e.ID)
	}
	if n, ok := f.nodes[e.Tgt.Node]; ok {
		n.ReleasePortEdge(e.ID)
	}
	delete(f.edgeIndex, e.ID)
	f.edges = slices.DeleteFunc(f.edges, func(o *Edge) bool { return o == e })
}

// RemoveEdge removes the edge connecting src to tgt.
func (f *Flow) RemoveEdge(graph string, src, tgt PortRef) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolves(graph) {
		return false
	}
	e := f.edgeLocked(src, tgt, graph)
	if e == nil {
		return false
	}
	f.dropEdgeLocked(e)
	return true
}

// ChangeEdge merges metadata into the edge metadata. Nil values delete keys.
func (f *Flow) ChangeEdge(graph string, metadata Metadata, src, tgt PortRef) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolves(graph) {
		return false
	}
	e := f.edgeLocked(src, tgt, graph)
	if e == nil {
		return false
	}
	e.Metadata = e.Metadata.Merge(metadata)
	return true
}

// AddGroup adds a named group. Member ids are stored as given.
func (f *Flow) AddGroup(name string, nodes []string, metadata Metadata, graph string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolves(graph) {
		return false
	}
	if f.groupLocked(name) != nil {
		return false
	}
	f.groups = append(f.groups, newGroup(name, nodes, metadata, graph))
	return true
}

// RemoveGroup removes the named group. Its member nodes are kept.
func (f *Flow) RemoveGroup(name, graph string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolves(graph) {
		return false
	}
	g := f.groupLocked(name)
	if g == nil {
		return false
	}
	f.groups = slices.DeleteFunc(f.groups, func(o *Group) bool { return o == g })
	return true
}

// RenameGroup renames a group. It fails when to is already used.
func (f *Flow) RenameGroup(from, to, graph string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolves(graph) {
		return false
	}
	g := f.groupLocked(from)
	if g == nil || f.groupLocked(to) != nil {
		return false
	}
	g.setName(to)
	return true
}

// ChangeGroup merges metadata into the group metadata. Nil values delete keys.
func (f *Flow) ChangeGroup(name string, metadata Metadata, graph string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolves(graph) {
		return false
	}
	g := f.groupLocked(name)
	if g == nil {
		return false
	}
	g.setMetadata(g.Metadata().Merge(metadata))
	return true
}

// AddInitial accepts an initial packet for tgt. Reserved: initial packets
// are not modelled, so it never mutates the Flow and always succeeds.
func (f *Flow) AddInitial(graph string, metadata Metadata, src any, tgt PortRef) bool { return true }

// RemoveInitial is a reserved no-op that always succeeds.
func (f *Flow) RemoveInitial(graph string, tgt PortRef) bool { return true }

// AddInport accepts an exported inport. Reserved: exported ports are not
// modelled, so it never mutates the Flow and always succeeds.
func (f *Flow) AddInport(graph, public string, target PortRef) bool { return true }

// RemoveInport is a reserved no-op that always succeeds.
func (f *Flow) RemoveInport(graph, public string) bool { return true }

// RenameInport is a reserved no-op that always succeeds.
func (f *Flow) RenameInport(graph, from, to string) bool { return true }

// AddOutport accepts an exported outport. Reserved no-op, like AddInport.
func (f *Flow) AddOutport(graph, public string, source PortRef) bool { return true }

// RemoveOutport is a reserved no-op that always succeeds.
func (f *Flow) RemoveOutport(graph, public string) bool { return true }

// RenameOutport is a reserved no-op that always succeeds.
func (f *Flow) RenameOutport(graph, from, to string) bool { return true }

// Clear removes every node, edge and group.
func (f *Flow) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = make(map[string]*Node)
	f.order = nil
	f.edges = nil
	f.edgeIndex = make(map[string]*Edge)
	f.groups = nil
}

func newEdgeID() string { return uuid.NewString() }
