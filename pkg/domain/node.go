package domain

import (
	"slices"
	"sync"
	"sync/atomic"
)

// NodeState is the transient execution state of a node during a run.
type NodeState int32

const (
	NodeIdle        NodeState = iota // Reset, waiting to be scheduled
	NodeRunning                      // A unit is executing the component
	NodeFinished                     // Component completed
	NodeInterrupted                  // Stopped before completion
	NodeFailed                       // Component returned an error
)

// MarshalText renders the state name.
func (s NodeState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s NodeState) String() string {
	switch s {
	case NodeIdle:
		return "idle"
	case NodeRunning:
		return "running"
	case NodeFinished:
		return "finished"
	case NodeInterrupted:
		return "interrupted"
	case NodeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Node represents an executable unit in the graph.
// Descriptive fields are guarded by mu; the execution state is atomic so the
// scheduler can read it without locking.
type Node struct {
	mu         sync.RWMutex
	id         string
	component  string
	metadata   Metadata
	graph      string
	executable bool
	ports      map[string][]string // port name -> edge ids

	state atomic.Int32
	flow  *Flow

	// epoch is bumped by every reset and every claim. Settle only writes
	// when the epoch still matches the claim.
	execMu sync.Mutex
	epoch  uint64
}

func newNode(id, component string, metadata Metadata, graph string, executable bool, flow *Flow) *Node {
	return &Node{
		id:         id,
		component:  component,
		metadata:   metadata.Clone(),
		graph:      graph,
		executable: executable,
		ports:      make(map[string][]string),
		flow:       flow,
	}
}

// ID returns the node identifier.
func (n *Node) ID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.id
}

// SetID changes the node identifier. Only the owning Flow should call it.
func (n *Node) SetID(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.id = id
}

// Component returns the name of the component the node executes.
func (n *Node) Component() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.component
}

// Metadata returns a copy of the node metadata.
func (n *Node) Metadata() Metadata {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.metadata.Clone()
}

// SetMetadata replaces the node metadata.
func (n *Node) SetMetadata(metadata Metadata) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.metadata = metadata.Clone()
}

// Graph returns the identifier of the graph the node was added to.
func (n *Node) Graph() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.graph
}

// Executable reports whether the node runs a component when scheduled.
func (n *Node) Executable() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.executable
}

// AssignPortToEdge records that edgeID is attached to the given port.
func (n *Node) AssignPortToEdge(port, edgeID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if slices.Contains(n.ports[port], edgeID) {
		return
	}
	n.ports[port] = append(n.ports[port], edgeID)
}

// ReleasePortEdge forgets edgeID on every port of the node.
func (n *Node) ReleasePortEdge(edgeID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for port, ids := range n.ports {
		ids = slices.DeleteFunc(ids, func(id string) bool { return id == edgeID })
		if len(ids) == 0 {
			delete(n.ports, port)
			continue
		}
		n.ports[port] = ids
	}
}

// Ports returns a copy of the port -> edge ids mapping.
func (n *Node) Ports() map[string][]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string][]string, len(n.ports))
	for port, ids := range n.ports {
		out[port] = slices.Clone(ids)
	}
	return out
}

func (n *Node) edgeIDs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var ids []string
	for _, edges := range n.ports {
		ids = append(ids, edges...)
	}
	return ids
}

// PreviousInFlow returns the nodes this node depends on (sources of edges
// targeting it), or nil when there are none.
func (n *Node) PreviousInFlow() []*Node {
	if n.flow == nil {
		return nil
	}
	return n.flow.adjacent(n, false)
}

// NextInFlow returns the nodes depending on this node, or nil when there are none.
func (n *Node) NextInFlow() []*Node {
	if n.flow == nil {
		return nil
	}
	return n.flow.adjacent(n, true)
}

// State returns the execution state of the node itself.
func (n *Node) State() NodeState {
	return NodeState(n.state.Load())
}

// SetState stores the execution state. The store is sequentially consistent,
// so a finished state is visible to any goroutine that later observes an
// event published after this call.
func (n *Node) SetState(s NodeState) {
	n.state.Store(int32(s))
}

// IsRunning reports whether a unit is currently executing the node.
func (n *Node) IsRunning() bool {
	return n.State() == NodeRunning
}

// HasFinished reports whether the node and every node it transitively
// depends on have finished. Computed on demand by walking predecessors.
func (n *Node) HasFinished() bool {
	return n.HasFinishedWithin(nil)
}

// HasFinishedWithin is HasFinished restricted to the nodes accepted by in.
// Predecessors outside it are not walked. A nil in accepts every node.
func (n *Node) HasFinishedWithin(in func(*Node) bool) bool {
	visited := make(map[*Node]struct{})
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[cur]; seen {
			continue
		}
		visited[cur] = struct{}{}
		if cur.State() != NodeFinished {
			return false
		}
		for _, prev := range cur.PreviousInFlow() {
			if in == nil || in(prev) {
				stack = append(stack, prev)
			}
		}
	}
	return true
}

// PrepareForExecution resets the transient execution state before a run.
// Claims taken before the reset can no longer settle.
func (n *Node) PrepareForExecution() {
	n.execMu.Lock()
	defer n.execMu.Unlock()
	n.epoch++
	n.SetState(NodeIdle)
}

// Claim marks the node running and returns the token Settle expects.
func (n *Node) Claim() uint64 {
	n.execMu.Lock()
	defer n.execMu.Unlock()
	n.epoch++
	n.SetState(NodeRunning)
	return n.epoch
}

// Settle stores the outcome of the claim identified by token. It reports
// false and leaves the state untouched when the node was reset or claimed
// again since.
func (n *Node) Settle(token uint64, s NodeState) bool {
	n.execMu.Lock()
	defer n.execMu.Unlock()
	if n.epoch != token {
		return false
	}
	n.SetState(s)
	return true
}
