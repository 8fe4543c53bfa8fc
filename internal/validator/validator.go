package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Error lists every problem found in a flow document.
type Error struct {
	Issues []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("found %d errors:\n- %s", len(e.Issues), strings.Join(e.Issues, "\n- "))
}

// ValidateDocument checks that doc can be rebuilt and run to completion:
// identifiers are unique, edges and groups point at existing nodes, nodes
// belong to a known graph and the dependency graph has no cycle.
// When catalog is not nil, every component must also be listed by it.
func ValidateDocument(doc domain.FlowDocument, catalog ports.ComponentCatalog) error {
	var issues []string
	addf := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if doc.ID == "" {
		addf("flow has no id")
	}
	if doc.Sealed != "" {
		addf("flow %q is sealed and cannot be inspected", doc.ID)
	}

	graphs := map[string]bool{doc.ID: true}
	for _, g := range doc.Groups {
		if g.Name == "" {
			addf("group without a name")
			continue
		}
		if graphs[g.Name] {
			addf("duplicate graph name %q", g.Name)
		}
		graphs[g.Name] = true
	}

	var known map[string]bool
	if catalog != nil {
		known = make(map[string]bool)
		for _, c := range catalog.Components() {
			known[c.Name] = true
		}
	}

	nodes := make(map[string]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		switch {
		case n.ID == "":
			addf("node without an id")
			continue
		case nodes[n.ID]:
			addf("duplicate node %q", n.ID)
		}
		nodes[n.ID] = true
		if n.Graph != "" && !graphs[n.Graph] {
			addf("node %q belongs to unknown graph %q", n.ID, n.Graph)
		}
		if known != nil && n.Executable && !known[n.Component] {
			addf("node %q uses unknown component %q", n.ID, n.Component)
		}
	}

	deps := make(map[string][]string)
	for _, e := range doc.Edges {
		src, tgt := e.Src.Node, e.Tgt.Node
		if !nodes[src] {
			addf("edge %s.%s -> %s.%s: missing source node %q", src, e.Src.Port, tgt, e.Tgt.Port, src)
		}
		if !nodes[tgt] {
			addf("edge %s.%s -> %s.%s: missing target node %q", src, e.Src.Port, tgt, e.Tgt.Port, tgt)
		}
		if nodes[src] && nodes[tgt] {
			deps[src] = append(deps[src], tgt)
		}
	}

	for _, g := range doc.Groups {
		for _, id := range g.Nodes {
			if !nodes[id] {
				addf("group %q references missing node %q", g.Name, id)
			}
		}
	}

	if cyclic := findCycle(nodes, deps); len(cyclic) > 0 {
		addf("nodes %s are on or behind a cycle and would never run", strings.Join(cyclic, ", "))
	}

	if len(issues) > 0 {
		return &Error{Issues: issues}
	}
	return nil
}

// findCycle peels nodes without pending predecessors and returns, sorted,
// the nodes that could never be scheduled.
func findCycle(nodes map[string]bool, deps map[string][]string) []string {
	indegree := make(map[string]int, len(nodes))
	for id := range nodes {
		indegree[id] = 0
	}
	for _, targets := range deps {
		for _, next := range targets {
			indegree[next]++
		}
	}

	var queue []string
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		delete(indegree, id)
		for _, next := range deps[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	stuck := make([]string, 0, len(indegree))
	for id := range indegree {
		stuck = append(stuck, id)
	}
	sort.Strings(stuck)
	return stuck
}
