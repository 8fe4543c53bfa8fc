package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

// Overlay carries run state to paint on top of the graph.
type Overlay struct {
	States map[string]domain.NodeState
}

// OverlayFromFlow snapshots the execution state of every node of f.
func OverlayFromFlow(f *domain.Flow) *Overlay {
	o := &Overlay{States: make(map[string]domain.NodeState)}
	for _, n := range f.Nodes() {
		o.States[n.ID()] = n.State()
	}
	return o
}

// GenerateMermaid renders a flow document as a Mermaid flowchart.
//
// Shapes:
//   - entry nodes (no incoming edge): ((circle))
//   - non-executable nodes: [/parallelogram/]
//   - everything else: [rectangle] labelled with id and component
//
// Groups become subgraphs. A node listed in several groups is drawn in the
// first one only. Edge labels show the source and target ports.
func GenerateMermaid(doc domain.FlowDocument, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	hasIncoming := make(map[string]bool)
	for _, e := range doc.Edges {
		hasIncoming[e.Tgt.Node] = true
	}

	nodes := make(map[string]domain.NodeDocument, len(doc.Nodes))
	for _, n := range doc.Nodes {
		nodes[n.ID] = n
	}

	drawn := make(map[string]bool)
	for _, g := range doc.Groups {
		fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", sanitizeMermaidID("group_"+g.Name), escape(g.Name))
		for _, id := range g.Nodes {
			n, ok := nodes[id]
			if !ok || drawn[id] {
				continue
			}
			drawn[id] = true
			sb.WriteString("    " + nodeLine(n, hasIncoming[id]))
		}
		sb.WriteString("    end\n")
	}
	for _, n := range doc.Nodes {
		if !drawn[n.ID] {
			sb.WriteString(nodeLine(n, hasIncoming[n.ID]))
		}
	}

	for _, e := range doc.Edges {
		from, to := sanitizeMermaidID(e.Src.Node), sanitizeMermaidID(e.Tgt.Node)
		label := portLabel(e.Src.Port, e.Tgt.Port)
		if label == "" {
			fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
			continue
		}
		fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", from, escape(label), to)
	}

	if overlay != nil && len(overlay.States) > 0 {
		sb.WriteString("\n    %% Run state\n")
		sb.WriteString("    classDef running fill:#fff3c4,stroke:#f9a825,stroke-width:3px,color:#000;\n")
		sb.WriteString("    classDef finished fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef interrupted fill:#eeeeee,stroke:#616161,stroke-dasharray:4,color:#000;\n")

		ids := make([]string, 0, len(overlay.States))
		for id := range overlay.States {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			state := overlay.States[id]
			if state == domain.NodeIdle {
				continue
			}
			if _, ok := nodes[id]; !ok {
				continue
			}
			fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(id), state)
		}
	}

	return sb.String()
}

func nodeLine(n domain.NodeDocument, hasIncoming bool) string {
	opener, closer := "[", "]"
	switch {
	case !n.Executable:
		opener, closer = "[/", "/]"
	case !hasIncoming:
		opener, closer = "((", "))"
	}
	label := escape(n.ID)
	if n.Component != "" {
		label += " <br/> " + escape(n.Component)
	}
	return fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeMermaidID(n.ID), opener, label, closer)
}

func portLabel(src, tgt string) string {
	switch {
	case src == "" && tgt == "":
		return ""
	case src == "":
		return tgt
	case tgt == "":
		return src
	}
	return src + " → " + tgt
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
