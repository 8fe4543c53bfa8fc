package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/aretw0/weft/pkg/domain"
)

// NewRenderer returns a function that renders markdown using glamour.
// Without a usable renderer the markdown is returned as is.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return r.Render
}

// InspectReport describes a flow document as markdown.
func InspectReport(doc domain.FlowDocument) string {
	var sb strings.Builder
	name := doc.Name
	if name == "" {
		name = doc.ID
	}
	fmt.Fprintf(&sb, "# %s\n\n", name)
	if doc.Description != "" {
		sb.WriteString(doc.Description + "\n\n")
	}
	fmt.Fprintf(&sb, "- **id**: `%s`\n- **library**: `%s`\n- **nodes**: %d\n- **edges**: %d\n- **groups**: %d\n\n",
		doc.ID, doc.Library, len(doc.Nodes), len(doc.Edges), len(doc.Groups))

	if len(doc.Nodes) > 0 {
		sb.WriteString("## Nodes\n\n| id | component | executable | metadata |\n|---|---|---|---|\n")
		for _, n := range doc.Nodes {
			fmt.Fprintf(&sb, "| %s | %s | %t | %s |\n", cell(n.ID), cell(n.Component), n.Executable, metadataSummary(n.Metadata))
		}
		sb.WriteString("\n")
	}
	if len(doc.Edges) > 0 {
		sb.WriteString("## Edges\n\n| from | to |\n|---|---|\n")
		for _, e := range doc.Edges {
			fmt.Fprintf(&sb, "| %s.%s | %s.%s |\n", cell(e.Src.Node), cell(e.Src.Port), cell(e.Tgt.Node), cell(e.Tgt.Port))
		}
		sb.WriteString("\n")
	}
	if len(doc.Groups) > 0 {
		sb.WriteString("## Groups\n\n")
		for _, g := range doc.Groups {
			fmt.Fprintf(&sb, "- **%s**: %s\n", g.Name, strings.Join(g.Nodes, ", "))
		}
	}
	return sb.String()
}

func metadataSummary(md domain.Metadata) string {
	if len(md) == 0 {
		return ""
	}
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return cell(strings.Join(keys, ", "))
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
