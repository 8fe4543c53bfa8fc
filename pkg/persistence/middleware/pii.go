package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Mask replaces the value of every masked metadata key.
const Mask = "***"

type piiMiddleware struct {
	next     ports.FlowStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware returns a middleware that masks node, edge and group
// metadata values whose key matches one of the patterns. Nested maps are
// walked. Masking is one-way: Load returns the masked values.
func NewPIIMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid mask pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.FlowStore) ports.FlowStore {
		return &piiMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, id string, doc domain.FlowDocument) error {
	// Slices are copied so the caller's document stays untouched.
	masked := doc
	masked.Nodes = make([]domain.NodeDocument, len(doc.Nodes))
	for i, n := range doc.Nodes {
		n.Metadata = m.mask(n.Metadata)
		masked.Nodes[i] = n
	}
	masked.Edges = make([]domain.EdgeDocument, len(doc.Edges))
	for i, e := range doc.Edges {
		e.Metadata = m.mask(e.Metadata)
		masked.Edges[i] = e
	}
	masked.Groups = make([]domain.GroupDocument, len(doc.Groups))
	for i, g := range doc.Groups {
		g.Metadata = m.mask(g.Metadata)
		masked.Groups[i] = g
	}
	return m.next.Save(ctx, id, masked)
}

func (m *piiMiddleware) Load(ctx context.Context, id string) (domain.FlowDocument, error) {
	return m.next.Load(ctx, id)
}

func (m *piiMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) mask(md domain.Metadata) domain.Metadata {
	if md == nil {
		return nil
	}
	return domain.Metadata(maskMap(md, m.patterns))
}

// maskMap returns a masked deep copy of in.
func maskMap(in map[string]any, patterns []*regexp.Regexp) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if matchAny(k, patterns) {
			out[k] = Mask
			continue
		}
		switch sub := v.(type) {
		case map[string]any:
			out[k] = maskMap(sub, patterns)
		case domain.Metadata:
			out[k] = domain.Metadata(maskMap(sub, patterns))
		default:
			out[k] = v
		}
	}
	return out
}

func matchAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
