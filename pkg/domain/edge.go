package domain

// PortRef addresses one port of one node.
type PortRef struct {
	Node string `json:"node"`
	Port string `json:"port"`
}

// Edge is a directed connection from a source port to a target port.
// Edges are owned by a Flow and guarded by its lock; callers receive copies.
type Edge struct {
	ID       string
	Src      PortRef
	Tgt      PortRef
	Metadata Metadata
	Graph    string
}

func (e *Edge) connects(src, tgt PortRef) bool {
	return e.Src == src && e.Tgt == tgt
}

func (e *Edge) clone() Edge {
	c := *e
	c.Metadata = e.Metadata.Clone()
	return c
}
