package domain

// Metadata keys with a meaning for the runtime.
const (
	// KeyState is the metadata key used when a node update carries its execution state.
	KeyState = "state"

	// KeyComponentOverrides holds per-node settings consumed by component runners.
	KeyComponentOverrides = "component"
)

// Metadata is the free-form key/value bag attached to nodes, edges and groups.
type Metadata map[string]any

// Clone returns a shallow copy. A nil Metadata clones to an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge applies patch on top of m and returns the result.
// Keys whose patch value is nil are removed.
func (m Metadata) Merge(patch Metadata) Metadata {
	out := m.Clone()
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
