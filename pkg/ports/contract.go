package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunFlowStoreContract runs a suite of tests to verify that a FlowStore
// implementation adheres to the interface contract.
func RunFlowStoreContract(t *testing.T, store FlowStore) {
	ctx := context.Background()
	id := "contract-test-ws-" + time.Now().Format("20060102150405")

	sample := func(id string) domain.FlowDocument {
		f := domain.NewFlow(id, "contract", "core")
		f.AddNode("a", "Echo", domain.Metadata{"label": "first"}, id, true)
		f.AddNode("b", "Echo", nil, id, true)
		f.AddEdge(domain.PortRef{Node: "a", Port: "out"}, domain.PortRef{Node: "b", Port: "in"}, nil, id)
		f.AddGroup("pair", []string{"a", "b"}, nil, id)
		return f.Document()
	}

	t.Run("Save and Load", func(t *testing.T) {
		doc := sample(id)
		require.NoError(t, store.Save(ctx, id, doc), "Save should not return error")

		loaded, err := store.Load(ctx, id)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, doc.ID, loaded.ID)
		assert.Equal(t, doc.Name, loaded.Name)
		require.Len(t, loaded.Nodes, 2)
		assert.Equal(t, "first", loaded.Nodes[0].Metadata["label"])
		require.Len(t, loaded.Edges, 1)
		assert.Equal(t, doc.Edges[0].ID, loaded.Edges[0].ID)
		assert.Equal(t, []string{"a", "b"}, loaded.Groups[0].Nodes)

		f, err := domain.FlowFromDocument(loaded)
		require.NoError(t, err)
		b, ok := f.Node("b", id)
		require.True(t, ok)
		require.Len(t, b.PreviousInFlow(), 1)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+id)
		assert.ErrorIs(t, err, domain.ErrWorkspaceNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, id, sample(id)))
		require.NoError(t, store.Delete(ctx, id), "Delete should not return error")

		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrWorkspaceNotFound, "Load after Delete should return ErrWorkspaceNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := id + "-1"
		id2 := id + "-2"
		require.NoError(t, store.Save(ctx, id1, sample(id1)))
		require.NoError(t, store.Save(ctx, id2, sample(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
