package domain_test

import (
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowID = "ws-1"

func port(node, p string) domain.PortRef {
	return domain.PortRef{Node: node, Port: p}
}

func chain(t *testing.T, ids ...string) *domain.Flow {
	t.Helper()
	f := domain.NewFlow(flowID, "test", "core")
	for _, id := range ids {
		require.True(t, f.AddNode(id, "Comp", nil, flowID, true))
	}
	for i := 1; i < len(ids); i++ {
		require.True(t, f.AddEdge(port(ids[i-1], "out"), port(ids[i], "in"), nil, flowID))
	}
	return f
}

func nodeIDs(nodes []*domain.Node) []string {
	var ids []string
	for _, n := range nodes {
		ids = append(ids, n.ID())
	}
	return ids
}

func TestFlow_Graph(t *testing.T) {
	f := domain.NewFlow(flowID, "test", "core")
	require.True(t, f.AddGroup("g1", nil, nil, flowID))

	g, ok := f.Graph(flowID)
	require.True(t, ok)
	assert.Same(t, f, g)

	g, ok = f.Graph("g1")
	require.True(t, ok)
	assert.Equal(t, "g1", g.GraphID())

	g, ok = f.Graph("missing")
	assert.False(t, ok)
	assert.Nil(t, g)
}

func TestFlow_AddNodeUnknownGraph(t *testing.T) {
	f := chain(t, "a")
	assert.False(t, f.AddNode("x", "Comp", domain.Metadata{}, "badgraph", true))
	assert.False(t, f.NodeExists("x"))
	assert.Len(t, f.Nodes(), 1)
}

func TestFlow_AddNodeDuplicate(t *testing.T) {
	f := chain(t, "a")
	assert.False(t, f.AddNode("a", "Other", nil, flowID, true))
	n, ok := f.Node("a", flowID)
	require.True(t, ok)
	assert.Equal(t, "Comp", n.Component())
}

func TestFlow_AddNodeInGroupGraph(t *testing.T) {
	f := domain.NewFlow(flowID, "test", "core")
	require.True(t, f.AddGroup("g1", nil, nil, flowID))
	assert.True(t, f.AddNode("a", "Comp", nil, "g1", true))
	n, ok := f.Node("a", "g1")
	require.True(t, ok)
	assert.Equal(t, "g1", n.Graph())
}

func TestFlow_AddEdgeRejectsDuplicate(t *testing.T) {
	f := chain(t, "a", "b")
	assert.False(t, f.AddEdge(port("a", "out"), port("b", "in"), nil, flowID))
	assert.Len(t, f.Edges(), 1)

	// A different port pair between the same nodes is a distinct edge.
	assert.True(t, f.AddEdge(port("a", "err"), port("b", "in"), nil, flowID))
	assert.Len(t, f.Edges(), 2)
}

func TestFlow_AddEdgeRecordsPorts(t *testing.T) {
	f := chain(t, "a", "b")
	e, ok := f.Edge(port("a", "out"), port("b", "in"), flowID)
	require.True(t, ok)
	assert.NotEmpty(t, e.ID)

	a, _ := f.Node("a", flowID)
	b, _ := f.Node("b", flowID)
	assert.Equal(t, []string{e.ID}, a.Ports()["out"])
	assert.Equal(t, []string{e.ID}, b.Ports()["in"])

	byID, ok := f.EdgeByID(e.ID)
	require.True(t, ok)
	assert.Equal(t, e, byID)
}

func TestFlow_AddEdgeMissingEndpoint(t *testing.T) {
	f := chain(t, "a")
	assert.False(t, f.AddEdge(port("a", "out"), port("ghost", "in"), nil, flowID))
	assert.False(t, f.AddEdge(port("ghost", "out"), port("a", "in"), nil, flowID))
	assert.False(t, f.AddEdge(port("a", "out"), port("a", "in"), nil, "badgraph"))
	assert.Empty(t, f.Edges())
}

func TestFlow_Adjacency(t *testing.T) {
	f := chain(t, "a", "b", "c")
	a, _ := f.Node("a", flowID)
	b, _ := f.Node("b", flowID)
	c, _ := f.Node("c", flowID)

	assert.Nil(t, a.PreviousInFlow())
	assert.Equal(t, []string{"b"}, nodeIDs(a.NextInFlow()))
	assert.Equal(t, []string{"a"}, nodeIDs(b.PreviousInFlow()))
	assert.Equal(t, []string{"c"}, nodeIDs(b.NextInFlow()))
	assert.Nil(t, c.NextInFlow())
}

func TestFlow_RenameNode(t *testing.T) {
	f := chain(t, "a", "b")
	require.True(t, f.AddGroup("g1", []string{"a", "b"}, nil, flowID))

	assert.True(t, f.RenameNode("a", "z", flowID))
	assert.False(t, f.NodeExists("a"))
	assert.True(t, f.NodeExists("z"))

	assert.True(t, f.EdgeExists(port("z", "out"), port("b", "in"), flowID))
	b, _ := f.Node("b", flowID)
	assert.Equal(t, []string{"z"}, nodeIDs(b.PreviousInFlow()))

	g, ok := f.Group("g1", flowID)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "b"}, g.Nodes())
}

func TestFlow_RenameNodeRejectsTakenID(t *testing.T) {
	f := chain(t, "a", "b")
	assert.False(t, f.RenameNode("a", "b", flowID))
	assert.True(t, f.NodeExists("a"))
	assert.True(t, f.NodeExists("b"))
	assert.False(t, f.RenameNode("ghost", "c", flowID))
	assert.False(t, f.RenameNode("a", "c", "badgraph"))
}

func TestFlow_RemoveNodeCascades(t *testing.T) {
	f := chain(t, "a", "b", "c")
	require.True(t, f.AddGroup("g1", []string{"a", "b"}, nil, flowID))

	assert.True(t, f.RemoveNode("b", flowID))
	assert.False(t, f.NodeExists("b"))
	assert.Empty(t, f.Edges())

	a, _ := f.Node("a", flowID)
	assert.Nil(t, a.NextInFlow())
	assert.Empty(t, a.Ports())

	g, _ := f.Group("g1", flowID)
	assert.Equal(t, []string{"a"}, g.Nodes())

	assert.False(t, f.RemoveNode("b", flowID))
}

func TestFlow_ChangeNodeMergesMetadata(t *testing.T) {
	f := domain.NewFlow(flowID, "test", "core")
	require.True(t, f.AddNode("a", "Comp", domain.Metadata{"x": 1, "y": 2}, flowID, true))

	assert.True(t, f.ChangeNode("a", domain.Metadata{"x": 10, "y": nil, "z": 3}, flowID))
	n, _ := f.Node("a", flowID)
	assert.Equal(t, domain.Metadata{"x": 10, "z": 3}, n.Metadata())

	assert.False(t, f.ChangeNode("ghost", nil, flowID))
}

func TestFlow_RemoveEdge(t *testing.T) {
	f := chain(t, "a", "b")
	assert.True(t, f.RemoveEdge(flowID, port("a", "out"), port("b", "in")))
	assert.False(t, f.RemoveEdge(flowID, port("a", "out"), port("b", "in")))

	a, _ := f.Node("a", flowID)
	b, _ := f.Node("b", flowID)
	assert.Nil(t, a.NextInFlow())
	assert.Nil(t, b.PreviousInFlow())
}

func TestFlow_ChangeEdge(t *testing.T) {
	f := chain(t, "a", "b")
	assert.True(t, f.ChangeEdge(flowID, domain.Metadata{"route": 1}, port("a", "out"), port("b", "in")))
	e, _ := f.Edge(port("a", "out"), port("b", "in"), flowID)
	assert.Equal(t, domain.Metadata{"route": 1}, e.Metadata)
	assert.False(t, f.ChangeEdge(flowID, nil, port("b", "out"), port("a", "in")))
}

func TestFlow_Groups(t *testing.T) {
	f := chain(t, "a", "b")

	assert.True(t, f.AddGroup("g1", []string{"a"}, nil, flowID))
	assert.False(t, f.AddGroup("g1", nil, nil, flowID))
	assert.True(t, f.AddGroup("g2", nil, nil, flowID))

	assert.False(t, f.RenameGroup("g1", "g2", flowID))
	assert.True(t, f.RenameGroup("g1", "g3", flowID))
	assert.False(t, f.GroupExists("g1"))
	assert.True(t, f.GroupExists("g3"))

	assert.True(t, f.ChangeGroup("g3", domain.Metadata{"label": "x"}, flowID))
	g, _ := f.Group("g3", flowID)
	assert.Equal(t, domain.Metadata{"label": "x"}, g.Metadata())

	assert.True(t, f.RemoveGroup("g3", flowID))
	assert.False(t, f.RemoveGroup("g3", flowID))
	assert.True(t, f.NodeExists("a"))
}

func TestFlow_PortOperationsAreNoops(t *testing.T) {
	f := chain(t, "a")
	before := f.Document()

	assert.True(t, f.AddInitial(flowID, nil, "data", port("a", "in")))
	assert.True(t, f.RemoveInitial(flowID, port("a", "in")))
	assert.True(t, f.AddInport(flowID, "IN", port("a", "in")))
	assert.True(t, f.RemoveInport(flowID, "IN"))
	assert.True(t, f.RenameInport(flowID, "IN", "IN2"))
	assert.True(t, f.AddOutport(flowID, "OUT", port("a", "out")))
	assert.True(t, f.RemoveOutport(flowID, "OUT"))
	assert.True(t, f.RenameOutport(flowID, "OUT", "OUT2"))

	assert.Equal(t, before, f.Document())
}

func TestFindFirstNodes(t *testing.T) {
	t.Run("single node is always first", func(t *testing.T) {
		f := chain(t, "a", "b")
		b, _ := f.Node("b", flowID)
		first := domain.FindFirstNodes([]*domain.Node{b})
		assert.Equal(t, []string{"b"}, nodeIDs(first))
	})

	t.Run("nodes with predecessors are excluded", func(t *testing.T) {
		f := chain(t, "a", "b", "c")
		assert.Equal(t, []string{"a"}, nodeIDs(domain.FindFirstNodes(f.Nodes())))
	})

	t.Run("isolated node in multi-node scope is excluded", func(t *testing.T) {
		f := chain(t, "a", "b")
		require.True(t, f.AddNode("lonely", "Comp", nil, flowID, true))
		assert.Equal(t, []string{"a"}, nodeIDs(domain.FindFirstNodes(f.Nodes())))
	})

	t.Run("multiple roots", func(t *testing.T) {
		f := chain(t, "a", "c")
		require.True(t, f.AddNode("b", "Comp", nil, flowID, true))
		require.True(t, f.AddEdge(port("b", "out"), port("c", "in2"), nil, flowID))
		assert.Equal(t, []string{"a", "b"}, nodeIDs(domain.FindFirstNodes(f.Nodes())))
	})

	t.Run("edges leaving the scope are ignored", func(t *testing.T) {
		f := chain(t, "a", "b", "c", "d")
		b, _ := f.Node("b", flowID)
		c, _ := f.Node("c", flowID)
		assert.Equal(t, []string{"b"}, nodeIDs(domain.FindFirstNodes([]*domain.Node{b, c})))
	})
}

func TestFlow_ScopeNodes(t *testing.T) {
	f := chain(t, "a", "b", "c")
	require.True(t, f.AddGroup("g1", []string{"b", "ghost", "c"}, nil, flowID))

	assert.Equal(t, []string{"a", "b", "c"}, nodeIDs(f.ScopeNodes(f)))
	g, _ := f.Graph("g1")
	assert.Equal(t, []string{"b", "c"}, nodeIDs(f.ScopeNodes(g)))
}

func TestFlow_Clear(t *testing.T) {
	f := chain(t, "a", "b")
	require.True(t, f.AddGroup("g1", []string{"a"}, nil, flowID))
	f.Clear()
	assert.Empty(t, f.Nodes())
	assert.Empty(t, f.Edges())
	assert.Empty(t, f.Groups())
	assert.True(t, f.AddNode("a", "Comp", nil, flowID, true))
}
