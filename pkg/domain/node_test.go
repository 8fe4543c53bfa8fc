package domain_test

import (
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_HasFinishedIsTransitive(t *testing.T) {
	f := chain(t, "a", "b", "c")
	a, _ := f.Node("a", flowID)
	b, _ := f.Node("b", flowID)
	c, _ := f.Node("c", flowID)

	b.SetState(domain.NodeFinished)
	c.SetState(domain.NodeFinished)
	assert.False(t, b.HasFinished(), "b depends on unfinished a")
	assert.False(t, c.HasFinished())

	a.SetState(domain.NodeFinished)
	assert.True(t, b.HasFinished())
	assert.True(t, c.HasFinished())
}

func TestNode_HasFinishedWithTwoPredecessors(t *testing.T) {
	f := domain.NewFlow(flowID, "test", "core")
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, f.AddNode(id, "Comp", nil, flowID, true))
	}
	require.True(t, f.AddEdge(port("a", "out"), port("c", "left"), nil, flowID))
	require.True(t, f.AddEdge(port("b", "out"), port("c", "right"), nil, flowID))

	a, _ := f.Node("a", flowID)
	b, _ := f.Node("b", flowID)
	c, _ := f.Node("c", flowID)
	assert.ElementsMatch(t, []string{"a", "b"}, nodeIDs(c.PreviousInFlow()))

	a.SetState(domain.NodeFinished)
	assert.True(t, a.HasFinished())
	assert.False(t, b.HasFinished())

	b.SetState(domain.NodeFinished)
	assert.True(t, b.HasFinished())
}

func TestNode_HasFinishedTerminatesOnCycle(t *testing.T) {
	f := chain(t, "a", "b")
	require.True(t, f.AddEdge(port("b", "out"), port("a", "in"), nil, flowID))
	a, _ := f.Node("a", flowID)
	b, _ := f.Node("b", flowID)

	a.SetState(domain.NodeFinished)
	b.SetState(domain.NodeFinished)
	assert.True(t, a.HasFinished())
}

func TestNode_InterruptedIsNotFinished(t *testing.T) {
	f := chain(t, "a", "b")
	a, _ := f.Node("a", flowID)
	a.SetState(domain.NodeInterrupted)
	assert.False(t, a.HasFinished())
	assert.False(t, a.IsRunning())

	a.SetState(domain.NodeRunning)
	assert.True(t, a.IsRunning())

	a.PrepareForExecution()
	assert.Equal(t, domain.NodeIdle, a.State())
}

func TestNode_HasFinishedWithinIgnoresOutsiders(t *testing.T) {
	f := chain(t, "a", "b", "c")
	a, _ := f.Node("a", flowID)
	b, _ := f.Node("b", flowID)
	c, _ := f.Node("c", flowID)
	b.SetState(domain.NodeFinished)
	c.SetState(domain.NodeFinished)

	in := func(n *domain.Node) bool { return n != a }
	assert.False(t, c.HasFinished(), "a is idle")
	assert.True(t, c.HasFinishedWithin(in))

	b.SetState(domain.NodeFailed)
	assert.False(t, c.HasFinishedWithin(in))
}

func TestNode_StaleClaimCannotSettle(t *testing.T) {
	f := chain(t, "a")
	a, _ := f.Node("a", flowID)

	old := a.Claim()
	assert.True(t, a.IsRunning())

	a.PrepareForExecution()
	current := a.Claim()
	require.True(t, a.Settle(current, domain.NodeFinished))

	assert.False(t, a.Settle(old, domain.NodeInterrupted))
	assert.Equal(t, domain.NodeFinished, a.State())

	a.PrepareForExecution()
	assert.False(t, a.Settle(current, domain.NodeFailed), "reset invalidates the claim")
	assert.Equal(t, domain.NodeIdle, a.State())
}

func TestNode_PortsAreDeduplicated(t *testing.T) {
	f := chain(t, "a")
	a, _ := f.Node("a", flowID)
	a.AssignPortToEdge("out", "e1")
	a.AssignPortToEdge("out", "e1")
	a.AssignPortToEdge("out", "e2")
	assert.Equal(t, []string{"e1", "e2"}, a.Ports()["out"])

	a.ReleasePortEdge("e1")
	a.ReleasePortEdge("e2")
	assert.Empty(t, a.Ports())
}

func TestMetadata_Merge(t *testing.T) {
	base := domain.Metadata{"a": 1, "b": 2}
	out := base.Merge(domain.Metadata{"b": nil, "c": 3})
	assert.Equal(t, domain.Metadata{"a": 1, "c": 3}, out)
	assert.Equal(t, domain.Metadata{"a": 1, "b": 2}, base, "merge must not mutate the receiver")
}

func TestStatus(t *testing.T) {
	s := domain.NewStatus()
	assert.False(t, s.IsRunning())
	s.Start()
	assert.True(t, s.IsRunning())
	s.Stop()
	assert.False(t, s.IsRunning())
}
