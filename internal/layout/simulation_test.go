package layout

import (
	"fmt"
	"math"
	"testing"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/graph"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, nodeCount int) graph.Graph {
	t.Helper()
	entries := make([]journal.Entry, 0, nodeCount)
	index := journal.TagIndex{}
	var references []journal.EntryReference
	for i := 0; i < nodeCount; i++ {
		id := fmt.Sprintf("n%02d", i)
		entries = append(entries, journal.Entry{ID: id, Title: id, EntryType: journal.EntryTypeNote})
		index[id] = []journal.Tag{{ID: fmt.Sprintf("t%d", i%3), Name: fmt.Sprintf("tag%d", i%3)}}
		if i > 0 && i%4 == 0 {
			references = append(references, journal.EntryReference{FromEntryID: id, ToEntryID: "n00"})
		}
	}
	g, err := graph.Build(entries, index, references, 0)
	require.NoError(t, err)
	return g
}

func TestNewRejectsInvalidCanvas(t *testing.T) {
	g := buildGraph(t, 2)
	for _, size := range [][2]float64{{0, 100}, {100, -1}, {math.NaN(), 10}, {math.Inf(1), 10}} {
		_, err := New(g, size[0], size[1])
		assert.ErrorIs(t, err, ErrInvalidCanvas)
	}
}

func TestNewRejectsEmptyGraph(t *testing.T) {
	_, err := New(graph.Graph{}, 800, 600)
	assert.ErrorIs(t, err, ErrNoNodes)

	frame, err := Settle(graph.Graph{}, 800, 600)
	require.NoError(t, err)
	assert.True(t, frame.Settled)
	assert.Empty(t, frame.Nodes)
}

func TestFrameBeforeFirstTickIsNotReady(t *testing.T) {
	sim, err := New(buildGraph(t, 3), 800, 600)
	require.NoError(t, err)
	frame := sim.Frame()
	assert.False(t, frame.Ready())
	assert.Empty(t, frame.Nodes)
	assert.Empty(t, frame.Links)

	frame = sim.Step()
	assert.True(t, frame.Ready())
	assert.Len(t, frame.Nodes, 3)
}

func TestSimulationTerminates(t *testing.T) {
	for _, size := range []int{1, 2, 12, 60} {
		t.Run(fmt.Sprintf("%d nodes", size), func(t *testing.T) {
			sim, err := New(buildGraph(t, size), 800, 600, WithSeed(7))
			require.NoError(t, err)
			frame := sim.Run(1000)
			assert.True(t, frame.Settled, "settled within 1000 ticks")
			assert.Less(t, frame.Alpha, AlphaMin)
			assert.LessOrEqual(t, sim.Ticks(), 400)
		})
	}
}

func TestEveryFrameReportsAllNodesAndLinks(t *testing.T) {
	g := buildGraph(t, 8)
	sim, err := New(g, 400, 400)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		frame := sim.Step()
		require.Len(t, frame.Nodes, len(g.Nodes))
		require.Len(t, frame.Links, len(g.Edges))
		for _, link := range frame.Links {
			from, ok := frame.Position(link.Source)
			require.True(t, ok)
			assert.Equal(t, from, link.From)
			to, ok := frame.Position(link.Target)
			require.True(t, ok)
			assert.Equal(t, to, link.To)
		}
	}
}

func TestSettledLayoutAvoidsCollisions(t *testing.T) {
	g := buildGraph(t, 20)
	frame, err := Settle(g, 800, 600, WithSeed(3))
	require.NoError(t, err)
	require.True(t, frame.Settled)

	for i := 0; i < len(frame.Nodes); i++ {
		for j := i + 1; j < len(frame.Nodes); j++ {
			a, b := frame.Nodes[i], frame.Nodes[j]
			minimum := CollisionRadius(a.ConnectionCount) + CollisionRadius(b.ConnectionCount)
			distance := math.Hypot(a.X-b.X, a.Y-b.Y)
			assert.GreaterOrEqual(t, distance, 0.8*minimum, "nodes %s and %s overlap", a.ID, b.ID)
		}
	}
}

func TestSettledLayoutIsCentered(t *testing.T) {
	frame, err := Settle(buildGraph(t, 10), 800, 600)
	require.NoError(t, err)
	var sumX, sumY float64
	for _, node := range frame.Nodes {
		sumX += node.X
		sumY += node.Y
	}
	count := float64(len(frame.Nodes))
	assert.InDelta(t, 400, sumX/count, 25)
	assert.InDelta(t, 300, sumY/count, 25)
}

func TestReferenceLinkSettlesNearTargetDistance(t *testing.T) {
	entries := []journal.Entry{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	references := []journal.EntryReference{{FromEntryID: "a", ToEntryID: "b"}}
	g, err := graph.Build(entries, nil, references, 0)
	require.NoError(t, err)

	frame, err := Settle(g, 600, 600)
	require.NoError(t, err)
	a, _ := frame.Position("a")
	b, _ := frame.Position("b")
	assert.InDelta(t, referenceDistance, math.Hypot(a.X-b.X, a.Y-b.Y), 40)
}

func TestReheatResumesFromCurrentPositions(t *testing.T) {
	sim, err := New(buildGraph(t, 6), 500, 500)
	require.NoError(t, err)
	settled := sim.Run(0)
	require.True(t, settled.Settled)

	unchanged := sim.Step()
	assert.Equal(t, settled.Tick, unchanged.Tick, "stepping a settled simulation is a no-op")

	sim.Reheat(0)
	assert.Equal(t, ReheatAlpha, sim.Alpha())
	assert.False(t, sim.Settled())

	next := sim.Step()
	assert.Equal(t, settled.Tick+1, next.Tick)
	for _, node := range next.Nodes {
		before, ok := settled.Position(node.ID)
		require.True(t, ok)
		assert.InDelta(t, before.X, node.X, 15)
		assert.InDelta(t, before.Y, node.Y, 15)
	}

	resumed := sim.Run(0)
	assert.True(t, resumed.Settled)
}

func TestWithPreviousKeepsMatchingPositions(t *testing.T) {
	g := buildGraph(t, 5)
	first, err := Settle(g, 500, 500)
	require.NoError(t, err)

	sim, err := New(g, 500, 500, WithPrevious(first))
	require.NoError(t, err)
	frame := sim.Step()
	for _, node := range frame.Nodes {
		before, _ := first.Position(node.ID)
		assert.InDelta(t, before.X, node.X, 20)
		assert.InDelta(t, before.Y, node.Y, 20)
	}
}

func TestPinnedNodeStaysPut(t *testing.T) {
	g := buildGraph(t, 5)
	frame, err := Settle(g, 500, 500, WithPinned("n00", 10, 20))
	require.NoError(t, err)
	position, ok := frame.Position("n00")
	require.True(t, ok)
	assert.Equal(t, Point{X: 10, Y: 20}, position)
}

func TestSeedMakesRunsReproducible(t *testing.T) {
	g := buildGraph(t, 9)
	first, err := Settle(g, 640, 480, WithSeed(42))
	require.NoError(t, err)
	second, err := Settle(g, 640, 480, WithSeed(42))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNodeRadiusClamp(t *testing.T) {
	assert.Equal(t, 8.0, NodeRadius(0))
	assert.Equal(t, 8.0, NodeRadius(1))
	assert.Equal(t, 10.0, NodeRadius(2))
	assert.Equal(t, 20.0, NodeRadius(7))
	assert.Equal(t, 20.0, NodeRadius(50))
	assert.Equal(t, 28.0, CollisionRadius(50))
}
