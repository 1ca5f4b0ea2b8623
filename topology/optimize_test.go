package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizeScenario(t *testing.T) {
	topo := New(DefaultParams())
	topo.Initialize([]Declaration{decl("api", "click", "bot", "notify")})

	report := topo.Optimize(repeat(apiClick, 150))

	edge, ok := topo.Edge(apiClickN, botNotify)
	require.True(t, ok)
	assert.Equal(t, 150.0, edge.Traffic)

	perIteration := 0.1 * (1 / 81.0) * 1.5
	assert.InDelta(t, 0.0018519, perIteration, 1e-6)
	assert.InDelta(t, 0.5+10*perIteration, edge.Strength, 1e-12)
	assert.InDelta(t, 0.519, edge.Strength, 0.0005)

	assert.Equal(t, 150, report.Events)
	assert.Equal(t, 1, report.ActiveOrigins)
	assert.Equal(t, 1, report.Grown)
	assert.Empty(t, report.Pruned)

	assert.Equal(t, []NodeID{apiClickN, botNotify}, topo.Route(apiClick))
}

func TestOptimizeOverwritesTraffic(t *testing.T) {
	topo := New(DefaultParams())
	topo.Initialize([]Declaration{decl("api", "click", "bot", "notify")})

	topo.Optimize(repeat(apiClick, 150))
	topo.Optimize(repeat(apiClick, 20))

	edge, ok := topo.Edge(apiClickN, botNotify)
	require.True(t, ok)
	assert.Equal(t, 20.0, edge.Traffic)
}

func TestOptimizeGrowthCeiling(t *testing.T) {
	p := DefaultParams()
	p.Edge.Latency = 1
	p.Edge.Cost = 0
	topo := New(p)
	topo.Initialize([]Declaration{decl("api", "click", "bot", "notify")})

	for i := 0; i < 50; i++ {
		topo.Optimize(repeat(apiClick, 10000))
		edge, ok := topo.Edge(apiClickN, botNotify)
		require.True(t, ok)
		require.LessOrEqual(t, edge.Strength, 1.0)
	}
	edge, _ := topo.Edge(apiClickN, botNotify)
	assert.Equal(t, 1.0, edge.Strength)
}

func TestOptimizeDecayFloorAndPrune(t *testing.T) {
	p := DefaultParams()
	p.Iterations = 1
	topo := New(p)
	topo.Initialize([]Declaration{decl("api", "click", "bot", "notify")})

	var pruned []EdgeKey
	for i := 0; i < 20 && len(pruned) == 0; i++ {
		edge, ok := topo.Edge(apiClickN, botNotify)
		require.True(t, ok)
		require.GreaterOrEqual(t, edge.Strength, 0.0)
		pruned = topo.Optimize(nil).Pruned
	}
	assert.Equal(t, []EdgeKey{{From: apiClickN, To: botNotify}}, pruned)
	assert.Zero(t, topo.EdgeCount())
	assert.Equal(t, 2, topo.NodeCount(), "pruning keeps nodes")
}

func TestOptimizeIdleEdgePrunedInOneCycle(t *testing.T) {
	topo := New(DefaultParams())
	topo.Initialize([]Declaration{
		decl("api", "click", "bot", "notify"),
		decl("cron", "tick", "bot", "notify"),
	})

	report := topo.Optimize(repeat(apiClick, 1))

	assert.Equal(t, 1, report.Decayed)
	assert.Equal(t, []EdgeKey{{From: OriginID("cron", "tick"), To: botNotify}}, report.Pruned)
	_, ok := topo.Edge(OriginID("cron", "tick"), botNotify)
	assert.False(t, ok)
}

func TestOptimizeLowReliabilityStaysFlat(t *testing.T) {
	p := DefaultParams()
	p.Destination.Reliability = 0.9
	topo := New(p)
	topo.Initialize([]Declaration{decl("api", "click", "bot", "notify")})

	report := topo.Optimize(repeat(apiClick, 500))

	edge, ok := topo.Edge(apiClickN, botNotify)
	require.True(t, ok)
	assert.Equal(t, 0.5, edge.Strength)
	assert.Equal(t, 1, report.Flat)
	assert.Zero(t, report.Grown)
	assert.Zero(t, report.Decayed)
}

func TestPruneBoundary(t *testing.T) {
	p := DefaultParams()
	p.Destination.Reliability = 0.5
	topo := New(p)
	topo.Initialize([]Declaration{
		decl("api", "click", "bot", "notify"),
		decl("api", "click", "bot", "archive"),
	})

	at, _ := topo.edges.Get(EdgeKey{From: apiClickN, To: botNotify})
	at.Strength = 0.1
	below, _ := topo.edges.Get(EdgeKey{From: apiClickN, To: DestinationID("bot", "archive")})
	below.Strength = 0.0999

	report := topo.Optimize(repeat(apiClick, 5))

	edge, ok := topo.Edge(apiClickN, botNotify)
	require.True(t, ok, "strength exactly at the floor survives")
	assert.Equal(t, 0.1, edge.Strength)
	assert.Len(t, report.Pruned, 1)

	topo.eachEdge(func(e *Edge) bool {
		assert.GreaterOrEqual(t, e.Strength, 0.1)
		return true
	})
}

func TestPrunedEdgeRecreatedFresh(t *testing.T) {
	topo := New(DefaultParams())
	decls := []Declaration{decl("api", "click", "bot", "notify")}
	topo.Initialize(decls)

	topo.Optimize(repeat(apiClick, 150))
	topo.Optimize(nil)
	require.Zero(t, topo.EdgeCount())

	topo.Initialize(decls)
	edge, ok := topo.Edge(apiClickN, botNotify)
	require.True(t, ok)
	assert.Equal(t, 0.5, edge.Strength)
	assert.Equal(t, 0.0, edge.Traffic)
}

func TestOptimizeBeforeInitialize(t *testing.T) {
	topo := New(DefaultParams())
	report := topo.Optimize(repeat(apiClick, 3))

	assert.Equal(t, 3, report.Events)
	assert.Zero(t, report.Grown+report.Decayed+report.Flat)
	assert.Empty(t, report.Pruned)
}
