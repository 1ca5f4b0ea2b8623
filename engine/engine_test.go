package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/najoast/physarum/topology"
)

var (
	apiClick  = topology.Event{SourceType: "api", EventType: "click"}
	apiClickN = topology.OriginID("api", "click")
	botNotify = topology.DestinationID("bot", "notify")
)

func apiClickDecl() topology.Declaration {
	return topology.Declaration{
		From: topology.Source{SourceType: "api", EventType: "click"},
		To:   topology.Target{TargetAgentRole: "bot", ActionType: "notify"},
	}
}

func repeat(ev topology.Event, n int) []topology.Event {
	out := make([]topology.Event, n)
	for i := range out {
		out[i] = ev
	}
	return out
}

type recordingObserver struct {
	mu        sync.Mutex
	inits     int
	optimizes int
	lastStats topology.Stats
	routes    map[bool]int
}

func (o *recordingObserver) ObserveInit(topology.InitReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inits++
}

func (o *recordingObserver) ObserveOptimize(topology.OptimizeReport, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.optimizes++
}

func (o *recordingObserver) ObserveStats(s topology.Stats) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastStats = s
}

func (o *recordingObserver) ObserveRoute(found bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.routes == nil {
		o.routes = map[bool]int{}
	}
	o.routes[found]++
}

func startEngine(t *testing.T, obs Observer) *Engine {
	t.Helper()
	e, err := New(topology.DefaultParams(), Options{}, zap.NewNop(), obs)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func TestNewRejectsInvalidParams(t *testing.T) {
	p := topology.DefaultParams()
	p.Iterations = -1

	_, err := New(p, Options{}, nil, nil)
	assert.ErrorIs(t, err, topology.ErrInvalidParams)
}

func TestEngineScenario(t *testing.T) {
	obs := &recordingObserver{}
	e := startEngine(t, obs)
	ctx := context.Background()

	initReport, err := e.Initialize(ctx, []topology.Declaration{apiClickDecl()})
	require.NoError(t, err)
	assert.Equal(t, 2, initReport.NodesCreated)
	assert.Equal(t, 1, initReport.EdgesCreated)

	report, err := e.Optimize(ctx, repeat(apiClick, 150))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Grown)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, 150.0, snap.Edges[0].Traffic)
	assert.InDelta(t, 0.519, snap.Edges[0].Strength, 0.0005)

	path, err := e.Route(ctx, apiClick)
	require.NoError(t, err)
	assert.Equal(t, []topology.NodeID{apiClickN, botNotify}, path)

	path, err = e.Route(ctx, topology.Event{SourceType: "cli", EventType: "noop"})
	require.NoError(t, err)
	assert.Empty(t, path)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NodeCount)
	assert.Equal(t, 1, stats.EdgeCount)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.inits)
	assert.Equal(t, 1, obs.optimizes)
	assert.Equal(t, 1, obs.routes[true])
	assert.Equal(t, 1, obs.routes[false])
	assert.Equal(t, 1, obs.lastStats.EdgeCount)
}

func TestEngineExplain(t *testing.T) {
	obs := &recordingObserver{}
	e := startEngine(t, obs)
	ctx := context.Background()

	_, err := e.Initialize(ctx, []topology.Declaration{apiClickDecl()})
	require.NoError(t, err)

	ex, err := e.Explain(ctx, apiClick)
	require.NoError(t, err)
	require.Len(t, ex.Path, 2)
	require.Len(t, ex.Candidates, 1)
	assert.Equal(t, ex.Path[0], ex.Candidates[0].Edge.From)
	assert.Equal(t, ex.Path[1], ex.Candidates[0].Edge.To)
	assert.InDelta(t, 0.5*(1.0/80)*0.98, ex.Candidates[0].Score, 1e-12)

	ex, err = e.Explain(ctx, topology.Event{SourceType: "cli", EventType: "noop"})
	require.NoError(t, err)
	assert.Empty(t, ex.Path)
	assert.Empty(t, ex.Candidates)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.routes[true])
	assert.Equal(t, 1, obs.routes[false])
}

func TestEngineSetParams(t *testing.T) {
	e := startEngine(t, nil)
	ctx := context.Background()

	_, err := e.Initialize(ctx, []topology.Declaration{apiClickDecl()})
	require.NoError(t, err)

	p := topology.DefaultParams()
	p.DecayRate = 0.01
	require.NoError(t, e.SetParams(ctx, p))

	_, err = e.Optimize(ctx, nil)
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Edges, 1)
	assert.InDelta(t, 0.4, snap.Edges[0].Strength, 1e-9)

	p.PruneThreshold = 2
	assert.ErrorIs(t, e.SetParams(ctx, p), topology.ErrInvalidParams)
}

func TestEngineSerializesConcurrentCallers(t *testing.T) {
	e := startEngine(t, nil)
	ctx := context.Background()

	_, err := e.Initialize(ctx, []topology.Declaration{apiClickDecl()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := e.Optimize(ctx, repeat(apiClick, 10))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := e.Route(ctx, apiClick)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := e.Stats(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EdgeCount)
	assert.GreaterOrEqual(t, e.ActorStats().MessagesProcessed, uint64(62))
}

func TestEngineStopped(t *testing.T) {
	e, err := New(topology.DefaultParams(), Options{}, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Stop())

	_, err = e.Stats(context.Background())
	assert.ErrorIs(t, err, ErrStopped)

	_, err = e.Route(context.Background(), apiClick)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEngineCallRespectsContext(t *testing.T) {
	// Never started: the message sits in the mailbox until ctx expires.
	e, err := New(topology.DefaultParams(), Options{MailboxSize: 4}, zap.NewNop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = e.Stats(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineBusy(t *testing.T) {
	e, err := New(topology.DefaultParams(), Options{MailboxSize: 1}, zap.NewNop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	go func() { _, _ = e.Stats(ctx) }()
	require.Eventually(t, func() bool { return e.ActorStats().MailboxSize == 1 }, time.Second, time.Millisecond)

	_, err = e.Stats(ctx)
	assert.ErrorIs(t, err, ErrBusy)
}
