// Package engine hosts a topology behind a single actor so that
// initialization, optimization and route queries never interleave.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/najoast/physarum/core"
	"github.com/najoast/physarum/topology"
)

var (
	// ErrStopped is returned once the engine has been stopped or its
	// context cancelled.
	ErrStopped = errors.New("engine: stopped")

	// ErrBusy means the engine mailbox is full.
	ErrBusy = errors.New("engine: mailbox full")

	// ErrUnexpectedReply means the actor answered with a payload of the wrong type.
	ErrUnexpectedReply = errors.New("engine: unexpected reply")
)

// Observer receives the outcome of engine operations. monitor.Collector is
// the production implementation.
type Observer interface {
	ObserveInit(report topology.InitReport)
	ObserveOptimize(report topology.OptimizeReport, elapsed time.Duration)
	ObserveStats(stats topology.Stats)
	ObserveRoute(found bool)
}

type nopObserver struct{}

func (nopObserver) ObserveInit(topology.InitReport)                        {}
func (nopObserver) ObserveOptimize(topology.OptimizeReport, time.Duration) {}
func (nopObserver) ObserveStats(topology.Stats)                            {}
func (nopObserver) ObserveRoute(bool)                                      {}

// Options configure an Engine.
type Options struct {
	MailboxSize    int
	ProcessTimeout time.Duration
}

// Engine is the single owner of a topology.Topology. Every method is a
// message to the owning actor, so mutations and reads are serialized.
type Engine struct {
	topo     *topology.Topology
	actor    core.Actor
	logger   *zap.Logger
	observer Observer
}

type (
	initializeCmd struct{ decls []topology.Declaration }
	optimizeCmd   struct{ events []topology.Event }
	routeCmd      struct{ event topology.Event }
	explainCmd    struct{ event topology.Event }
	statsCmd      struct{}
	snapshotCmd   struct{}
	paramsCmd     struct{ params topology.Params }
)

// Explanation is a routing decision together with every candidate that
// was scored for it, taken from the same view of the topology.
type Explanation struct {
	Path       []topology.NodeID    `json:"path"`
	Candidates []topology.Candidate `json:"candidates"`
}

// New creates an engine over an empty topology. It does not start it.
func New(params topology.Params, opts Options, logger *zap.Logger, observer Observer) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}

	e := &Engine{
		topo:     topology.New(params),
		logger:   logger.Named("engine"),
		observer: observer,
	}

	actorOpts := core.DefaultActorOptions()
	actorOpts.Name = "topology"
	if opts.MailboxSize > 0 {
		actorOpts.MailboxSize = opts.MailboxSize
	}
	if opts.ProcessTimeout > 0 {
		actorOpts.ProcessTimeout = opts.ProcessTimeout
	}
	e.actor = core.NewActor(1, core.HandlerFunc(e.handle), actorOpts)

	return e, nil
}

// Start begins processing. The engine stops when ctx is cancelled or Stop
// is called.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.actor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	e.logger.Info("engine started")
	return nil
}

// Stop shuts the engine down after the message in flight.
func (e *Engine) Stop() error {
	if err := e.actor.Stop(); err != nil {
		return err
	}
	e.logger.Info("engine stopped")
	return nil
}

// ActorStats exposes the owning actor's counters.
func (e *Engine) ActorStats() core.ActorStats {
	return e.actor.Stats()
}

// Initialize adds the declared nodes and edges; existing ones are kept.
func (e *Engine) Initialize(ctx context.Context, decls []topology.Declaration) (topology.InitReport, error) {
	return call[topology.InitReport](ctx, e, initializeCmd{decls: decls})
}

// Optimize runs one growth/decay/prune cycle over the event batch.
func (e *Engine) Optimize(ctx context.Context, events []topology.Event) (topology.OptimizeReport, error) {
	return call[topology.OptimizeReport](ctx, e, optimizeCmd{events: events})
}

// Route returns the best direct hop for the event, or an empty path.
func (e *Engine) Route(ctx context.Context, event topology.Event) ([]topology.NodeID, error) {
	return call[[]topology.NodeID](ctx, e, routeCmd{event: event})
}

// Explain routes the event and returns the scored candidates alongside
// the chosen path.
func (e *Engine) Explain(ctx context.Context, event topology.Event) (Explanation, error) {
	return call[Explanation](ctx, e, explainCmd{event: event})
}

// Stats returns the aggregate view of the topology.
func (e *Engine) Stats(ctx context.Context) (topology.Stats, error) {
	return call[topology.Stats](ctx, e, statsCmd{})
}

// Snapshot returns a detached copy of the graph.
func (e *Engine) Snapshot(ctx context.Context) (topology.Snapshot, error) {
	return call[topology.Snapshot](ctx, e, snapshotCmd{})
}

// SetParams swaps the optimizer and router parameters.
func (e *Engine) SetParams(ctx context.Context, params topology.Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	_, err := call[struct{}](ctx, e, paramsCmd{params: params})
	return err
}

func call[T any](ctx context.Context, e *Engine, cmd any) (T, error) {
	var zero T
	resp, err := e.actor.Call(ctx, &core.Message{Type: core.MessageTypeRequest, Payload: cmd})
	switch {
	case errors.Is(err, core.ErrActorStopped):
		return zero, ErrStopped
	case errors.Is(err, core.ErrMailboxFull):
		return zero, ErrBusy
	case err != nil:
		return zero, err
	}
	out, ok := resp.Payload.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T for %T", ErrUnexpectedReply, resp.Payload, cmd)
	}
	return out, nil
}

// handle runs on the actor goroutine and is the only code that touches topo.
func (e *Engine) handle(ctx context.Context, msg *core.Message) (any, error) {
	switch cmd := msg.Payload.(type) {
	case initializeCmd:
		report := e.topo.Initialize(cmd.decls)
		e.observer.ObserveInit(report)
		e.observer.ObserveStats(e.topo.Stats())
		if report.NodesCreated > 0 || report.EdgesCreated > 0 {
			e.logger.Info("topology initialized",
				zap.Int("declarations", len(cmd.decls)),
				zap.Int("nodes_created", report.NodesCreated),
				zap.Int("edges_created", report.EdgesCreated),
				zap.Int("edges", e.topo.EdgeCount()))
		}
		return report, nil

	case optimizeCmd:
		return e.optimize(cmd.events), nil

	case routeCmd:
		path := e.topo.Route(cmd.event)
		e.observer.ObserveRoute(len(path) > 0)
		return path, nil

	case explainCmd:
		path := e.topo.Route(cmd.event)
		e.observer.ObserveRoute(len(path) > 0)
		return Explanation{Path: path, Candidates: e.topo.RouteCandidates(cmd.event)}, nil

	case statsCmd:
		return e.topo.Stats(), nil

	case snapshotCmd:
		return e.topo.Snapshot(), nil

	case paramsCmd:
		e.topo.SetParams(cmd.params)
		e.logger.Info("topology parameters updated",
			zap.Int("iterations", cmd.params.Iterations),
			zap.Float64("growth_rate", cmd.params.GrowthRate),
			zap.Float64("decay_rate", cmd.params.DecayRate),
			zap.Float64("prune_threshold", cmd.params.PruneThreshold))
		return struct{}{}, nil

	default:
		return nil, fmt.Errorf("engine: unknown command %T", msg.Payload)
	}
}

func (e *Engine) optimize(events []topology.Event) topology.OptimizeReport {
	cycle := uuid.New().String()
	start := time.Now()

	report := e.topo.Optimize(events)
	elapsed := time.Since(start)

	stats := e.topo.Stats()
	e.observer.ObserveOptimize(report, elapsed)
	e.observer.ObserveStats(stats)

	e.logger.Debug("optimize cycle",
		zap.String("cycle", cycle),
		zap.Int("events", report.Events),
		zap.Int("active_origins", report.ActiveOrigins),
		zap.Int("grown", report.Grown),
		zap.Int("decayed", report.Decayed),
		zap.Int("flat", report.Flat),
		zap.Int("edges", stats.EdgeCount),
		zap.Duration("elapsed", elapsed))

	for _, key := range report.Pruned {
		e.logger.Info("edge pruned", zap.String("cycle", cycle), zap.Stringer("edge", key))
	}
	return report
}
