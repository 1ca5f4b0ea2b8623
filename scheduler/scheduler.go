// Package scheduler drives the topology: it periodically drains observed
// events into an optimize cycle and re-reads routing declarations.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/najoast/physarum/config"
	"github.com/najoast/physarum/topology"
	"github.com/najoast/physarum/wormhole"
)

// Engine is the part of engine.Engine the scheduler drives.
type Engine interface {
	Initialize(ctx context.Context, decls []topology.Declaration) (topology.InitReport, error)
	Optimize(ctx context.Context, events []topology.Event) (topology.OptimizeReport, error)
}

// Source hands over the events observed since the previous drain and
// takes them back when a cycle fails.
type Source interface {
	Drain() []topology.Event
	Requeue(events []topology.Event) int
}

// Scheduler runs optimize cycles and declaration resyncs.
type Scheduler struct {
	cfg    config.SchedulerConfig
	engine Engine
	source Source
	store  wormhole.Store
	logger *zap.Logger

	resync chan struct{}
}

// New creates a Scheduler. store may be nil, in which case resync is a no-op.
func New(cfg config.SchedulerConfig, engine Engine, source Source, store wormhole.Store, logger *zap.Logger) *Scheduler {
	if cfg.OptimizeInterval <= 0 {
		cfg.OptimizeInterval = config.DefaultConfig().Scheduler.OptimizeInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		source: source,
		store:  store,
		logger: logger.Named("scheduler"),
		resync: make(chan struct{}, 1),
	}
}

// Run seeds the topology, then loops until ctx is cancelled. Cycle errors
// are logged; the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.Duration("optimize_interval", s.cfg.OptimizeInterval),
		zap.Duration("resync_interval", s.cfg.ResyncInterval))

	if _, err := s.Resync(ctx); err != nil {
		s.logger.Error("initial resync failed", zap.Error(err))
	}

	optimize := time.NewTicker(s.cfg.OptimizeInterval)
	defer optimize.Stop()

	var resyncC <-chan time.Time
	if s.cfg.ResyncInterval > 0 {
		t := time.NewTicker(s.cfg.ResyncInterval)
		defer t.Stop()
		resyncC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil

		case <-optimize.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("optimize cycle failed", zap.Error(err))
			}

		case <-resyncC:
			s.resyncAndLog(ctx)

		case <-s.resync:
			s.resyncAndLog(ctx)
		}
	}
}

// RequestResync asks the running loop to resync soon. It never blocks;
// requests made while one is pending are merged.
func (s *Scheduler) RequestResync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// Tick drains the source and runs one optimize cycle. An empty batch still
// runs so that idle edges decay. If the engine rejects the cycle the events
// go back to the source for the next tick.
func (s *Scheduler) Tick(ctx context.Context) (topology.OptimizeReport, error) {
	batch := s.source.Drain()
	report, err := s.engine.Optimize(ctx, batch)
	if err != nil && len(batch) > 0 {
		dropped := s.source.Requeue(batch)
		s.logger.Warn("optimize cycle failed, events requeued",
			zap.Int("events", len(batch)),
			zap.Int("dropped", dropped),
			zap.Error(err))
	}
	return report, err
}

// Resync re-reads the declaration store and initializes the topology with
// it. Existing edges keep their state; declarations removed from the store
// are not deleted and decay away instead.
func (s *Scheduler) Resync(ctx context.Context) (topology.InitReport, error) {
	if s.store == nil {
		return topology.InitReport{}, nil
	}

	decls, err := wormhole.Load(ctx, s.store)
	if err != nil && !errors.Is(err, wormhole.ErrInvalidWormhole) {
		return topology.InitReport{}, err
	}
	if err != nil {
		s.logger.Warn("skipping invalid wormholes", zap.Error(err))
	}

	return s.engine.Initialize(ctx, decls)
}

func (s *Scheduler) resyncAndLog(ctx context.Context) {
	report, err := s.Resync(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("declaration resync failed", zap.Error(err))
		}
		return
	}
	s.logger.Debug("declarations resynced",
		zap.Int("nodes_created", report.NodesCreated),
		zap.Int("edges_created", report.EdgesCreated))
}
