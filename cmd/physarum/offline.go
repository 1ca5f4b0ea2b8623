package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/najoast/physarum/config"
	"github.com/najoast/physarum/engine"
	"github.com/najoast/physarum/events"
	"github.com/najoast/physarum/topology"
	"github.com/najoast/physarum/wormhole"
)

// session is an engine seeded from the configured wormhole store, used by
// the commands that work without a running server.
type session struct {
	engine *engine.Engine
	logger *zap.Logger
	close  func()
}

func (c *cli) openSession(ctx context.Context) (*session, error) {
	logger, err := c.logger(true)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(c.cfg.Optimizer, engine.Options{
		MailboxSize:    c.cfg.Engine.MailboxSize,
		ProcessTimeout: c.cfg.Engine.ProcessTimeout,
	}, logger, nil)
	if err != nil {
		return nil, err
	}
	if err := eng.Start(ctx); err != nil {
		return nil, err
	}
	s := &session{engine: eng, logger: logger, close: func() {
		_ = eng.Stop()
		_ = logger.Sync()
	}}

	store, closeStore, err := openStore(ctx, c.cfg.Wormholes, logger)
	if err != nil {
		s.close()
		return nil, err
	}
	defer closeStore()

	decls, err := wormhole.Load(ctx, store)
	if err != nil && !errors.Is(err, wormhole.ErrInvalidWormhole) {
		s.close()
		return nil, err
	}
	if err != nil {
		logger.Warn("skipping invalid wormholes", zap.Error(err))
	}
	if _, err := eng.Initialize(ctx, decls); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func openStore(ctx context.Context, cfg config.WormholeConfig, logger *zap.Logger) (wormhole.Store, func(), error) {
	if cfg.Source == config.WormholeSourceSQLite {
		store, err := wormhole.OpenSQLStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	return wormhole.NewFileStore(cfg.File, logger), func() {}, nil
}

type replayResult struct {
	Cycles int `json:"cycles"`
	Events int `json:"events"`
	Pruned int `json:"pruned"`
}

// replay feeds a JSON-lines event stream to the engine, running one
// optimize cycle per batchSize events and one for the remainder.
func (s *session) replay(ctx context.Context, path string, stdin io.Reader, batchSize int) (replayResult, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return replayResult{}, fmt.Errorf("failed to open events: %w", err)
		}
		defer f.Close()
		r = f
	}
	if batchSize <= 0 {
		return replayResult{}, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	var res replayResult
	batch := make([]topology.Event, 0, batchSize)
	flush := func() error {
		report, err := s.engine.Optimize(ctx, batch)
		if err != nil {
			return err
		}
		res.Cycles++
		res.Events += report.Events
		res.Pruned += len(report.Pruned)
		batch = batch[:0]
		return nil
	}

	err := events.ScanJSONLines(r, func(ev topology.Event) error {
		batch = append(batch, ev)
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return res, err
		}
	}
	s.logger.Info("replay finished",
		zap.Int("cycles", res.Cycles),
		zap.Int("events", res.Events),
		zap.Int("pruned", res.Pruned))
	return res, nil
}
