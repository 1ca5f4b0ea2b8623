package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/najoast/physarum/config"
	"github.com/najoast/physarum/engine"
	"github.com/najoast/physarum/events"
	"github.com/najoast/physarum/monitor"
	"github.com/najoast/physarum/scheduler"
)

// EngineService runs the topology engine.
type EngineService struct {
	engine *engine.Engine
}

func (s *EngineService) Name() string { return "engine" }

// Start ignores ctx for the engine's lifetime; Stop ends it.
func (s *EngineService) Start(context.Context) error {
	return s.engine.Start(context.Background())
}

func (s *EngineService) Stop(context.Context) error {
	return s.engine.Stop()
}

func (s *EngineService) Health(ctx context.Context) (HealthStatus, error) {
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		return HealthStatus{State: HealthUnhealthy, Message: err.Error()}, nil
	}
	actor := s.engine.ActorStats()
	return HealthStatus{
		State:   HealthHealthy,
		Message: "Engine running",
		Data: map[string]interface{}{
			"nodes":              stats.NodeCount,
			"edges":              stats.EdgeCount,
			"messages_processed": actor.MessagesProcessed,
			"messages_failed":    actor.MessagesFailed,
			"mailbox_size":       actor.MailboxSize,
		},
	}, nil
}

// loopService runs a blocking function on its own goroutine until Stop.
type loopService struct {
	name   string
	run    func(ctx context.Context) error
	close  func() error
	logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	exitErr error
}

func newLoopService(name string, run func(context.Context) error, logger *zap.Logger) *loopService {
	return &loopService{name: name, run: run, logger: logger}
}

func (s *loopService) Name() string { return s.name }

func (s *loopService) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("%s already running", s.name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.exitErr = nil

	go func(done chan struct{}) {
		defer close(done)
		if err := s.run(ctx); err != nil {
			s.logger.Error("service loop exited", zap.String("service", s.name), zap.Error(err))
			s.mu.Lock()
			s.exitErr = err
			s.mu.Unlock()
		}
	}(s.done)
	return nil
}

func (s *loopService) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if s.close != nil {
		err = errors.Join(err, s.close())
	}
	return err
}

func (s *loopService) Health(context.Context) (HealthStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.cancel == nil:
		return HealthStatus{State: HealthStopped}, nil
	case s.exitErr != nil:
		return HealthStatus{State: HealthUnhealthy, Message: s.exitErr.Error()}, nil
	}
	select {
	case <-s.done:
		return HealthStatus{State: HealthUnhealthy, Message: "loop exited"}, nil
	default:
		return HealthStatus{State: HealthHealthy}, nil
	}
}

// kafkaService adds consumer counters to the loop health.
type kafkaService struct {
	*loopService
	source *events.KafkaSource
}

func newKafkaService(source *events.KafkaSource, logger *zap.Logger) *kafkaService {
	loop := newLoopService("kafka", source.Run, logger)
	loop.close = source.Close
	return &kafkaService{loopService: loop, source: source}
}

func (s *kafkaService) Health(ctx context.Context) (HealthStatus, error) {
	status, err := s.loopService.Health(ctx)
	if err != nil {
		return status, err
	}
	stats := s.source.Stats()
	status.Data = map[string]interface{}{
		"breaker":         s.source.State().String(),
		"received":        stats.Received,
		"decode_failures": stats.DecodeFailures,
		"fetch_failures":  stats.FetchFailures,
		"dropped":         stats.Dropped,
	}
	return status, nil
}

// MonitorService runs the monitoring HTTP server.
type MonitorService struct {
	server *monitor.Server
}

func (s *MonitorService) Name() string { return "monitor" }

func (s *MonitorService) Start(context.Context) error {
	return s.server.Start()
}

func (s *MonitorService) Stop(ctx context.Context) error {
	return s.server.Stop(ctx)
}

func (s *MonitorService) Health(context.Context) (HealthStatus, error) {
	addr := s.server.Addr()
	if addr == "" {
		return HealthStatus{State: HealthStopped}, nil
	}
	return HealthStatus{State: HealthHealthy, Data: map[string]interface{}{"addr": addr}}, nil
}

// ConfigWatchService reloads the config file and pushes optimizer
// parameters into the running engine.
type ConfigWatchService struct {
	watcher *config.Watcher
	engine  *engine.Engine
	logger  *zap.Logger
}

func (s *ConfigWatchService) Name() string { return "config-watcher" }

func (s *ConfigWatchService) Start(context.Context) error {
	s.watcher.OnConfigChange(s.apply)
	return s.watcher.Start()
}

func (s *ConfigWatchService) Stop(context.Context) error {
	return s.watcher.Stop()
}

func (s *ConfigWatchService) Health(context.Context) (HealthStatus, error) {
	return HealthStatus{State: HealthHealthy}, nil
}

// apply pushes reloadable settings. Everything else needs a restart.
func (s *ConfigWatchService) apply(oldCfg, newCfg *config.Config) {
	if oldCfg.Optimizer == newCfg.Optimizer {
		return
	}
	timeout := newCfg.Engine.ProcessTimeout
	if timeout <= 0 {
		timeout = config.DefaultConfig().Engine.ProcessTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.engine.SetParams(ctx, newCfg.Optimizer); err != nil {
		s.logger.Error("failed to apply optimizer parameters", zap.Error(err))
	}
}

// schedulerService wraps the scheduler loop.
func newSchedulerService(s *scheduler.Scheduler, logger *zap.Logger) *loopService {
	return newLoopService("scheduler", s.Run, logger)
}
