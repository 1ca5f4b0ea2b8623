package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/najoast/physarum/config"
	"github.com/najoast/physarum/engine"
	"github.com/najoast/physarum/events"
	"github.com/najoast/physarum/monitor"
	"github.com/najoast/physarum/scheduler"
	"github.com/najoast/physarum/wormhole"
)

const shutdownTimeout = 30 * time.Second

// Application is a fully wired router process.
type Application struct {
	cfg    *config.Config
	logger *zap.Logger

	lifecycle *LifecycleManager
	engine    *engine.Engine
	collector *monitor.Collector
	batch     *events.Batch
	scheduler *scheduler.Scheduler
	store     wormhole.Store

	closers []func() error

	mutex   sync.Mutex
	running bool
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	configFile string
	loader     *config.Loader
	store      wormhole.Store
}

// WithLogger sets the root logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConfigWatch reloads file with loader while running.
func WithConfigWatch(file string, loader *config.Loader) Option {
	return func(o *options) {
		o.configFile = file
		o.loader = loader
	}
}

// WithStore replaces the configured wormhole store.
func WithStore(store wormhole.Store) Option {
	return func(o *options) { o.store = store }
}

// New builds every component cfg enables and registers it with the
// lifecycle manager. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ApplicationError{Operation: "configure", Err: err}
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	app := &Application{
		cfg:       cfg,
		logger:    o.logger,
		lifecycle: NewLifecycleManager(o.logger),
		batch:     events.NewBatch(cfg.Scheduler.BatchCapacity),
	}
	app.lifecycle.SetTimeout(cfg.App.ServiceTimeout)
	app.lifecycle.AddListener(app.logLifecycle)

	var observer engine.Observer
	if cfg.Monitor.Enabled {
		app.collector = monitor.NewCollector()
		app.collector.RegisterIntake(app.batch.Counters)
		observer = app.collector
	}

	eng, err := engine.New(cfg.Optimizer, engine.Options{
		MailboxSize:    cfg.Engine.MailboxSize,
		ProcessTimeout: cfg.Engine.ProcessTimeout,
	}, o.logger, observer)
	if err != nil {
		return nil, &ApplicationError{Operation: "configure", Service: "engine", Err: err}
	}
	app.engine = eng

	store := o.store
	if store == nil {
		if store, err = app.openStore(ctx); err != nil {
			return nil, &ApplicationError{Operation: "configure", Service: "wormholes", Err: err}
		}
	}
	app.store = store
	app.scheduler = scheduler.New(cfg.Scheduler, eng, app.batch, store, o.logger)

	if err := app.register(o); err != nil {
		_ = app.close()
		return nil, err
	}
	return app, nil
}

func (app *Application) openStore(ctx context.Context) (wormhole.Store, error) {
	switch app.cfg.Wormholes.Source {
	case config.WormholeSourceSQLite:
		store, err := wormhole.OpenSQLStore(ctx, app.cfg.Wormholes.SQLitePath)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, store.Close)
		return store, nil
	default:
		return wormhole.NewFileStore(app.cfg.Wormholes.File, app.logger), nil
	}
}

// logLifecycle records lifecycle transitions; failures are logged by the
// manager itself at error level.
func (app *Application) logLifecycle(ev LifecycleEvent) {
	fields := []zap.Field{zap.String("event", ev.Type)}
	if ev.Service != "" {
		fields = append(fields, zap.String("service", ev.Service))
	}
	if ev.Error != nil {
		app.logger.Warn("lifecycle event", append(fields, zap.Error(ev.Error))...)
		return
	}
	app.logger.Debug("lifecycle event", fields...)
}

func (app *Application) register(o options) error {
	lm := app.lifecycle
	if err := lm.Register(&EngineService{engine: app.engine}); err != nil {
		return err
	}
	if err := lm.Register(newSchedulerService(app.scheduler, app.logger), "engine"); err != nil {
		return err
	}

	if fs, ok := app.store.(*wormhole.FileStore); ok && app.cfg.Wormholes.Watch {
		watch := newLoopService("wormhole-watcher", func(ctx context.Context) error {
			return fs.Watch(ctx, app.scheduler.RequestResync)
		}, app.logger)
		if err := lm.Register(watch, "scheduler"); err != nil {
			return err
		}
	}

	if app.cfg.Events.Kafka.Enabled {
		source := events.NewKafkaSource(app.cfg.Events.Kafka, app.batch, app.logger)
		if err := lm.Register(newKafkaService(source, app.logger), "scheduler"); err != nil {
			return err
		}
	}

	if app.cfg.Monitor.Enabled {
		server := monitor.NewServer(app.cfg.Monitor, app.engine, app.collector, app.logger)
		if err := lm.Register(&MonitorService{server: server}, "engine"); err != nil {
			return err
		}
	}

	if o.configFile != "" {
		loader := o.loader
		if loader == nil {
			loader = config.NewLoader()
		}
		watcher, err := config.NewWatcher(o.configFile, loader, app.logger)
		if err != nil {
			return &ApplicationError{Operation: "configure", Service: "config-watcher", Err: err}
		}
		svc := &ConfigWatchService{watcher: watcher, engine: app.engine, logger: app.logger.Named("config")}
		if err := lm.Register(svc, "engine"); err != nil {
			return err
		}
	}
	return nil
}

// Start starts every registered service.
func (app *Application) Start(ctx context.Context) error {
	app.mutex.Lock()
	defer app.mutex.Unlock()
	if app.running {
		return errors.New("application is already running")
	}
	if err := app.lifecycle.Start(ctx); err != nil {
		return err
	}
	app.running = true
	app.logger.Info("physarum started",
		zap.String("version", app.cfg.App.Version),
		zap.String("environment", string(app.cfg.App.Environment)),
		zap.Strings("services", app.lifecycle.Services()))
	return nil
}

// Run starts the application and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		app.logger.Info("received shutdown signal", zap.Stringer("signal", sig))
	case <-ctx.Done():
		app.logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.Shutdown(shutdownCtx)
}

// Shutdown stops all services and releases the store.
func (app *Application) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	if !app.running {
		app.mutex.Unlock()
		return nil
	}
	app.running = false
	app.mutex.Unlock()

	err := app.lifecycle.Stop(ctx)
	if cerr := app.close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return fmt.Errorf("failed to stop services: %w", err)
	}
	app.logger.Info("physarum stopped")
	return nil
}

func (app *Application) close() error {
	var err error
	for _, c := range app.closers {
		err = errors.Join(err, c())
	}
	app.closers = nil
	return err
}

// Health reports every service.
func (app *Application) Health(ctx context.Context) map[string]HealthStatus {
	return app.lifecycle.Health(ctx)
}

// Engine returns the topology engine.
func (app *Application) Engine() *engine.Engine { return app.engine }

// Scheduler returns the optimize scheduler.
func (app *Application) Scheduler() *scheduler.Scheduler { return app.scheduler }

// Batch returns the pending event batch.
func (app *Application) Batch() *events.Batch { return app.batch }

// Services returns the registered service names.
func (app *Application) Services() []string { return app.lifecycle.Services() }
