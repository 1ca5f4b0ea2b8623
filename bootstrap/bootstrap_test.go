package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/najoast/physarum/config"
	"github.com/najoast/physarum/engine"
	"github.com/najoast/physarum/topology"
)

// TestService is a simple service implementation for testing
type TestService struct {
	name     string
	startErr error
	log      *callLog

	started bool
	stopped bool
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (s *TestService) Name() string { return s.name }

func (s *TestService) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	s.log.add("start " + s.name)
	return nil
}

func (s *TestService) Stop(ctx context.Context) error {
	s.stopped = true
	s.log.add("stop " + s.name)
	return nil
}

func (s *TestService) Health(ctx context.Context) (HealthStatus, error) {
	if s.started && !s.stopped {
		return HealthStatus{State: HealthHealthy}, nil
	}
	return HealthStatus{State: HealthStopped}, nil
}

func TestLifecycleManager(t *testing.T) {
	lm := NewLifecycleManager(zap.NewNop())
	testService := &TestService{name: "test"}

	if err := lm.Register(testService); err != nil {
		t.Fatalf("Failed to register service: %v", err)
	}
	if err := lm.Register(&TestService{name: "test"}); err == nil {
		t.Error("Duplicate registration should fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := lm.Start(ctx); err != nil {
		t.Fatalf("Failed to start services: %v", err)
	}
	if !testService.started {
		t.Error("Test service should be started")
	}
	if err := lm.Register(&TestService{name: "late"}); err == nil {
		t.Error("Registration after start should fail")
	}

	health := lm.Health(ctx)
	if health["test"].State != HealthHealthy {
		t.Errorf("Expected healthy state, got %v", health["test"].State)
	}

	if err := lm.Stop(ctx); err != nil {
		t.Fatalf("Failed to stop services: %v", err)
	}
	if !testService.stopped {
		t.Error("Test service should be stopped")
	}
}

func TestLifecycleDependencyOrder(t *testing.T) {
	log := &callLog{}
	lm := NewLifecycleManager(nil)

	// Registered out of dependency order on purpose.
	must(t, lm.Register(&TestService{name: "monitor", log: log}, "engine"))
	must(t, lm.Register(&TestService{name: "scheduler", log: log}, "engine"))
	must(t, lm.Register(&TestService{name: "engine", log: log}))
	must(t, lm.Register(&TestService{name: "kafka", log: log}, "scheduler"))

	ctx := context.Background()
	must(t, lm.Start(ctx))
	must(t, lm.Stop(ctx))

	want := []string{
		"start engine", "start monitor", "start scheduler", "start kafka",
		"stop kafka", "stop scheduler", "stop monitor", "stop engine",
	}
	if got := log.get(); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestLifecycleDependencyErrors(t *testing.T) {
	lm := NewLifecycleManager(nil)
	must(t, lm.Register(&TestService{name: "a"}, "missing"))
	if err := lm.Start(context.Background()); err == nil {
		t.Error("Missing dependency should fail")
	}

	lm = NewLifecycleManager(nil)
	must(t, lm.Register(&TestService{name: "a"}, "b"))
	must(t, lm.Register(&TestService{name: "b"}, "a"))
	if err := lm.Start(context.Background()); err == nil {
		t.Error("Circular dependency should fail")
	}
}

func TestLifecycleStartFailureRollsBack(t *testing.T) {
	boom := errors.New("boom")
	first := &TestService{name: "first"}
	lm := NewLifecycleManager(nil)
	must(t, lm.Register(first))
	must(t, lm.Register(&TestService{name: "second", startErr: boom}, "first"))

	err := lm.Start(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	var appErr *ApplicationError
	if !errors.As(err, &appErr) || appErr.Service != "second" {
		t.Errorf("Expected ApplicationError for second, got %v", err)
	}
	if !first.stopped {
		t.Error("Started services should be stopped after a failed start")
	}
	if lm.IsStarted() {
		t.Error("Manager should not be started")
	}
}

// blockingService never finishes starting on its own.
type blockingService struct{ name string }

func (s *blockingService) Name() string { return s.name }

func (s *blockingService) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingService) Stop(ctx context.Context) error { return nil }

func (s *blockingService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{State: HealthStopped}, nil
}

func TestLifecycleListeners(t *testing.T) {
	lm := NewLifecycleManager(nil)
	got := make(chan LifecycleEvent, 32)
	lm.AddListener(func(ev LifecycleEvent) { got <- ev })
	lm.AddListener(func(LifecycleEvent) { panic("listener bug") })

	must(t, lm.Register(&TestService{name: "engine"}))
	ctx := context.Background()
	must(t, lm.Start(ctx))
	must(t, lm.Stop(ctx))

	want := map[string]bool{
		"service.registered": false,
		"service.starting":   false,
		"service.started":    false,
		"lifecycle.started":  false,
		"service.stopping":   false,
		"service.stopped":    false,
		"lifecycle.stopped":  false,
	}
	timeout := time.After(2 * time.Second)
	for seen := 0; seen < len(want); {
		select {
		case ev := <-got:
			if done, ok := want[ev.Type]; ok && !done {
				want[ev.Type] = true
				seen++
			}
		case <-timeout:
			t.Fatalf("missing lifecycle events: %v", want)
		}
	}
}

func TestLifecycleServiceTimeout(t *testing.T) {
	lm := NewLifecycleManager(nil)
	lm.SetTimeout(20 * time.Millisecond)
	lm.SetTimeout(0)
	must(t, lm.Register(&blockingService{name: "stuck"}))

	start := time.Now()
	err := lm.Start(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Start took %s; zero timeout should keep the previous bound", elapsed)
	}
}

func TestLoopService(t *testing.T) {
	ran := make(chan struct{})
	closed := false
	svc := newLoopService("loop", func(ctx context.Context) error {
		close(ran)
		<-ctx.Done()
		return nil
	}, zap.NewNop())
	svc.close = func() error { closed = true; return nil }

	ctx := context.Background()
	must(t, svc.Start(ctx))
	<-ran

	status, _ := svc.Health(ctx)
	if status.State != HealthHealthy {
		t.Errorf("Expected healthy, got %v", status.State)
	}

	must(t, svc.Stop(ctx))
	if !closed {
		t.Error("close should run on Stop")
	}
	status, _ = svc.Health(ctx)
	if status.State != HealthStopped {
		t.Errorf("Expected stopped, got %v", status.State)
	}
}

func TestLoopServiceExitError(t *testing.T) {
	svc := newLoopService("loop", func(ctx context.Context) error {
		return errors.New("listen failed")
	}, zap.NewNop())

	ctx := context.Background()
	must(t, svc.Start(ctx))
	defer svc.Stop(ctx)

	deadline := time.Now().Add(time.Second)
	for {
		status, _ := svc.Health(ctx)
		if status.State == HealthUnhealthy {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected unhealthy, got %v", status.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

const wormholesYAML = `wormholes:
  - id: api-click
    from: {sourceType: api, eventType: click}
    to: {targetAgentRole: bot, actionType: notify}
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "wormholes.yaml")
	if err := os.WriteFile(file, []byte(wormholesYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Wormholes.File = file
	cfg.Wormholes.Watch = false
	cfg.Monitor.Enabled = false
	cfg.Scheduler.OptimizeInterval = time.Hour
	return cfg
}

func TestApplication(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, testConfig(t), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("Failed to build application: %v", err)
	}

	if got, want := app.Services(), []string{"engine", "scheduler"}; !reflect.DeepEqual(got, want) {
		t.Errorf("services = %v, want %v", got, want)
	}

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	defer app.Shutdown(ctx)

	// The scheduler seeds the topology from the wormhole file on start.
	deadline := time.Now().Add(2 * time.Second)
	for {
		stats, err := app.Engine().Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if stats.EdgeCount == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("topology was not seeded: %+v", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}

	app.Batch().Publish(topology.Event{SourceType: "api", EventType: "click"})
	report, err := app.Scheduler().Tick(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Events != 1 {
		t.Errorf("Expected 1 event, got %d", report.Events)
	}

	for name, status := range app.Health(ctx) {
		if status.State != HealthHealthy {
			t.Errorf("%s: expected healthy, got %v (%s)", name, status.State, status.Message)
		}
	}

	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("Failed to shut down: %v", err)
	}
	if _, err := app.Engine().Stats(ctx); !errors.Is(err, engine.ErrStopped) {
		t.Errorf("Expected ErrStopped after shutdown, got %v", err)
	}
}

func TestApplicationLogsLifecycle(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cfg := testConfig(t)
	cfg.App.ServiceTimeout = 5 * time.Second

	ctx := context.Background()
	app, err := New(ctx, cfg, WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("Failed to build application: %v", err)
	}
	app.lifecycle.mutex.RLock()
	timeout := app.lifecycle.timeout
	app.lifecycle.mutex.RUnlock()
	if timeout != 5*time.Second {
		t.Errorf("service timeout = %s, want 5s", timeout)
	}

	must(t, app.Start(ctx))
	must(t, app.Shutdown(ctx))

	deadline := time.Now().Add(2 * time.Second)
	for {
		started := logs.FilterMessage("lifecycle event").FilterField(zap.String("event", "lifecycle.started")).Len()
		stopped := logs.FilterMessage("lifecycle event").FilterField(zap.String("event", "lifecycle.stopped")).Len()
		if started == 1 && stopped == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("lifecycle events not logged: started=%d stopped=%d", started, stopped)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestApplicationOptionalServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wormholes.Watch = true
	cfg.Monitor.Enabled = true
	cfg.Monitor.Address = "127.0.0.1"
	cfg.Events.Kafka.Enabled = true

	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to build application: %v", err)
	}
	want := []string{"engine", "scheduler", "wormhole-watcher", "kafka", "monitor"}
	if got := app.Services(); !reflect.DeepEqual(got, want) {
		t.Errorf("services = %v, want %v", got, want)
	}
}

func TestApplicationSQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wormholes.Source = config.WormholeSourceSQLite
	cfg.Wormholes.SQLitePath = ":memory:"

	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to build application: %v", err)
	}
	if len(app.closers) != 1 {
		t.Errorf("Expected the SQLite store to be closed on shutdown")
	}
	must(t, app.close())
}

func TestApplicationRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Optimizer.PruneThreshold = 2

	_, err := New(context.Background(), cfg)
	var appErr *ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("Expected ApplicationError, got %v", err)
	}
}

func TestConfigWatchServiceAppliesParams(t *testing.T) {
	ctx := context.Background()
	eng, err := engine.New(topology.DefaultParams(), engine.Options{}, zap.NewNop(), nil)
	must(t, err)
	must(t, eng.Start(ctx))
	defer eng.Stop()

	_, err = eng.Initialize(ctx, []topology.Declaration{{
		From: topology.Source{SourceType: "api", EventType: "click"},
		To:   topology.Target{TargetAgentRole: "bot", ActionType: "notify"},
	}})
	must(t, err)

	oldCfg := config.DefaultConfig()
	newCfg := config.DefaultConfig()
	newCfg.Optimizer.DecayRate = 0.01

	svc := &ConfigWatchService{engine: eng, logger: zap.NewNop()}
	svc.apply(oldCfg, newCfg)

	_, err = eng.Optimize(ctx, nil)
	must(t, err)
	snap, err := eng.Snapshot(ctx)
	must(t, err)
	if len(snap.Edges) != 1 || snap.Edges[0].Strength < 0.399 || snap.Edges[0].Strength > 0.401 {
		t.Errorf("Expected strength 0.4 after slower decay, got %+v", snap.Edges)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
