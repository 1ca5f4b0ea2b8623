package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LifecycleManager starts services in dependency order and stops them in
// reverse.
type LifecycleManager struct {
	logger *zap.Logger

	// names keeps registration order; it breaks ties in the start order.
	names        []string
	services     map[string]Service
	dependencies map[string][]string

	// startOrder tracks the services actually started
	startOrder []string

	mutex    sync.RWMutex
	started  bool
	stopping bool

	listeners []func(LifecycleEvent)

	// timeout for each Start and Stop call
	timeout time.Duration
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(logger *zap.Logger) *LifecycleManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleManager{
		logger:       logger.Named("lifecycle"),
		services:     make(map[string]Service),
		dependencies: make(map[string][]string),
		timeout:      30 * time.Second,
	}
}

// Register registers a service under its Name, depending on deps
func (lm *LifecycleManager) Register(service Service, deps ...string) error {
	if service == nil {
		return errors.New("service cannot be nil")
	}
	name := service.Name()
	if name == "" {
		return errors.New("service name cannot be empty")
	}

	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return fmt.Errorf("cannot register service %s: lifecycle manager already started", name)
	}
	if _, exists := lm.services[name]; exists {
		return fmt.Errorf("service %s is already registered", name)
	}

	lm.names = append(lm.names, name)
	lm.services[name] = service
	lm.dependencies[name] = deps

	lm.broadcastEvent(LifecycleEvent{
		Type:      "service.registered",
		Service:   name,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"dependencies": deps},
	})
	return nil
}

// Start starts all services in dependency order. If one fails, the ones
// already started are stopped again.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return errors.New("lifecycle manager already started")
	}

	order, err := lm.calculateStartOrder()
	if err != nil {
		return &ApplicationError{Operation: "start", Err: err}
	}
	lm.logger.Debug("starting services", zap.Strings("order", order))

	for _, name := range order {
		service := lm.services[name]
		lm.broadcastEvent(LifecycleEvent{Type: "service.starting", Service: name, Timestamp: time.Now()})

		startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := service.Start(startCtx)
		cancel()

		if err != nil {
			lm.broadcastEvent(LifecycleEvent{Type: "service.start_failed", Service: name, Timestamp: time.Now(), Error: err})
			lm.logger.Error("service failed to start", zap.String("service", name), zap.Error(err))
			lm.stopStarted(context.Background())
			return &ApplicationError{Operation: "start", Service: name, Err: err}
		}

		lm.startOrder = append(lm.startOrder, name)
		lm.broadcastEvent(LifecycleEvent{Type: "service.started", Service: name, Timestamp: time.Now()})
		lm.logger.Info("service started", zap.String("service", name))
	}

	lm.started = true
	lm.broadcastEvent(LifecycleEvent{Type: "lifecycle.started", Timestamp: time.Now()})
	return nil
}

// Stop stops all services in reverse start order and returns the first
// error seen.
func (lm *LifecycleManager) Stop(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if !lm.started {
		return nil
	}
	if lm.stopping {
		return errors.New("lifecycle manager already stopping")
	}
	lm.stopping = true

	err := lm.stopStarted(ctx)

	lm.started = false
	lm.stopping = false
	lm.broadcastEvent(LifecycleEvent{Type: "lifecycle.stopped", Timestamp: time.Now()})
	return err
}

// stopStarted stops startOrder in reverse. Callers hold the lock.
func (lm *LifecycleManager) stopStarted(ctx context.Context) error {
	var firstErr error
	for i := len(lm.startOrder) - 1; i >= 0; i-- {
		name := lm.startOrder[i]
		lm.broadcastEvent(LifecycleEvent{Type: "service.stopping", Service: name, Timestamp: time.Now()})

		stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := lm.services[name].Stop(stopCtx)
		cancel()

		if err != nil {
			if firstErr == nil {
				firstErr = &ApplicationError{Operation: "stop", Service: name, Err: err}
			}
			lm.broadcastEvent(LifecycleEvent{Type: "service.stop_failed", Service: name, Timestamp: time.Now(), Error: err})
			lm.logger.Error("service failed to stop", zap.String("service", name), zap.Error(err))
			continue
		}
		lm.broadcastEvent(LifecycleEvent{Type: "service.stopped", Service: name, Timestamp: time.Now()})
		lm.logger.Info("service stopped", zap.String("service", name))
	}
	lm.startOrder = nil
	return firstErr
}

// Health returns the health status of all services
func (lm *LifecycleManager) Health(ctx context.Context) map[string]HealthStatus {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	health := make(map[string]HealthStatus, len(lm.services))
	for name, service := range lm.services {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status, err := service.Health(healthCtx)
		cancel()

		if err != nil {
			status = HealthStatus{State: HealthUnhealthy, Message: err.Error()}
		}
		if status.LastCheck.IsZero() {
			status.LastCheck = time.Now()
		}
		health[name] = status
	}
	return health
}

// Services returns registered service names in registration order
func (lm *LifecycleManager) Services() []string {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()
	return append([]string(nil), lm.names...)
}

// AddListener adds a lifecycle event listener. Listeners run on their own
// goroutines, so events may arrive out of order.
func (lm *LifecycleManager) AddListener(listener func(LifecycleEvent)) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	lm.listeners = append(lm.listeners, listener)
}

// SetTimeout sets the timeout for each service Start and Stop call.
// Non-positive values are ignored.
func (lm *LifecycleManager) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	lm.timeout = timeout
}

// IsStarted returns true if the lifecycle manager has been started
func (lm *LifecycleManager) IsStarted() bool {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()
	return lm.started
}

// calculateStartOrder sorts services topologically (Kahn's algorithm).
// Services that become ready together start in registration order.
func (lm *LifecycleManager) calculateStartOrder() ([]string, error) {
	inDegree := make(map[string]int, len(lm.services))
	dependents := make(map[string][]string, len(lm.services))

	for _, name := range lm.names {
		inDegree[name] += 0
		for _, dep := range lm.dependencies[name] {
			if _, exists := lm.services[dep]; !exists {
				return nil, fmt.Errorf("dependency %s of service %s is not registered", dep, name)
			}
			dependents[dep] = append(dependents[dep], name)
			inDegree[name]++
		}
	}

	var queue []string
	for _, name := range lm.names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	result := make([]string, 0, len(lm.names))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(lm.names) {
		return nil, errors.New("circular dependency detected")
	}
	return result, nil
}

// broadcastEvent fans out to listeners on their own goroutines.
func (lm *LifecycleManager) broadcastEvent(event LifecycleEvent) {
	for _, listener := range lm.listeners {
		go func(l func(LifecycleEvent)) {
			defer func() {
				if r := recover(); r != nil {
					lm.logger.Warn("lifecycle listener panicked", zap.Any("panic", r))
				}
			}()
			l(event)
		}(listener)
	}
}
