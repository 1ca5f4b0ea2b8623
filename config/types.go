// Package config provides configuration management for the physarum router
package config

import (
	"fmt"
	"time"

	"github.com/najoast/physarum/topology"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// Declaration store backends
const (
	WormholeSourceFile   = "file"
	WormholeSourceSQLite = "sqlite"
)

// Config represents the complete router configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Engine actor configuration
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// Growth/decay and routing parameters
	Optimizer topology.Params `yaml:"optimizer" json:"optimizer"`

	// Optimize and resync loop
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// Routing declaration store
	Wormholes WormholeConfig `yaml:"wormholes" json:"wormholes"`

	// Event intake
	Events EventsConfig `yaml:"events" json:"events"`

	// Monitoring configuration
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string      `yaml:"name" json:"name" split_words:"true"`
	Version     string      `yaml:"version" json:"version" split_words:"true"`
	Environment Environment `yaml:"environment" json:"environment" split_words:"true"`
	Debug       bool        `yaml:"debug" json:"debug" split_words:"true"`

	// Bound on each service Start and Stop call
	ServiceTimeout time.Duration `yaml:"service_timeout" json:"service_timeout" split_words:"true"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level" split_words:"true"`

	// Log format (json, console)
	Format string `yaml:"format" json:"format" split_words:"true"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output" split_words:"true"`

	// Enable colored level names in console format
	Color bool `yaml:"color" json:"color" split_words:"true"`

	// Static fields added to every entry
	Fields map[string]string `yaml:"fields,omitempty" json:"fields,omitempty" split_words:"true"`
}

// EngineConfig sizes the topology actor
type EngineConfig struct {
	MailboxSize    int           `yaml:"mailbox_size" json:"mailbox_size" split_words:"true"`
	ProcessTimeout time.Duration `yaml:"process_timeout" json:"process_timeout" split_words:"true"`
}

// SchedulerConfig drives the periodic optimize and resync loop
type SchedulerConfig struct {
	// Time between optimize cycles
	OptimizeInterval time.Duration `yaml:"optimize_interval" json:"optimize_interval" split_words:"true"`

	// Time between declaration resyncs; 0 disables periodic resync
	ResyncInterval time.Duration `yaml:"resync_interval" json:"resync_interval" split_words:"true"`

	// Events buffered between cycles before new ones are dropped; 0 is unbounded
	BatchCapacity int `yaml:"batch_capacity" json:"batch_capacity" split_words:"true"`
}

// WormholeConfig selects where routing declarations come from
type WormholeConfig struct {
	// Backend: file or sqlite
	Source string `yaml:"source" json:"source" split_words:"true"`

	// YAML declaration file for the file backend
	File string `yaml:"file" json:"file" split_words:"true"`

	// Watch the declaration file and re-initialize on change
	Watch bool `yaml:"watch" json:"watch" split_words:"true"`

	// Database path for the sqlite backend
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path" envconfig:"SQLITE_PATH"`
}

// EventsConfig contains event intake settings
type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka" json:"kafka"`
}

// KafkaConfig contains the Kafka event source settings
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled" split_words:"true"`
	Brokers  []string `yaml:"brokers" json:"brokers" split_words:"true"`
	Topic    string   `yaml:"topic" json:"topic" split_words:"true"`
	GroupID  string   `yaml:"group_id" json:"group_id" split_words:"true"`
	MinBytes int      `yaml:"min_bytes" json:"min_bytes" split_words:"true"`
	MaxBytes int      `yaml:"max_bytes" json:"max_bytes" split_words:"true"`

	// Circuit breaker around fetches
	Breaker CircuitBreakerConfig `yaml:"breaker" json:"breaker"`
}

// CircuitBreakerConfig contains circuit breaker settings
type CircuitBreakerConfig struct {
	// Consecutive failures that open the breaker
	FailureThreshold uint32 `yaml:"failure_threshold" json:"failure_threshold" split_words:"true"`

	// Requests allowed through while half-open
	MaxRequests uint32 `yaml:"max_requests" json:"max_requests" split_words:"true"`

	// Period after which closed-state counts are cleared
	Interval time.Duration `yaml:"interval" json:"interval" split_words:"true"`

	// Time spent open before probing again
	Timeout time.Duration `yaml:"timeout" json:"timeout" split_words:"true"`
}

// MonitorConfig contains monitoring configuration
type MonitorConfig struct {
	// Enable the HTTP monitoring server
	Enabled bool `yaml:"enabled" json:"enabled" split_words:"true"`

	// HTTP server address
	Address string `yaml:"address" json:"address" split_words:"true"`

	// HTTP server port
	Port int `yaml:"port" json:"port" split_words:"true"`

	// Metrics endpoint path
	MetricsPath string `yaml:"metrics_path" json:"metrics_path" split_words:"true"`

	// Health endpoint path
	HealthPath string `yaml:"health_path" json:"health_path" split_words:"true"`
}

// Addr returns the listen address of the monitoring server
func (m MonitorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Address, m.Port)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:           "physarum",
			Version:        "1.0.0",
			Environment:    EnvDevelopment,
			Debug:          false,
			ServiceTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "json",
			Output: "stdout",
			Color:  false,
		},
		Engine: EngineConfig{
			MailboxSize:    1000,
			ProcessTimeout: 30 * time.Second,
		},
		Optimizer: topology.DefaultParams(),
		Scheduler: SchedulerConfig{
			OptimizeInterval: 5 * time.Second,
			ResyncInterval:   time.Minute,
			BatchCapacity:    100000,
		},
		Wormholes: WormholeConfig{
			Source:     WormholeSourceFile,
			File:       "wormholes.yaml",
			Watch:      true,
			SQLitePath: "physarum.db",
		},
		Events: EventsConfig{
			Kafka: KafkaConfig{
				Enabled:  false,
				Brokers:  []string{"localhost:9092"},
				Topic:    "physarum.events",
				GroupID:  "physarum",
				MinBytes: 1,
				MaxBytes: 10e6,
				Breaker: CircuitBreakerConfig{
					FailureThreshold: 5,
					MaxRequests:      1,
					Interval:         time.Minute,
					Timeout:          30 * time.Second,
				},
			},
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			Address:     "0.0.0.0",
			Port:        9090,
			MetricsPath: "/metrics",
			HealthPath:  "/health",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate app config
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}
	if c.App.ServiceTimeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidServiceTimeout, c.App.ServiceTimeout)
	}

	// Validate log config
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}

	if c.Engine.MailboxSize <= 0 {
		return ErrInvalidMailboxSize
	}

	if err := c.Optimizer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptimizer, err)
	}

	// Validate scheduler config
	if c.Scheduler.OptimizeInterval <= 0 {
		return fmt.Errorf("%w: optimize interval %s", ErrInvalidInterval, c.Scheduler.OptimizeInterval)
	}
	if c.Scheduler.ResyncInterval < 0 {
		return fmt.Errorf("%w: resync interval %s", ErrInvalidInterval, c.Scheduler.ResyncInterval)
	}
	if c.Scheduler.BatchCapacity < 0 {
		return ErrInvalidBatchCapacity
	}

	switch c.Wormholes.Source {
	case WormholeSourceFile:
		if c.Wormholes.File == "" {
			return fmt.Errorf("%w: file source needs a path", ErrInvalidWormholeSource)
		}
	case WormholeSourceSQLite:
		if c.Wormholes.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite source needs a path", ErrInvalidWormholeSource)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidWormholeSource, c.Wormholes.Source)
	}

	if k := c.Events.Kafka; k.Enabled {
		if len(k.Brokers) == 0 || k.Topic == "" {
			return ErrInvalidKafka
		}
	}

	// Validate monitor config
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		return ErrInvalidPort
	}

	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// IsDebugEnabled returns true if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == EnvDevelopment
}
