package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// Loader handles configuration loading from files and the environment
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Default configuration
	defaultConfig func() *Config
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	paths := []string{".", "./config", "./configs", "/etc/physarum"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".physarum"))
	}
	return &Loader{
		searchPaths:   paths,
		envPrefix:     "PHYSARUM",
		defaultConfig: DefaultConfig,
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the constructor for the base configuration that
// files and the environment are layered over
func (l *Loader) SetDefaultConfig(fn func() *Config) *Loader {
	l.defaultConfig = fn
	return l
}

// Load loads configuration from filename, or auto-discovers a file when
// filename is empty
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		return l.AutoLoad()
	}
	cfg, err := l.LoadFromFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from file %s: %w", filename, err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	format, err := formatOf(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, filename)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.finish(data, format)
}

// LoadFromReader loads configuration from an io.Reader
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	return l.finish(data, format)
}

// AutoLoad automatically discovers and loads configuration. Without a
// config file the defaults plus environment overrides are used.
func (l *Loader) AutoLoad() (*Config, error) {
	configFile, _, err := l.findConfigFile()
	if errors.Is(err, ErrConfigFileNotFound) {
		return l.finish(nil, FormatYAML)
	}
	if err != nil {
		return nil, err
	}
	return l.LoadFromFile(configFile)
}

// finish layers data over the defaults, applies the environment and validates.
func (l *Loader) finish(data []byte, format ConfigFormat) (*Config, error) {
	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}

	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, ConfigFormat, error) {
	filenames := []string{
		"physarum.yaml", "physarum.yml",
		"config.yaml", "config.yml",
		"physarum.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				format, err := formatOf(filename)
				if err != nil {
					continue
				}
				return fullPath, format, nil
			}
		}
	}

	return "", "", ErrConfigFileNotFound
}

func formatOf(filename string) (ConfigFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unsupported config file format %q", ErrConfigParseError, ext)
	}
}

// parseConfig decodes data on top of a fresh default configuration, so keys
// absent from the document keep their defaults.
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	config := l.defaultConfig()
	if len(data) == 0 {
		return config, nil
	}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: YAML: %v", ErrConfigParseError, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: JSON: %v", ErrConfigParseError, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config format %s", ErrConfigParseError, format)
	}

	return config, nil
}

// loadFromEnv applies PREFIX_SECTION_FIELD overrides, e.g.
// PHYSARUM_LOG_LEVEL or PHYSARUM_SCHEDULER_OPTIMIZE_INTERVAL.
func (l *Loader) loadFromEnv(config *Config) error {
	sections := []struct {
		prefix string
		target any
	}{
		{"APP", &config.App},
		{"LOG", &config.Log},
		{"ENGINE", &config.Engine},
		{"OPTIMIZER", &config.Optimizer},
		{"SCHEDULER", &config.Scheduler},
		{"WORMHOLES", &config.Wormholes},
		{"KAFKA", &config.Events.Kafka},
		{"MONITOR", &config.Monitor},
	}

	for _, s := range sections {
		if err := envconfig.Process(l.envPrefix+"_"+s.prefix, s.target); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrEnvironmentVarError, s.prefix, err)
		}
	}
	return nil
}
