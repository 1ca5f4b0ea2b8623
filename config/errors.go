package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName        = errors.New("invalid application name")
	ErrInvalidEnvironment    = errors.New("invalid environment")
	ErrInvalidLogLevel       = errors.New("invalid log level")
	ErrInvalidLogFormat      = errors.New("invalid log format")
	ErrInvalidPort           = errors.New("invalid port number")
	ErrInvalidMailboxSize    = errors.New("invalid mailbox size")
	ErrInvalidOptimizer      = errors.New("invalid optimizer parameters")
	ErrInvalidInterval       = errors.New("invalid scheduler interval")
	ErrInvalidBatchCapacity  = errors.New("invalid batch capacity")
	ErrInvalidWormholeSource = errors.New("invalid wormhole source")
	ErrInvalidKafka          = errors.New("kafka source needs brokers and a topic")
	ErrInvalidServiceTimeout = errors.New("invalid service timeout")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrConfigWatchError    = errors.New("configuration watch error")
)
