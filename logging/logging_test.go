package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/najoast/physarum/config"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "physarum.log")

	logger, err := New(config.LogConfig{
		Level:  config.LogLevelWarn,
		Format: "json",
		Output: path,
		Fields: map[string]string{"service": "physarum"},
	})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", zap.Int("edges", 3))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry), "exactly one JSON line expected, got %q", data)
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "physarum", entry["service"])
	assert.EqualValues(t, 3, entry["edges"])
}

func TestNewLevels(t *testing.T) {
	for _, tt := range []struct {
		level config.LogLevel
		want  zapcore.Level
	}{
		{config.LogLevelDebug, zapcore.DebugLevel},
		{config.LogLevelInfo, zapcore.InfoLevel},
		{config.LogLevelWarn, zapcore.WarnLevel},
		{config.LogLevelError, zapcore.ErrorLevel},
	} {
		logger, err := New(config.LogConfig{Level: tt.level, Format: "console", Output: "stderr"})
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(tt.want), tt.level)
		if tt.want > zapcore.DebugLevel {
			assert.False(t, logger.Core().Enabled(tt.want-1), tt.level)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud", Format: "json"})
	assert.ErrorIs(t, err, config.ErrInvalidLogLevel)

	_, err = New(config.LogConfig{Level: config.LogLevelInfo, Format: "xml"})
	assert.ErrorIs(t, err, config.ErrInvalidLogFormat)

	assert.Panics(t, func() { Must(config.LogConfig{Level: "loud"}) })
}
