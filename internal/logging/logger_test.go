package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"consultbook/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	appCfg := config.AppConfig{
		Name:        "consultbook",
		Environment: "test",
		Version:     "1.0.0",
	}

	t.Run("DefaultStdout", func(t *testing.T) {
		logger, closer, err := New(config.LoggingConfig{}, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("Stderr", func(t *testing.T) {
		cfg := config.LoggingConfig{Level: "debug", Output: "stderr"}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, closer)
	})

	t.Run("File", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "consultbook.log")
		cfg := config.LoggingConfig{Level: "error", Output: "file", FilePath: logPath}
		logger, closer, err := New(cfg, appCfg)
		require.NoError(t, err)
		require.NotNil(t, closer)
		logger.Error().Msg("boom")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "boom")
	})

	t.Run("FileMissingPath", func(t *testing.T) {
		_, _, err := New(config.LoggingConfig{Output: "file"}, appCfg)
		assert.Error(t, err)
	})

	t.Run("UnknownOutput", func(t *testing.T) {
		_, _, err := New(config.LoggingConfig{Output: "syslog"}, appCfg)
		assert.Error(t, err)
	})
}

func TestNewWithWriter(t *testing.T) {
	appCfg := config.AppConfig{Name: "consultbook", Environment: "test", Version: "dev"}

	t.Run("StructuredFields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info"}, appCfg)
		Component(logger, "booking").Info().Str("session_id", "abc").Msg("date selected")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "consultbook", entry["app"])
		assert.Equal(t, "test", entry["env"])
		assert.Equal(t, "booking", entry["component"])
		assert.Equal(t, "abc", entry["session_id"])
		assert.Equal(t, "date selected", entry["message"])
	})

	t.Run("LevelFilters", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, config.LoggingConfig{Level: "warn"}, appCfg)
		logger.Info().Msg("hidden")
		assert.Zero(t, buf.Len())
		logger.Warn().Msg("shown")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("InvalidLevelDefaultsToInfo", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, config.LoggingConfig{Level: "invalid"}, appCfg)
		logger.Debug().Msg("hidden")
		logger.Info().Msg("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("Console", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, config.LoggingConfig{Format: "console"}, appCfg)
		logger.Info().Msg("pretty")
		assert.Contains(t, buf.String(), "pretty")
		assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
	})
}
