package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMavenHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(config.LoggingConfig{Level: "info"}, &buf).With("system", "reconcile")

	logger.Info("run completed", "run_id", 7, "note", "two words", "duration", 1500*time.Millisecond)

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "[INFO] [reconcile] ["), line)
	assert.Contains(t, line, " run completed")
	assert.Contains(t, line, "run_id=7")
	assert.Contains(t, line, `note="two words"`)
	assert.Contains(t, line, "duration=1.5s")
	assert.NotContains(t, line, "system=", "system is shown in brackets only")
	assert.NotContains(t, line, "\033[", "no colors when not writing to a terminal")
}

func TestMavenHandler_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(config.LoggingConfig{Level: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("failed", "error", errors.New("disk full"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, `[ERROR]`)
	assert.Contains(t, out, `error="disk full"`)
}

func TestMavenHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(config.LoggingConfig{}, &buf)

	logger.WithGroup("http").With("method", "GET").Info("request", "status", 200)
	logger.Info("nested", slog.Group("run", slog.Int("matched", 2)))

	out := buf.String()
	assert.Contains(t, out, "http.method=GET")
	assert.Contains(t, out, "http.status=200")
	assert.Contains(t, out, "run.matched=2")
}

func TestMavenHandler_SystemPerRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(config.LoggingConfig{}, &buf)

	logger.Info("migrated", "system", "storage", "version", 3)
	assert.Contains(t, buf.String(), "[INFO] [storage]")
}

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(config.LoggingConfig{Format: "json", Level: "debug"}, &buf)

	logger.Debug("hello", "run_id", 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, float64(1), entry["run_id"])
}
