package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheepgate/sheepgate/cfg"
)

func TestSeverityGating(t *testing.T) {
	var buf bytes.Buffer
	f := &loggerFactory{writer: &buf, format: "text", level: new(slog.LevelVar)}
	f.level.Set(slog.LevelWarn)
	defaultLogger = slog.New(f.handler())

	Infof(context.Background(), "dropped")
	assert.Empty(t, buf.String(), "INFO must be gated out at WARNING severity")

	Warnf(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestTraceBelowDebug(t *testing.T) {
	var buf bytes.Buffer
	f := &loggerFactory{writer: &buf, format: "text", level: new(slog.LevelVar)}
	f.level.Set(LevelTrace)
	defaultLogger = slog.New(f.handler())

	Tracef(context.Background(), "hello %s", "world")
	assert.Contains(t, buf.String(), "TRACE")
	assert.Contains(t, buf.String(), "hello world")
}

func TestInitRejectsUnknownSeverity(t *testing.T) {
	err := Init(cfg.LoggingConfig{Severity: "LOUD", Format: "json"})
	require.Error(t, err)
}

func TestInitJSONFormat(t *testing.T) {
	require.NoError(t, Init(cfg.LoggingConfig{Severity: "INFO", Format: "json"}))
	assert.Equal(t, "json", defaultLoggerFactory.format)
}
