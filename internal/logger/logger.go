// Package logger wraps log/slog with a five-severity scheme and a
// JSON/text handler switch, plus lumberjack-backed rotation when
// writing to a file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sheepgate/sheepgate/cfg"
)

// LevelTrace sits below slog.LevelDebug so TRACE-severity lines can be
// filtered out independently of DEBUG.
const LevelTrace = slog.Level(-8)

var severityLevels = map[string]slog.Level{
	"TRACE":   LevelTrace,
	"DEBUG":   slog.LevelDebug,
	"INFO":    slog.LevelInfo,
	"WARNING": slog.LevelWarn,
	"ERROR":   slog.LevelError,
	"OFF":     slog.Level(1 << 20),
}

type loggerFactory struct {
	writer io.Writer
	format string
	level  *slog.LevelVar
	file   *lumberjack.Logger
}

var defaultLoggerFactory = &loggerFactory{writer: os.Stderr, format: "json", level: new(slog.LevelVar)}
var defaultLogger = slog.New(defaultLoggerFactory.handler())

func (f *loggerFactory) handler() slog.Handler {
	opts := &slog.HandlerOptions{Level: f.level, ReplaceAttr: replaceLevel}
	if f.format == "text" {
		return slog.NewTextHandler(f.writer, opts)
	}
	return slog.NewJSONHandler(f.writer, opts)
}

// replaceLevel renders TRACE instead of slog's synthesized "DEBUG-8" for
// the custom level.
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// Init rebuilds the package logger from cfg.LoggingConfig: chooses the
// handler format, gates severity, and routes output through lumberjack
// when FilePath is set.
func Init(c cfg.LoggingConfig) error {
	f := &loggerFactory{format: c.Format, level: new(slog.LevelVar)}
	lvl, ok := severityLevels[c.Severity]
	if !ok {
		return fmt.Errorf("logger: unknown severity %q", c.Severity)
	}
	f.level.Set(lvl)

	if c.FilePath != "" {
		f.file = &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.LogRotate.MaxFileSizeMb,
			MaxBackups: c.LogRotate.BackupFileCount,
			Compress:   c.LogRotate.Compress,
		}
		f.writer = f.file
	} else {
		f.writer = os.Stderr
	}

	defaultLoggerFactory = f
	defaultLogger = slog.New(f.handler())
	return nil
}

func Tracef(ctx context.Context, format string, args ...any) {
	defaultLogger.Log(ctx, LevelTrace, fmt.Sprintf(format, args...))
}

func Debugf(ctx context.Context, format string, args ...any) {
	defaultLogger.DebugContext(ctx, fmt.Sprintf(format, args...))
}

func Infof(ctx context.Context, format string, args ...any) {
	defaultLogger.InfoContext(ctx, fmt.Sprintf(format, args...))
}

func Warnf(ctx context.Context, format string, args ...any) {
	defaultLogger.WarnContext(ctx, fmt.Sprintf(format, args...))
}

func Errorf(ctx context.Context, format string, args ...any) {
	defaultLogger.ErrorContext(ctx, fmt.Sprintf(format, args...))
}

// With returns a derived logger carrying the given structured fields,
// for call sites that want to attach e.g. a request ID to every line.
func With(args ...any) *slog.Logger {
	return defaultLogger.With(args...)
}
