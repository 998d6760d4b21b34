package util

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type loggerContextKey struct{}

// InitLogger configures the global slog logger with JSON output and level.
// Accepts levels: debug, info, warn, error. Defaults to info on unknown input.
// Every record carries the service name. When logsDir is set, records are
// also appended to <logsDir>/<service>.log; the returned cleanup closes it.
func InitLogger(level, service, logsDir string) (*slog.Logger, func()) {
	var out io.Writer = os.Stdout
	var cleanup func()
	if dir := strings.TrimSpace(logsDir); dir != "" {
		f, err := openLogFile(dir, service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARN: log file disabled: %v\n", err)
		} else {
			out = io.MultiWriter(os.Stdout, f)
			cleanup = func() { _ = f.Close() }
		}
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	})
	logger := slog.New(handler)
	if service = strings.TrimSpace(service); service != "" {
		logger = logger.With("service", service)
	}
	slog.SetDefault(logger)
	return logger, cleanup
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openLogFile(dir, service string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(service)
	if name == "" {
		name = "app"
	}
	return os.OpenFile(filepath.Join(dir, name+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// Fatal logs at error level and exits.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// ContextWithLogger stores logger in ctx.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext returns the logger stored by ContextWithLogger, or the
// default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}
