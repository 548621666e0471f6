// Package logging provides structured logging for the rrdmig tool.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, and component-based loggers.
//
// Component loggers are typically created at package initialization, before
// main has parsed flags. Records therefore route through whichever handler
// Init installed last, so a late Init applies to every logger.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for machine capture
//
//	// Get a component logger
//	log := logging.Component("migrate")
//	log.Info("run complete", "migrated", 412, "failed", 3)
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// backend holds the configured destination handler.
var backend atomic.Pointer[slog.Handler]

func init() {
	setBackend(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	Logger = slog.New(router{})
}

func setBackend(h slog.Handler) {
	backend.Store(&h)
}

// Init configures the logging backend with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable
// text. Logs go to stderr so progress output and reports own stdout.
func Init(level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		setBackend(slog.NewJSONHandler(os.Stderr, opts))
	} else {
		setBackend(slog.NewTextHandler(os.Stderr, opts))
	}
	slog.SetDefault(Logger)
}

// InitWithHandler routes all loggers to a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	setBackend(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a config-file level string to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// router is the slog.Handler behind every logger: it delegates to the
// backend configured last, replaying any attributes and groups added after
// the logger was created.
type router struct {
	wrap func(slog.Handler) slog.Handler
}

func (r router) resolve() slog.Handler {
	h := *backend.Load()
	if r.wrap != nil {
		h = r.wrap(h)
	}
	return h
}

func (r router) Enabled(ctx context.Context, level slog.Level) bool {
	return r.resolve().Enabled(ctx, level)
}

func (r router) Handle(ctx context.Context, rec slog.Record) error {
	return r.resolve().Handle(ctx, rec)
}

func (r router) WithAttrs(attrs []slog.Attr) slog.Handler {
	prev := r.wrap
	return router{wrap: func(h slog.Handler) slog.Handler {
		if prev != nil {
			h = prev(h)
		}
		return h.WithAttrs(attrs)
	}}
}

func (r router) WithGroup(name string) slog.Handler {
	prev := r.wrap
	return router{wrap: func(h slog.Handler) slog.Handler {
		if prev != nil {
			h = prev(h)
		}
		return h.WithGroup(name)
	}}
}

// With returns a new logger with additional attributes.
// These attributes are included in every log entry from the returned logger.
func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("legacy")
//	log.Info("decoded") // Output: time=... level=INFO component=legacy msg=decoded
func Component(name string) *slog.Logger {
	return Logger.With("component", name)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}
