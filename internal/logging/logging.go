// Package logging provides structured logging for nodepulse.
//
// The package wraps log/slog so every component logs through one configured
// handler. Text output is the default; JSON is used in production.
//
// Usage:
//
//	logging.Init(slog.LevelInfo, false)
//
//	log := logging.Component("ingestion")
//	log.Info("batch ingested", "hostname", host, "fields", n)
//
//	// request-scoped
//	ctx = logging.ContextWithIdentity(ctx, identity)
//	logging.WithContext(ctx).Warn("ring write failed", "error", err)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// current is the handler package-level component loggers forward to, so
// loggers created during package init follow a later Init.
var current atomic.Pointer[slog.Handler]

// Init initializes the global logger writing to stdout.
func Init(level slog.Level, jsonFormat bool) {
	InitWriter(os.Stdout, level, jsonFormat)
}

// InitWriter initializes the global logger writing to w.
func InitWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	InitWithHandler(handler)
}

// InitWithHandler initializes the global logger with a custom handler.
// Tests use it to capture output.
func InitWithHandler(handler slog.Handler) {
	current.Store(&handler)
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a config string ("debug", "info", "warn", "error")
// into a slog level.
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

func ensure() {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	ensure()
	return Logger.With(args...)
}

// Component returns a logger for a specific component.
//
//	log := logging.Component("ring")
//	log.Info("started") // time=... level=INFO component=ring msg=started
func Component(name string) *slog.Logger {
	ensure()
	return slog.New(forwardHandler{}).With("component", name)
}

// WithContext returns a logger carrying the request-scoped values stored in
// ctx.
func WithContext(ctx context.Context) *slog.Logger {
	ensure()
	logger := Logger

	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		logger = logger.With("request_id", requestID)
	}
	if identity, ok := ctx.Value(contextKeyIdentity).(string); ok {
		logger = logger.With("identity", identity)
	}
	if hostname, ok := ctx.Value(contextKeyHostname).(string); ok {
		logger = logger.With("hostname", hostname)
	}

	return logger
}

// forwardHandler resolves the installed handler on every call and replays
// the attributes and groups bound to it.
type forwardHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (f forwardHandler) resolve() slog.Handler {
	h := *current.Load()
	for _, op := range f.ops {
		h = op(h)
	}
	return h
}

func (f forwardHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*current.Load()).Enabled(ctx, level)
}

func (f forwardHandler) Handle(ctx context.Context, r slog.Record) error {
	return f.resolve().Handle(ctx, r)
}

func (f forwardHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f forwardHandler) WithGroup(name string) slog.Handler {
	return f.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f forwardHandler) with(op func(slog.Handler) slog.Handler) forwardHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(f.ops), len(f.ops)+1)
	copy(ops, f.ops)
	return forwardHandler{ops: append(ops, op)}
}

type contextKey int

const (
	contextKeyRequestID contextKey = iota
	contextKeyIdentity
	contextKeyHostname
)

// ContextWithRequestID adds a request ID to the context for logging.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// ContextWithIdentity adds the pushing agent's identity to the context.
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// ContextWithHostname adds the reported hostname to the context.
func ContextWithHostname(ctx context.Context, hostname string) context.Context {
	return context.WithValue(ctx, contextKeyHostname, hostname)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	ensure()
	Logger.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	ensure()
	Logger.Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	ensure()
	Logger.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	ensure()
	Logger.Error(msg, args...)
}
