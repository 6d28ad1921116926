package logger

import (
	"context"
	"log/slog"
)

// loggerContextKey is an unexported type for context keys to avoid collisions.
type loggerContextKey struct{}

// WithLogger returns a copy of ctx carrying the given logger. Handlers use it
// to attach request-scoped attributes (trace id, component) so downstream
// layers log with the same correlation fields.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// FromContext retrieves the logger stored in ctx.
// The second return value reports whether a logger was present.
func FromContext(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger)
	return logger, ok
}

// FromContextOrDefault retrieves the logger stored in ctx, falling back to
// fallback when the context carries none, and to slog.Default when fallback
// is nil. It never returns nil, so call sites can log unconditionally.
func FromContextOrDefault(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := FromContext(ctx); ok {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
