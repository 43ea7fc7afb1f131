// Package ctxlog passes a *slog.Logger through context.Context. Factories and
// init functions receive a context that already carries the logger of the
// Backend, tagged with the plugin id where one applies.
package ctxlog

import (
	"context"
	"log/slog"
)

type key struct{}

var loggerKey = key{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from ctx. A context without a logger is a
// wiring bug and panics.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	panic("ctxlog: logger missing from context")
}

// Lookup is FromContext without the panic.
func Lookup(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(loggerKey).(*slog.Logger)
	return logger, ok
}

// ForPlugin derives a context whose logger carries the plugin id.
func ForPlugin(ctx context.Context, pluginID string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With("plugin", pluginID))
}
