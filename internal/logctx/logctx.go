// Package logctx carries a request-scoped slog.Logger through context and
// enriches records with OpenTelemetry trace identifiers. Handlers and the
// download orchestrator pull their logger from here so detached goroutines
// keep the attributes of the request that spawned them.
package logctx

import (
	"context"
	"log/slog"
)

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger returns a child context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the logger stored in ctx, falling back to
// slog.Default() so callers never receive nil.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}
