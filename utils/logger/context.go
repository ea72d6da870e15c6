package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// ctxKey is the key type for the logger in the context.
type ctxKey struct{}

// CtxWithLogger attaches a zerolog.Logger instance to the context.
func CtxWithLogger(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext retrieves the logger instance from context, or returns the
// global root logger if none is attached.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return rootLogger
	}
	if log, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return log
	}
	return rootLogger
}

// WithRequestID returns a context carrying a logger pre-populated with the
// request's correlation id, so every log line emitted while handling one
// HTTP request carries the same field.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	log := FromContext(ctx).With().Str("request_id", requestID).Logger()
	return CtxWithLogger(ctx, log)
}

// WithRuntimeID returns a context carrying a logger annotated with the
// runtime identifier the current operation concerns.
func WithRuntimeID(ctx context.Context, runtimeID string) context.Context {
	log := FromContext(ctx).With().Str("runtime_id", runtimeID).Logger()
	return CtxWithLogger(ctx, log)
}

// Log returns the context-scoped logger. Usage: logger.Log(ctx).Info().Msg("...")
func Log(ctx context.Context) zerolog.Logger {
	return FromContext(ctx)
}
