package logger

import (
	"context"

	"go.uber.org/zap"
)

// ContextKey namespaces values stored in a context.Context.
type ContextKey string

const (
	LoggerKey        ContextKey = "logger"
	CorrelationIDKey ContextKey = "correlation_id"
	SessionIDKey     ContextKey = "session_id"
)

// FromContext extracts a logger from ctx, or returns a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return NewNop()
	}
	if l, ok := ctx.Value(LoggerKey).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}

// WithLogger attaches a logger to ctx.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

// WithCorrelationIDCtx attaches a correlation id to ctx.
func WithCorrelationIDCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithSessionIDCtx attaches the transport session id to ctx.
func WithSessionIDCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// NewNop creates a no-op logger for tests or contexts with none attached.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}
