package comms

import (
	"context"
	"io"
	"log/slog"
)

type contextKey int

const (
	connIDKey contextKey = iota
	loggerKey
)

// WithConnID returns a new context with the connection ID. The logger in
// the context, if any, is tagged with it.
func WithConnID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, connIDKey, id)
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		ctx = WithLogger(ctx, logger.With("conn", id))
	}
	return ctx
}

// GetConnID returns the connection ID from the context.
func GetConnID(ctx context.Context) string {
	v := ctx.Value(connIDKey)
	if v == nil {
		return ""
	}
	return v.(string)
}

// WithLogger returns a new context with the logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetLogger returns the logger from the context, or a logger that
// discards everything.
func GetLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
