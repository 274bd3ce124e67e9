// Package telemetry provides observability for the improv server.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/oklog/ulid/v2"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// NewLogger creates a structured JSON logger with the given minimum level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// NewRequestID generates a lexically sortable per-request ID.
func NewRequestID() string {
	return ulid.Make().String()
}

// WithRequestID adds a request ID to the context. If id is empty, a new one
// is generated.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewRequestID()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID retrieves the request ID from context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestLogger returns a logger with request-scoped fields.
func RequestLogger(logger *slog.Logger, ctx context.Context, method, path string) *slog.Logger {
	attrs := []any{
		slog.String("method", method),
		slog.String("path", path),
	}
	if id := RequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	return logger.With(attrs...)
}
