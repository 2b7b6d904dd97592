// Package requestid carries a per-request correlation ID through context
// and into log lines.
package requestid

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Header is the HTTP header the ID travels in.
const Header = "X-Request-ID"

const maxIncomingLen = 128

type ctxKey struct{}

// WithRequestID returns a context with the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from context, or "" when absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// New generates a new request ID and returns the enriched context and ID.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return WithRequestID(ctx, id), id
}

// Resolve adopts a caller-supplied ID when it is usable, otherwise it
// generates one.
func Resolve(ctx context.Context, incoming string) (context.Context, string) {
	if incoming == "" || len(incoming) > maxIncomingLen {
		return New(ctx)
	}
	return WithRequestID(ctx, incoming), incoming
}

// Logger returns logger tagged with the request ID in ctx, if any.
func Logger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if id := FromContext(ctx); id != "" {
		return logger.With().Str("request_id", id).Logger()
	}
	return logger
}
