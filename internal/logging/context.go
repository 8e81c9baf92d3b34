package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, contextKey{}, correlationID)
}

// GetCorrelationID retrieves the correlation ID from the context, or ""
// when none is set.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// GenerateCorrelationID generates a new UUID-based correlation ID.
func GenerateCorrelationID() string {
	return uuid.New().String()
}
