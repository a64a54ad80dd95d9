// Package trace carries correlation ids through contexts and log records.
package trace

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// NewID returns a fresh trace id.
func NewID() string {
	return uuid.NewString()
}

// WithID returns a context carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the trace id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Ensure returns ctx unchanged if it already carries a trace id, otherwise a
// derived context with id (or a new id when id is empty).
func Ensure(ctx context.Context, id string) (context.Context, string) {
	if existing := FromContext(ctx); existing != "" {
		return ctx, existing
	}
	if id == "" {
		id = NewID()
	}
	return WithID(ctx, id), id
}
