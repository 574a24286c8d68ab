package log

import (
	"context"

	"github.com/google/uuid"
)

// WithTraceID returns a context carrying a fresh trace id, and the id itself.
// An id already present in ctx is kept so nested runs share it.
func WithTraceID(ctx context.Context) (context.Context, string) {
	if id, ok := ctx.Value(TraceIDKey).(string); ok && id != "" {
		return ctx, id
	}

	id := uuid.NewString()
	return context.WithValue(ctx, TraceIDKey, id), id
}

// WithMigration tags ctx with the migration descriptor name.
func WithMigration(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, MigrationKey, name)
}

// WithPhase tags ctx with the runner phase.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, PhaseKey, phase)
}
