package runner

import (
	"context"

	"github.com/google/uuid"
)

type runIDKey struct{}

// ContextWithRunID attaches a run id to ctx. Runs started with that context log
// and trace under the given id instead of generating one
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey{}).(string)
	return runID
}

// NewRunID returns a time ordered (v7) UUID
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func ensureRunID(ctx context.Context) (context.Context, string) {
	if runID := RunIDFromContext(ctx); runID != "" {
		return ctx, runID
	}
	runID := NewRunID()
	return ContextWithRunID(ctx, runID), runID
}
