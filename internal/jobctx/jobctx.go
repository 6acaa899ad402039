// Package jobctx carries per-cycle identifiers through context so log lines
// from any layer can be tied back to one job claim.
package jobctx

import (
	"context"

	"github.com/google/uuid"
)

type key int

const (
	correlationKey key = iota
	jobIDKey
	workerIDKey
)

// WithCorrelationID attaches a correlation id, generating one when empty.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID returns the correlation id, or "" when absent.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey).(string); ok {
		return id
	}
	return ""
}

// WithJobID attaches the claimed job's id.
func WithJobID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobID returns the job id and whether one is attached.
func JobID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(jobIDKey).(int64)
	return id, ok
}

// WithWorkerID attaches the processing worker's identity.
func WithWorkerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerIDKey, id)
}

// WorkerID returns the worker id, or "" when absent.
func WorkerID(ctx context.Context) string {
	if id, ok := ctx.Value(workerIDKey).(string); ok {
		return id
	}
	return ""
}
