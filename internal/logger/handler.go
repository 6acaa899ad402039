package logger

import (
	"context"
	"log/slog"

	"marketpulse/apps/worker/internal/jobctx"
)

// ContextHandler decorates every record with the job identifiers carried in
// context, so worker layers never thread ids through log call sites.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := jobctx.CorrelationID(ctx); id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if id, ok := jobctx.JobID(ctx); ok {
		r.AddAttrs(slog.Int64("job_id", id))
	}
	if id := jobctx.WorkerID(ctx); id != "" {
		r.AddAttrs(slog.String("worker_id", id))
	}
	return h.Handler.Handle(ctx, r)
}
