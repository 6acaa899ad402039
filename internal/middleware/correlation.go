package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"marketpulse/apps/worker/internal/jobctx"
)

// CorrelationID threads an X-Correlation-ID header through jobctx so ops
// request logs carry the same identifier the queue runner uses.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = uuid.New().String()
		}

		ctx := jobctx.WithCorrelationID(r.Context(), id)
		w.Header().Set("X-Correlation-ID", id)

		slog.InfoContext(ctx, "request received", "method", r.Method, "path", r.URL.Path) // #nosec G706 -- r.URL.Path is parsed by Go's net/http
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		slog.InfoContext(ctx, "request completed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start)) // #nosec G706
	})
}

// GetCorrelationID reads the request's correlation id, "unknown" if absent.
func GetCorrelationID(ctx context.Context) string {
	if id := jobctx.CorrelationID(ctx); id != "" {
		return id
	}
	return "unknown"
}
