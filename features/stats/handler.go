package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"marketpulse/apps/worker/internal/middleware"
)

type QueueRepo interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type RunRepo interface {
	Count(ctx context.Context) (int, error)
}

type ListingRepo interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	queueRepo   QueueRepo
	runRepo     RunRepo
	listingRepo ListingRepo
}

func NewHandler(q QueueRepo, r RunRepo, l ListingRepo) *Handler {
	return &Handler{queueRepo: q, runRepo: r, listingRepo: l}
}

type StatsResponse struct {
	Queue        map[string]int `json:"queue"`
	SearchRuns   int            `json:"search_runs"`
	SellListings int            `json:"sell_listings"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	slog.InfoContext(ctx, "getting stats")

	qCounts, err := h.queueRepo.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count queue", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count queue", http.StatusInternalServerError)
		return
	}

	rCount, err := h.runRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count search runs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count search runs", http.StatusInternalServerError)
		return
	}

	lCount, err := h.listingRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count listings", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count listings", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Queue:        qCounts,
		SearchRuns:   rCount,
		SellListings: lCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
