package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marketpulse/apps/worker/features/queue"
	"marketpulse/apps/worker/internal/runner"
	"marketpulse/apps/worker/internal/upstream"
)

const (
	defaultSiteID = "MLM"
	defaultLimit  = 50
)

// Requester shapes the raw upstream request for one search page.
// *upstream.MercadoLibre satisfies it.
type Requester interface {
	SearchRequest(p upstream.SearchParams) upstream.Request
}

type payload struct {
	SiteID    string `json:"site_id"`
	QueryText string `json:"query_text"`
	DomainID  string `json:"domain_id"`
	Category  string `json:"category"`
	SellerID  string `json:"seller_id"`
	Offset    int    `json:"offset"`
	Limit     int    `json:"limit"`
}

func (p *payload) normalize() {
	if p.SiteID == "" {
		p.SiteID = defaultSiteID
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
}

// NewHandler binds the "search" job type to the marketplace search API.
// Every completed or failed call leaves a search-run row behind; run
// recording failures are logged but never fail the job, the queue row is
// the source of truth.
func NewHandler(req Requester, rec Recorder) runner.Handler {
	return runner.Handler{
		BuildRequest: func(raw json.RawMessage) (upstream.Request, error) {
			var p payload
			if err := json.Unmarshal(raw, &p); err != nil {
				return upstream.Request{}, fmt.Errorf("decode search payload: %w", err)
			}
			if p.QueryText == "" {
				return upstream.Request{}, errors.New("search payload missing query_text")
			}
			p.normalize()
			return req.SearchRequest(upstream.SearchParams{
				Query:    p.QueryText,
				Category: p.Category,
				SellerID: p.SellerID,
				Offset:   p.Offset,
				Limit:    p.Limit,
			}), nil
		},
		OnResult: func(ctx context.Context, j *queue.Job, result json.RawMessage) error {
			p := decodePayload(j.Payload)

			var page upstream.SearchPage
			if err := json.Unmarshal(result, &page); err != nil {
				return fmt.Errorf("decode search page: %w", err)
			}

			run := Run{
				SiteID:     p.SiteID,
				QueryText:  p.QueryText,
				DomainID:   p.DomainID,
				Status:     RunCompleted,
				HTTPStatus: 200,
				Results:    page.Results,
				RecordedAt: time.Now().UTC(),
			}
			if err := rec.RecordRun(ctx, run); err != nil {
				return fmt.Errorf("record search run: %w", err)
			}
			slog.InfoContext(ctx, "search run recorded",
				"query", p.QueryText, "results", len(page.Results))
			return nil
		},
		OnFailure: func(ctx context.Context, j *queue.Job, out upstream.Outcome) {
			p := decodePayload(j.Payload)
			run := Run{
				SiteID:     p.SiteID,
				QueryText:  p.QueryText,
				DomainID:   p.DomainID,
				Status:     RunFailed,
				HTTPStatus: out.HTTPStatus,
				Error:      out.ErrorBody,
				RecordedAt: time.Now().UTC(),
			}
			if err := rec.RecordRun(ctx, run); err != nil {
				slog.ErrorContext(ctx, "record failed search run", "error", err)
			}
		},
		Success: queue.StatusDone,
		Dead:    queue.StatusDead,
	}
}

// decodePayload is lenient: by the time OnResult/OnFailure run the payload
// already passed BuildRequest, or the failure path wants whatever partial
// fields it can get.
func decodePayload(raw json.RawMessage) payload {
	var p payload
	_ = json.Unmarshal(raw, &p)
	p.normalize()
	return p
}
