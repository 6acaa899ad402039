// Package publish binds the "publish" job type to the external listing
// publication API. Publish jobs use their own terminal statuses: published
// on success, failed when dead.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"marketpulse/apps/worker/features/queue"
	"marketpulse/apps/worker/internal/runner"
	"marketpulse/apps/worker/internal/upstream"
)

type payload struct {
	DraftID int             `json:"draft_id"`
	Channel string          `json:"channel"`
	Listing json.RawMessage `json:"listing"`
}

// NewHandler returns the runner handler for publish jobs. base is the
// publication API root, e.g. "https://backend.example.com".
func NewHandler(base string) runner.Handler {
	base = strings.TrimRight(base, "/")
	return runner.Handler{
		BuildRequest: func(raw json.RawMessage) (upstream.Request, error) {
			var p payload
			if err := json.Unmarshal(raw, &p); err != nil {
				return upstream.Request{}, fmt.Errorf("decode publish payload: %w", err)
			}
			if p.DraftID <= 0 {
				return upstream.Request{}, errors.New("publish payload missing draft_id")
			}
			if len(p.Listing) == 0 {
				return upstream.Request{}, errors.New("publish payload missing listing")
			}
			return upstream.Request{
				Method: http.MethodPost,
				URL:    fmt.Sprintf("%s/drafts/%d/publish", base, p.DraftID),
				Body:   p.Listing,
			}, nil
		},
		Success: queue.StatusPublished,
		Dead:    queue.StatusFailed,
	}
}
