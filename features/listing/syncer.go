package listing

import (
	"context"
	"encoding/json"
	"log/slog"

	"marketpulse/apps/worker/internal/upstream"
)

// Marketplace is the slice of the MercadoLibre client the syncer uses.
type Marketplace interface {
	Search(ctx context.Context, p upstream.SearchParams) (*upstream.SearchPage, error)
	Item(ctx context.Context, itemID string) (json.RawMessage, error)
}

// RateSource resolves a currency to its USD rate and the as-of date the
// rate was taken from. features/rates.Service satisfies it.
type RateSource interface {
	LatestToUSD(ctx context.Context, currency string) (float64, string, error)
}

// SyncConfig drives one sync pass. At least one of Keywords, Categories or
// SellerIDs must be set; otherwise the pass is a no-op.
type SyncConfig struct {
	Market       string
	Keywords     []string
	Categories   []string
	SellerIDs    []string
	Limit        int
	MaxPages     int
	FetchDetails bool
}

func (c *SyncConfig) normalize() {
	if c.Market == "" {
		c.Market = "MX"
	}
	if c.Limit <= 0 {
		c.Limit = 50
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
}

// Stats summarizes one sync pass.
type Stats struct {
	ItemsFetched int
	RowsUpserted int
	MapFailures  int
}

// Syncer fans search inputs out over the marketplace search API, maps the
// results and batch-upserts them.
type Syncer struct {
	market Marketplace
	rates  RateSource
	repo   Repository
	cfg    SyncConfig
}

func NewSyncer(market Marketplace, rates RateSource, repo Repository, cfg SyncConfig) *Syncer {
	cfg.normalize()
	return &Syncer{market: market, rates: rates, repo: repo, cfg: cfg}
}

// searchInput is one fan-out unit. Category and seller searches use the
// wildcard query because the search API wants a q parameter.
type searchInput struct {
	Query    string
	Category string
	SellerID string
}

func (s *Syncer) inputs() []searchInput {
	var in []searchInput
	for _, q := range s.cfg.Keywords {
		in = append(in, searchInput{Query: q})
	}
	for _, c := range s.cfg.Categories {
		in = append(in, searchInput{Query: "*", Category: c})
	}
	for _, sid := range s.cfg.SellerIDs {
		in = append(in, searchInput{Query: "*", SellerID: sid})
	}
	return in
}

// Sync runs one full pass. Per-item mapping failures are counted and
// logged, never fatal; a search or upsert failure aborts the pass.
func (s *Syncer) Sync(ctx context.Context) (Stats, error) {
	var stats Stats

	inputs := s.inputs()
	if len(inputs) == 0 {
		slog.InfoContext(ctx, "listing sync skipped, no search inputs configured")
		return stats, nil
	}

	for _, in := range inputs {
		if err := s.syncOne(ctx, in, &stats); err != nil {
			return stats, err
		}
	}

	slog.InfoContext(ctx, "listing sync finished",
		"items_fetched", stats.ItemsFetched,
		"rows_upserted", stats.RowsUpserted,
		"map_failures", stats.MapFailures)
	return stats, nil
}

func (s *Syncer) syncOne(ctx context.Context, in searchInput, stats *Stats) error {
	offset := 0
	for page := 0; page < s.cfg.MaxPages; page++ {
		result, err := s.market.Search(ctx, upstream.SearchParams{
			Query:    in.Query,
			Category: in.Category,
			SellerID: in.SellerID,
			Offset:   offset,
			Limit:    s.cfg.Limit,
		})
		if err != nil {
			return err
		}
		if len(result.Results) == 0 {
			return nil
		}
		stats.ItemsFetched += len(result.Results)

		items := result.Results
		if s.cfg.FetchDetails {
			items = s.fetchDetails(ctx, result.Results, stats)
		}

		batch := s.mapBatch(ctx, items, stats)
		if len(batch) > 0 {
			if err := s.repo.UpsertBatch(ctx, batch); err != nil {
				return err
			}
			stats.RowsUpserted += len(batch)
		}

		offset += s.cfg.Limit
		if result.Paging.Total > 0 && offset >= result.Paging.Total {
			return nil
		}
	}
	return nil
}

func (s *Syncer) fetchDetails(ctx context.Context, results []json.RawMessage, stats *Stats) []json.RawMessage {
	details := make([]json.RawMessage, 0, len(results))
	for _, r := range results {
		var row struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(r, &row); err != nil || row.ID == "" {
			stats.MapFailures++
			continue
		}
		doc, err := s.market.Item(ctx, row.ID)
		if err != nil {
			slog.WarnContext(ctx, "item detail fetch failed", "item_id", row.ID, "error", err)
			stats.MapFailures++
			continue
		}
		details = append(details, doc)
	}
	return details
}

func (s *Syncer) mapBatch(ctx context.Context, items []json.RawMessage, stats *Stats) []SellListing {
	batch := make([]SellListing, 0, len(items))
	for _, it := range items {
		currency := itemCurrency(it)
		rate, asOf, err := s.rates.LatestToUSD(ctx, currency)
		if err != nil {
			slog.WarnContext(ctx, "fx lookup failed", "currency", currency, "error", err)
			stats.MapFailures++
			continue
		}
		row, err := MapMLItem(it, s.cfg.Market, rate, asOf)
		if err != nil {
			slog.WarnContext(ctx, "item map failed", "error", err)
			stats.MapFailures++
			continue
		}
		batch = append(batch, row)
	}
	return batch
}

func itemCurrency(raw json.RawMessage) string {
	var it struct {
		CurrencyID string `json:"currency_id"`
	}
	_ = json.Unmarshal(raw, &it)
	if it.CurrencyID == "" {
		return "MXN"
	}
	return it.CurrencyID
}
