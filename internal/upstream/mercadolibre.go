package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

const DefaultMercadoLibreBase = "https://api.mercadolibre.com"

// SearchParams selects one page of a MercadoLibre public search.
type SearchParams struct {
	Query    string
	Category string
	SellerID string
	Offset   int
	Limit    int
}

// SearchPage is the slice of a search response the workers consume.
type SearchPage struct {
	Results []json.RawMessage `json:"results"`
	Paging  struct {
		Total  int `json:"total"`
		Offset int `json:"offset"`
	} `json:"paging"`
}

// MercadoLibre is a thin typed client over the public search/items API.
// All calls go through the per-request retry loop.
type MercadoLibre struct {
	base   string
	siteID string
	client Client
	retry  RetryConfig
}

func NewMercadoLibre(base, siteID string, client Client, retry RetryConfig) *MercadoLibre {
	if base == "" {
		base = DefaultMercadoLibreBase
	}
	if siteID == "" {
		siteID = "MLM"
	}
	return &MercadoLibre{base: base, siteID: siteID, client: client, retry: retry}
}

// SearchRequest shapes the raw upstream request for a search page. Exposed
// so the queue-driven search handler can build the same request without
// going through the blocking retry loop.
func (m *MercadoLibre) SearchRequest(p SearchParams) Request {
	q := url.Values{}
	q.Set("q", p.Query)
	q.Set("offset", strconv.Itoa(p.Offset))
	q.Set("limit", strconv.Itoa(p.Limit))
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	if p.SellerID != "" {
		q.Set("seller_id", p.SellerID)
	}
	return Request{
		URL:   fmt.Sprintf("%s/sites/%s/search", m.base, m.siteID),
		Query: q,
	}
}

// Search fetches one page of search results.
func (m *MercadoLibre) Search(ctx context.Context, p SearchParams) (*SearchPage, error) {
	out, err := Do(ctx, m.client, m.SearchRequest(p), m.retry)
	if err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("search failed: status %d", out.HTTPStatus)
	}

	var page SearchPage
	if err := json.Unmarshal(out.ResultBody, &page); err != nil {
		return nil, fmt.Errorf("decode search page: %w", err)
	}
	return &page, nil
}

// Item fetches one item's full document.
func (m *MercadoLibre) Item(ctx context.Context, itemID string) (json.RawMessage, error) {
	req := Request{URL: fmt.Sprintf("%s/items/%s", m.base, url.PathEscape(itemID))}
	out, err := Do(ctx, m.client, req, m.retry)
	if err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("item %s failed: status %d", itemID, out.HTTPStatus)
	}
	return out.ResultBody, nil
}
