package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/apps/worker/internal/upstream"
)

type mockMarketplace struct {
	pages    map[int]*upstream.SearchPage
	items    map[string]json.RawMessage
	searches []upstream.SearchParams
	itemErr  error
}

func (m *mockMarketplace) Search(ctx context.Context, p upstream.SearchParams) (*upstream.SearchPage, error) {
	m.searches = append(m.searches, p)
	page, ok := m.pages[p.Offset]
	if !ok {
		return &upstream.SearchPage{}, nil
	}
	return page, nil
}

func (m *mockMarketplace) Item(ctx context.Context, itemID string) (json.RawMessage, error) {
	if m.itemErr != nil {
		return nil, m.itemErr
	}
	doc, ok := m.items[itemID]
	if !ok {
		return nil, fmt.Errorf("item %s not found", itemID)
	}
	return doc, nil
}

type mockRates struct {
	rate float64
	date string
	err  error
}

func (m *mockRates) LatestToUSD(ctx context.Context, currency string) (float64, string, error) {
	return m.rate, m.date, m.err
}

type mockRepo struct {
	batches [][]SellListing
	err     error
}

func (m *mockRepo) UpsertBatch(ctx context.Context, rows []SellListing) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, rows)
	return nil
}

func page(total int, items ...string) *upstream.SearchPage {
	p := &upstream.SearchPage{}
	p.Paging.Total = total
	for _, it := range items {
		p.Results = append(p.Results, json.RawMessage(it))
	}
	return p
}

func TestSync_KeywordSearchUpserts(t *testing.T) {
	market := &mockMarketplace{
		pages: map[int]*upstream.SearchPage{
			0: page(2,
				`{"id":"MLM1","title":"A","price":100,"currency_id":"MXN"}`,
				`{"id":"MLM2","title":"B","price":200,"currency_id":"MXN"}`),
		},
	}
	repo := &mockRepo{}
	s := NewSyncer(market, &mockRates{rate: 0.05, date: "2025-06-01"}, repo, SyncConfig{
		Market:   "MX",
		Keywords: []string{"laptop"},
		Limit:    50,
	})

	stats, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ItemsFetched)
	assert.Equal(t, 2, stats.RowsUpserted)
	assert.Equal(t, 0, stats.MapFailures)

	require.Len(t, repo.batches, 1)
	assert.Equal(t, "MLM1", repo.batches[0][0].ChannelItemID)
	assert.InDelta(t, 5.0, repo.batches[0][0].SellPriceUSD, 0.0001)
}

func TestSync_FanOutInputs(t *testing.T) {
	market := &mockMarketplace{pages: map[int]*upstream.SearchPage{}}
	s := NewSyncer(market, &mockRates{rate: 0.05, date: "2025-06-01"}, &mockRepo{}, SyncConfig{
		Keywords:   []string{"laptop", "phone"},
		Categories: []string{"MLM1652"},
		SellerIDs:  []string{"S1"},
	})

	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	require.Len(t, market.searches, 4)
	assert.Equal(t, "laptop", market.searches[0].Query)
	assert.Equal(t, "phone", market.searches[1].Query)
	assert.Equal(t, "*", market.searches[2].Query)
	assert.Equal(t, "MLM1652", market.searches[2].Category)
	assert.Equal(t, "*", market.searches[3].Query)
	assert.Equal(t, "S1", market.searches[3].SellerID)
}

func TestSync_NoInputsIsNoop(t *testing.T) {
	market := &mockMarketplace{}
	s := NewSyncer(market, &mockRates{}, &mockRepo{}, SyncConfig{})

	stats, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.ItemsFetched)
	assert.Empty(t, market.searches)
}

func TestSync_PaginationStopsAtTotal(t *testing.T) {
	market := &mockMarketplace{
		pages: map[int]*upstream.SearchPage{
			0: page(3, `{"id":"MLM1","price":1}`, `{"id":"MLM2","price":1}`),
			2: page(3, `{"id":"MLM3","price":1}`),
		},
	}
	repo := &mockRepo{}
	s := NewSyncer(market, &mockRates{rate: 0.05, date: "2025-06-01"}, repo, SyncConfig{
		Keywords: []string{"laptop"},
		Limit:    2,
		MaxPages: 10,
	})

	stats, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ItemsFetched)
	assert.Len(t, market.searches, 2)
}

func TestSync_FetchDetails(t *testing.T) {
	market := &mockMarketplace{
		pages: map[int]*upstream.SearchPage{
			0: page(1, `{"id":"MLM1"}`),
		},
		items: map[string]json.RawMessage{
			"MLM1": json.RawMessage(`{"id":"MLM1","title":"Full Doc","price":500,"currency_id":"MXN"}`),
		},
	}
	repo := &mockRepo{}
	s := NewSyncer(market, &mockRates{rate: 0.05, date: "2025-06-01"}, repo, SyncConfig{
		Keywords:     []string{"laptop"},
		FetchDetails: true,
	})

	_, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, repo.batches, 1)
	assert.Equal(t, "Full Doc", repo.batches[0][0].Title)
}

func TestSync_DetailFailureCountsNotFatal(t *testing.T) {
	market := &mockMarketplace{
		pages: map[int]*upstream.SearchPage{
			0: page(1, `{"id":"MLM1"}`),
		},
		itemErr: errors.New("boom"),
	}
	repo := &mockRepo{}
	s := NewSyncer(market, &mockRates{rate: 0.05, date: "2025-06-01"}, repo, SyncConfig{
		Keywords:     []string{"laptop"},
		FetchDetails: true,
	})

	stats, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MapFailures)
	assert.Empty(t, repo.batches)
}

func TestSync_MapFailureSkipsRow(t *testing.T) {
	market := &mockMarketplace{
		pages: map[int]*upstream.SearchPage{
			0: page(2,
				`{"http_status":403,"msg":"blocked"}`,
				`{"id":"MLM2","price":10,"currency_id":"MXN"}`),
		},
	}
	repo := &mockRepo{}
	s := NewSyncer(market, &mockRates{rate: 0.05, date: "2025-06-01"}, repo, SyncConfig{
		Keywords: []string{"laptop"},
	})

	stats, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MapFailures)
	assert.Equal(t, 1, stats.RowsUpserted)
	require.Len(t, repo.batches, 1)
	assert.Equal(t, "MLM2", repo.batches[0][0].ChannelItemID)
}

func TestSync_UpsertFailureAborts(t *testing.T) {
	market := &mockMarketplace{
		pages: map[int]*upstream.SearchPage{
			0: page(1, `{"id":"MLM1","price":10}`),
		},
	}
	s := NewSyncer(market, &mockRates{rate: 0.05, date: "2025-06-01"}, &mockRepo{err: errors.New("db down")}, SyncConfig{
		Keywords: []string{"laptop"},
	})

	_, err := s.Sync(context.Background())
	require.Error(t, err)
}

func TestSync_RateLookupFailureSkipsRow(t *testing.T) {
	market := &mockMarketplace{
		pages: map[int]*upstream.SearchPage{
			0: page(1, `{"id":"MLM1","price":10}`),
		},
	}
	repo := &mockRepo{}
	s := NewSyncer(market, &mockRates{err: errors.New("no rate")}, repo, SyncConfig{
		Keywords: []string{"laptop"},
	})

	stats, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MapFailures)
	assert.Empty(t, repo.batches)
}
