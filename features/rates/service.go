package rates

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Service caches USD lookups in process and runs the daily sync. USD itself
// never hits the store: it is 1.0 by identity.
type Service struct {
	fetcher *Fetcher
	repo    Repository
	base    string
	symbols []string
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	rate float64
	date string
}

// NewService wires the fetcher and repo. base is the currency the daily
// sync fetches from (e.g. "MXN"); symbols the quote currencies ("USD").
func NewService(fetcher *Fetcher, repo Repository, base string, symbols []string) *Service {
	if base == "" {
		base = "MXN"
	}
	if len(symbols) == 0 {
		symbols = []string{"USD"}
	}
	return &Service{
		fetcher: fetcher,
		repo:    repo,
		base:    base,
		symbols: symbols,
		now:     time.Now,
		cache:   map[string]cached{},
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Sync fetches and upserts one rate per configured symbol.
func (s *Service) Sync(ctx context.Context) error {
	for _, sym := range s.symbols {
		rate, err := s.fetcher.Latest(ctx, s.base, sym)
		if err != nil {
			return fmt.Errorf("sync %s/%s: %w", s.base, sym, err)
		}
		if err := s.repo.Upsert(ctx, rate); err != nil {
			return fmt.Errorf("sync %s/%s: %w", s.base, sym, err)
		}
		slog.InfoContext(ctx, "exchange rate synced",
			"from", rate.FromCurrency, "to", rate.ToCurrency,
			"rate", rate.Rate, "as_of", rate.AsOfDate)
	}
	return nil
}

// LatestToUSD resolves currency→USD with a per-day in-process cache.
func (s *Service) LatestToUSD(ctx context.Context, currency string) (float64, string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == "USD" {
		return 1.0, s.now().UTC().Format("2006-01-02"), nil
	}

	key := currency + ":" + s.now().UTC().Format("2006-01-02")

	s.mu.Lock()
	if v, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return v.rate, v.date, nil
	}
	s.mu.Unlock()

	rate, date, err := s.repo.LatestToUSD(ctx, currency)
	if err != nil {
		return 0, "", err
	}

	s.mu.Lock()
	s.cache[key] = cached{rate: rate, date: date}
	s.mu.Unlock()
	return rate, date, nil
}
