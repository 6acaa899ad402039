// Package rates pulls currency exchange rates from the Frankfurter API,
// persists them and serves cached USD lookups to the listing mappers.
package rates

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"marketpulse/apps/worker/internal/upstream"
)

const (
	DefaultFrankfurterBase = "https://api.frankfurter.dev/v1"
	SourceFrankfurter      = "frankfurter_ecb"
)

// Rate is one base→quote exchange rate on a given day.
type Rate struct {
	FromCurrency string  `json:"fromCurrency"`
	ToCurrency   string  `json:"toCurrency"`
	Rate         float64 `json:"rate"`
	AsOfDate     string  `json:"asOfDate"`
	Source       string  `json:"source"`
}

// Fetcher pulls the latest base→symbol rate from the rates API.
type Fetcher struct {
	base   string
	client upstream.Client
}

func NewFetcher(base string, client upstream.Client) *Fetcher {
	if base == "" {
		base = DefaultFrankfurterBase
	}
	return &Fetcher{base: base, client: client}
}

// Latest fetches the current rate for one currency pair.
func (f *Fetcher) Latest(ctx context.Context, from, to string) (Rate, error) {
	q := url.Values{}
	q.Set("base", from)
	q.Set("symbols", to)

	out, err := f.client.Call(ctx, upstream.Request{
		URL:   f.base + "/latest",
		Query: q,
	})
	if err != nil {
		return Rate{}, fmt.Errorf("fetch rates: %w", err)
	}
	if !out.OK {
		return Rate{}, fmt.Errorf("fetch rates: status %d", out.HTTPStatus)
	}

	var body struct {
		Date  string             `json:"date"`
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(out.ResultBody, &body); err != nil {
		return Rate{}, fmt.Errorf("decode rates response: %w", err)
	}

	rate, ok := body.Rates[to]
	if !ok {
		return Rate{}, fmt.Errorf("rates response missing symbol %s", to)
	}
	return Rate{
		FromCurrency: from,
		ToCurrency:   to,
		Rate:         rate,
		AsOfDate:     body.Date,
		Source:       SourceFrankfurter,
	}, nil
}

type Repository interface {
	Upsert(ctx context.Context, r Rate) error
	LatestToUSD(ctx context.Context, currency string) (float64, string, error)
}

const (
	procRatesUpsert = `SELECT sp_exchangerates_upsert($1)`
	procLatestToUSD = `SELECT rate, as_of_date FROM sp_exchangerates_latest_to_usd($1)`
)

// SQLRepo persists rates through stored procedures.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo {
	return &SQLRepo{db: db}
}

func (r *SQLRepo) Upsert(ctx context.Context, rate Rate) error {
	doc, err := json.Marshal(map[string]any{"exchangeRates": []Rate{rate}})
	if err != nil {
		return fmt.Errorf("marshal rate: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, procRatesUpsert, string(doc)); err != nil {
		return fmt.Errorf("sp_exchangerates_upsert: %w", err)
	}
	return nil
}

// LatestToUSD returns the most recent stored rate for currency→USD and the
// date it was taken from.
func (r *SQLRepo) LatestToUSD(ctx context.Context, currency string) (float64, string, error) {
	var rate float64
	var asOf time.Time
	err := r.db.QueryRowContext(ctx, procLatestToUSD, currency).Scan(&rate, &asOf)
	if err == sql.ErrNoRows {
		return 0, "", fmt.Errorf("no exchange rate stored for %s", currency)
	}
	if err != nil {
		return 0, "", fmt.Errorf("sp_exchangerates_latest_to_usd: %w", err)
	}
	return rate, asOf.Format("2006-01-02"), nil
}
