package listing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// mlItem is the slice of a MercadoLibre item document the mapper consumes.
// Item id arrives as "id" on /items and "item_id" on /products/{id}/items.
type mlItem struct {
	HTTPStatus int     `json:"http_status"`
	ID         string  `json:"id"`
	ItemID     string  `json:"item_id"`
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	CurrencyID string  `json:"currency_id"`
}

// MapMLItem converts one MercadoLibre item document into a SellListing.
// Blocked documents (the proxy's 403 payload) are rejected rather than
// mapped; the fx rate must be positive. The listing timestamp is pinned to
// the fx as-of date so reruns over the same rate produce identical rows.
func MapMLItem(raw json.RawMessage, market string, fxRate float64, fxAsOfDate string) (SellListing, error) {
	var it mlItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return SellListing{}, fmt.Errorf("decode item: %w", err)
	}

	if it.HTTPStatus == 403 {
		return SellListing{}, errors.New("blocked payload, cannot map")
	}

	itemID := it.ID
	if itemID == "" {
		itemID = it.ItemID
	}
	if itemID == "" {
		return SellListing{}, errors.New("missing item id")
	}

	if fxRate <= 0 {
		return SellListing{}, fmt.Errorf("fx rate must be positive, got %v", fxRate)
	}

	ts, err := time.Parse("2006-01-02", fxAsOfDate)
	if err != nil {
		return SellListing{}, fmt.Errorf("parse fx as-of date %q: %w", fxAsOfDate, err)
	}

	currency := it.CurrencyID
	if currency == "" {
		currency = "MXN"
	}
	if market == "" {
		market = "MX"
	}

	return SellListing{
		Channel:           ChannelMercadoLibre,
		Market:            strings.ToUpper(market),
		ChannelItemID:     itemID,
		Title:             it.Title,
		SellPriceOriginal: it.Price,
		CurrencyOriginal:  currency,
		SellPriceUSD:      it.Price * fxRate,
		FxRateToUSD:       fxRate,
		FxAsOfDate:        fxAsOfDate,
		ListingTimestamp:  ts.UTC(),
	}, nil
}
