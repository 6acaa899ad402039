// Package listing maps marketplace items into sell-listing rows and keeps
// them synced through the sp_selllistings stored procedure.
package listing

import (
	"time"
)

const ChannelMercadoLibre = "mercadolibre"

// SellListing mirrors the sp_selllistings row contract. The first block is
// NOT NULL in the table; pointer fields are nullable.
type SellListing struct {
	Channel           string    `json:"channel"`
	Market            string    `json:"market"`
	ChannelItemID     string    `json:"channelItemId"`
	Title             string    `json:"title"`
	SellPriceOriginal float64   `json:"sellPriceOriginal"`
	CurrencyOriginal  string    `json:"currencyOriginal"`
	SellPriceUSD      float64   `json:"sellPriceUsd"`
	FxRateToUSD       float64   `json:"fxRateToUsd"`
	FxAsOfDate        string    `json:"fxAsOfDate"`
	ListingTimestamp  time.Time `json:"listingTimestamp"`

	FulfillmentType  *string  `json:"fulfillmentType"`
	ShippingTimeDays *int     `json:"shippingTimeDays"`
	Rating           *float64 `json:"rating"`
	ReviewsCount     *int     `json:"reviewsCount"`
	UnifiedProductID *string  `json:"unifiedProductId"`
}
