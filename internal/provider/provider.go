package provider

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a currency pair or crypto id is unknown
	// to the upstream provider
	ErrNotFound = errors.New("pair or asset not found")

	// ErrRateLimited is returned when the upstream provider throttles us
	ErrRateLimited = errors.New("provider rate limited")

	// ErrUnknownBackend is returned when an unregistered crypto backend is
	// selected
	ErrUnknownBackend = errors.New("unknown crypto price backend")
)

// Quote is a single observed rate or price.
type Quote struct {
	Value decimal.Decimal `json:"value"`
	AsOf  time.Time       `json:"as_of"`
}

// CurrencyRateProvider looks up the current exchange rate for a fiat
// currency pair.
type CurrencyRateProvider interface {
	FetchRate(ctx context.Context, base, target string) (Quote, error)
}

// CryptoPriceProvider looks up the current USD price of a cryptocurrency by
// its provider-specific id.
type CryptoPriceProvider interface {
	Name() string
	FetchPrice(ctx context.Context, id string) (Quote, error)
}
