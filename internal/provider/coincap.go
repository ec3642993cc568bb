package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const coincapBaseURL = "https://api.coincap.io/v2"

// CoinCapClient fetches cryptocurrency USD prices from the CoinCap assets
// endpoint. It is the fallback backend when CoinGecko is throttled.
type CoinCapClient struct {
	logger     *zap.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCoinCapClient creates a CoinCap price client. An empty baseURL selects
// the public API endpoint; apiKey is optional.
func NewCoinCapClient(logger *zap.Logger, baseURL, apiKey string, rps float64) *CoinCapClient {
	if baseURL == "" {
		baseURL = coincapBaseURL
	}
	if rps <= 0 {
		rps = 1
	}
	return &CoinCapClient{
		logger:     logger.Named("coincap"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: cryptoRequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Name implements CryptoPriceProvider.
func (c *CoinCapClient) Name() string { return "coincap" }

type coincapResponse struct {
	Data struct {
		ID       string          `json:"id"`
		Symbol   string          `json:"symbol"`
		PriceUSD decimal.Decimal `json:"priceUsd"`
	} `json:"data"`
	Timestamp int64 `json:"timestamp"`
}

// FetchPrice implements CryptoPriceProvider.
func (c *CoinCapClient) FetchPrice(ctx context.Context, id string) (Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}

	id = strings.ToLower(id)
	endpoint := fmt.Sprintf("%s/assets/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to create price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to fetch price for %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Quote{}, fmt.Errorf("%s: %w", id, ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return Quote{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return Quote{}, fmt.Errorf("unexpected status %d fetching price for %s", resp.StatusCode, id)
	}

	var body coincapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("failed to decode price response: %w", err)
	}
	if body.Data.ID == "" {
		return Quote{}, fmt.Errorf("%s missing from response: %w", id, ErrNotFound)
	}

	asOf := time.Now()
	if body.Timestamp > 0 {
		asOf = time.UnixMilli(body.Timestamp)
	}

	c.logger.Debug("Fetched crypto price",
		zap.String("id", id),
		zap.String("value", body.Data.PriceUSD.String()))

	return Quote{Value: body.Data.PriceUSD, AsOf: asOf}, nil
}
