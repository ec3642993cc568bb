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

const (
	coingeckoBaseURL = "https://api.coingecko.com/api/v3"

	cryptoRequestTimeout = 30 * time.Second
)

// CoinGeckoClient fetches cryptocurrency USD prices from the CoinGecko
// simple price endpoint.
type CoinGeckoClient struct {
	logger     *zap.Logger
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCoinGeckoClient creates a CoinGecko price client. The free tier allows
// only a handful of requests per minute, so callers should configure a low
// rps.
func NewCoinGeckoClient(logger *zap.Logger, baseURL string, rps float64) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = coingeckoBaseURL
	}
	if rps <= 0 {
		rps = 0.25
	}
	return &CoinGeckoClient{
		logger:     logger.Named("coingecko"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: cryptoRequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Name implements CryptoPriceProvider.
func (c *CoinGeckoClient) Name() string { return "coingecko" }

// FetchPrice implements CryptoPriceProvider.
func (c *CoinGeckoClient) FetchPrice(ctx context.Context, id string) (Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}

	id = strings.ToLower(id)
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to create price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

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

	// Response shape: {"bitcoin": {"usd": 61234.12}}
	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("failed to decode price response: %w", err)
	}

	quotes, ok := body[id]
	if !ok {
		return Quote{}, fmt.Errorf("%s missing from response: %w", id, ErrNotFound)
	}
	value, ok := quotes["usd"]
	if !ok {
		return Quote{}, fmt.Errorf("usd quote for %s missing from response: %w", id, ErrNotFound)
	}

	c.logger.Debug("Fetched crypto price",
		zap.String("id", id),
		zap.String("value", value.String()))

	return Quote{Value: value, AsOf: time.Now()}, nil
}
