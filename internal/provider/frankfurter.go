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
	frankfurterBaseURL = "https://api.frankfurter.dev/v1"

	currencyRequestTimeout = 15 * time.Second
)

// FrankfurterClient fetches fiat currency-pair rates from the Frankfurter
// API.
type FrankfurterClient struct {
	logger     *zap.Logger
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewFrankfurterClient creates a currency rate client. An empty baseURL
// selects the public API endpoint.
func NewFrankfurterClient(logger *zap.Logger, baseURL string, rps float64) *FrankfurterClient {
	if baseURL == "" {
		baseURL = frankfurterBaseURL
	}
	if rps <= 0 {
		rps = 1
	}
	return &FrankfurterClient{
		logger:     logger.Named("frankfurter"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: currencyRequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type frankfurterResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// FetchRate implements CurrencyRateProvider.
func (c *FrankfurterClient) FetchRate(ctx context.Context, base, target string) (Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Quote{}, err
	}

	base = strings.ToUpper(base)
	target = strings.ToUpper(target)

	endpoint := fmt.Sprintf("%s/latest?base=%s&symbols=%s", c.baseURL, url.QueryEscape(base), url.QueryEscape(target))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to create rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to fetch rate for %s/%s: %w", base, target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Quote{}, fmt.Errorf("%s/%s: %w", base, target, ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return Quote{}, fmt.Errorf("%s/%s: %w", base, target, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return Quote{}, fmt.Errorf("unexpected status %d fetching %s/%s", resp.StatusCode, base, target)
	}

	var body frankfurterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("failed to decode rate response: %w", err)
	}

	value, ok := body.Rates[target]
	if !ok {
		return Quote{}, fmt.Errorf("%s/%s missing from response: %w", base, target, ErrNotFound)
	}

	asOf := time.Now()
	if parsed, err := time.Parse("2006-01-02", body.Date); err == nil {
		asOf = parsed
	}

	c.logger.Debug("Fetched currency rate",
		zap.String("base", base),
		zap.String("target", target),
		zap.String("value", value.String()))

	return Quote{Value: value, AsOf: asOf}, nil
}
