package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/t77yq/ratewatch/internal/model"
	"github.com/t77yq/ratewatch/internal/provider"
	"github.com/t77yq/ratewatch/internal/storage"
)

var (
	// ErrCheckInProgress is returned when a second evaluation pass is
	// requested while one is already running. Overlapping passes would race
	// on the same alerts' persisted state, so they are single-flight.
	ErrCheckInProgress = errors.New("alert check already in progress")
)

// TriggeredAlert pairs a newly-triggered alert with the value that
// satisfied its condition, for notification building.
type TriggeredAlert struct {
	Alert *model.Alert
	Value decimal.Decimal
}

// Result is the outcome of one evaluation pass.
type Result struct {
	// Triggered contains the alerts that transitioned to triggered during
	// this pass, in evaluation order.
	Triggered []TriggeredAlert

	// Errors maps alert ids to the per-alert provider failures encountered
	// during the pass. These never abort the batch.
	Errors map[string]error

	// Reset contains the alerts reverted to active by the auto-reset sweep.
	Reset []*model.Alert
}

// Checker runs evaluation passes over the stored alerts. All collaborators
// are injected so tests can substitute in-memory fakes.
type Checker struct {
	logger   *zap.Logger
	store    storage.AlertStore
	currency provider.CurrencyRateProvider
	crypto   provider.CryptoPriceProvider
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

// New creates a checker.
func New(logger *zap.Logger, store storage.AlertStore, currency provider.CurrencyRateProvider, crypto provider.CryptoPriceProvider) *Checker {
	return &Checker{
		logger:   logger.Named("checker"),
		store:    store,
		currency: currency,
		crypto:   crypto,
		now:      time.Now,
	}
}

// CheckAlerts runs one evaluation pass: load eligible alerts, fetch their
// current values one at a time, trigger and persist the satisfied ones
// immediately, then sweep for due auto-resets. A store load failure is the
// only fatal error; individual provider failures are recorded per alert and
// the pass continues.
func (c *Checker) CheckAlerts(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrCheckInProgress
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	alerts, err := c.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	result := &Result{Errors: make(map[string]error)}

	for _, alert := range alerts {
		if !alert.EligibleForEvaluation() {
			continue
		}

		// Cooperative cancellation between fetches. The background path
		// cancels here when its deadline expires.
		select {
		case <-ctx.Done():
			c.logger.Warn("Alert check cancelled mid-pass",
				zap.Int("triggered_so_far", len(result.Triggered)),
				zap.Error(ctx.Err()))
			c.sweepAutoResets(ctx, alerts, result)
			return result, nil
		default:
		}

		quote, err := c.fetchCurrentValue(ctx, alert)
		if err != nil {
			// One provider failure must never abort the batch.
			result.Errors[alert.ID] = err
			c.logger.Warn("Failed to fetch current value",
				zap.String("alert_id", alert.ID),
				zap.String("pair", alert.DisplayName()),
				zap.Error(err))
			continue
		}

		if !alert.Condition.Satisfied(quote.Value) {
			continue
		}

		alert.MarkTriggered(c.now())
		// Persist immediately so a kill mid-pass loses at most the
		// in-flight alert.
		if err := c.store.Save(ctx, alert); err != nil {
			c.logger.Error("Failed to persist triggered alert",
				zap.String("alert_id", alert.ID),
				zap.String("pair", alert.DisplayName()),
				zap.Error(err))
			continue
		}

		result.Triggered = append(result.Triggered, TriggeredAlert{Alert: alert, Value: quote.Value})
		c.logger.Info("Alert triggered",
			zap.String("alert_id", alert.ID),
			zap.String("pair", alert.DisplayName()),
			zap.String("condition", alert.Condition.String()),
			zap.String("current_value", quote.Value.String()))
	}

	c.sweepAutoResets(ctx, alerts, result)

	return result, nil
}

// fetchCurrentValue resolves the current value via the provider matching the
// alert's kind.
func (c *Checker) fetchCurrentValue(ctx context.Context, alert *model.Alert) (provider.Quote, error) {
	switch alert.Kind {
	case model.AlertKindCurrency:
		return c.currency.FetchRate(ctx, alert.BaseCurrency, alert.TargetCurrency)
	case model.AlertKindCrypto:
		return c.crypto.FetchPrice(ctx, alert.CryptoID)
	default:
		return provider.Quote{}, fmt.Errorf("unknown alert kind %q", alert.Kind)
	}
}

// sweepAutoResets reverts triggered alerts whose auto-reset window has
// elapsed. The sweep covers every alert, including disabled ones, so an
// alert the user muted mid-trigger still comes back to active on schedule.
// It runs on every pass, foreground or background.
func (c *Checker) sweepAutoResets(ctx context.Context, alerts []*model.Alert, result *Result) {
	now := c.now()
	for _, alert := range alerts {
		if !alert.AutoResetDue(now) {
			continue
		}

		alert.Reset()
		if err := c.store.Save(ctx, alert); err != nil {
			c.logger.Error("Failed to persist auto-reset",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
			continue
		}

		result.Reset = append(result.Reset, alert)
		c.logger.Info("Alert auto-reset to active",
			zap.String("alert_id", alert.ID),
			zap.String("pair", alert.DisplayName()))
	}
}
