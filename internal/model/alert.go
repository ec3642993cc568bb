package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertKind determines which provider an alert is evaluated against
type AlertKind string

const (
	AlertKindCurrency AlertKind = "currency"
	AlertKindCrypto   AlertKind = "crypto"
)

// AlertStatus represents the state machine value of an alert
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusTriggered AlertStatus = "triggered"
	AlertStatusPaused    AlertStatus = "paused"
)

// ConditionDirection represents the side of the threshold that triggers
type ConditionDirection string

const (
	ConditionAbove ConditionDirection = "above"
	ConditionBelow ConditionDirection = "below"
)

var (
	// ErrInvalidAlert is returned when an alert fails validation
	ErrInvalidAlert = errors.New("invalid alert")
)

// Condition is a threshold condition on a rate or price. Thresholds are
// decimals, not floats, so a rate sitting near the threshold never
// round-trips into a false trigger.
type Condition struct {
	Direction ConditionDirection `json:"direction"`
	Threshold decimal.Decimal    `json:"threshold"`
}

// Satisfied reports whether the current value meets the condition.
// Ties (value == threshold) satisfy neither direction.
func (c Condition) Satisfied(value decimal.Decimal) bool {
	switch c.Direction {
	case ConditionAbove:
		return value.GreaterThan(c.Threshold)
	case ConditionBelow:
		return value.LessThan(c.Threshold)
	default:
		return false
	}
}

// String returns a short human-readable form, e.g. "above 3.70".
func (c Condition) String() string {
	return fmt.Sprintf("%s %s", c.Direction, c.Threshold.String())
}

// Alert is a user-defined threshold watch on a currency pair or a single
// cryptocurrency. Crypto alerts are implicitly quoted in USD.
type Alert struct {
	ID             string      `json:"id"`
	Kind           AlertKind   `json:"kind"`
	BaseCurrency   string      `json:"base_currency,omitempty"`
	TargetCurrency string      `json:"target_currency,omitempty"`
	CryptoID       string      `json:"crypto_id,omitempty"`
	CryptoSymbol   string      `json:"crypto_symbol,omitempty"`
	Condition      Condition   `json:"condition"`
	Enabled        bool        `json:"enabled"`
	Status         AlertStatus `json:"status"`
	TriggeredAt    *time.Time  `json:"triggered_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`

	// AutoResetAfterHours, when set, reverts a triggered alert back to
	// active once that many hours have elapsed since TriggeredAt.
	AutoResetAfterHours *int `json:"auto_reset_after_hours,omitempty"`
}

// NewAlert creates an alert in its initial state.
func NewAlert(kind AlertKind, cond Condition) *Alert {
	return &Alert{
		ID:        uuid.New().String(),
		Kind:      kind,
		Condition: cond,
		Enabled:   true,
		Status:    AlertStatusActive,
		CreatedAt: time.Now(),
	}
}

// Validate checks the structural invariants of the alert.
func (a *Alert) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidAlert)
	}
	if !a.Condition.Threshold.IsPositive() {
		return fmt.Errorf("%w: threshold must be positive", ErrInvalidAlert)
	}
	if a.Condition.Direction != ConditionAbove && a.Condition.Direction != ConditionBelow {
		return fmt.Errorf("%w: unknown condition direction %q", ErrInvalidAlert, a.Condition.Direction)
	}

	switch a.Kind {
	case AlertKindCurrency:
		if a.BaseCurrency == "" || a.TargetCurrency == "" {
			return fmt.Errorf("%w: currency alert requires base and target codes", ErrInvalidAlert)
		}
		if strings.EqualFold(a.BaseCurrency, a.TargetCurrency) {
			return fmt.Errorf("%w: base and target currency must differ", ErrInvalidAlert)
		}
		if a.CryptoID != "" {
			return fmt.Errorf("%w: currency alert must not carry a crypto id", ErrInvalidAlert)
		}
	case AlertKindCrypto:
		if a.CryptoID == "" {
			return fmt.Errorf("%w: crypto alert requires a crypto id", ErrInvalidAlert)
		}
		if a.BaseCurrency != "" || a.TargetCurrency != "" {
			return fmt.Errorf("%w: crypto alert must not carry a currency pair", ErrInvalidAlert)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAlert, a.Kind)
	}

	if (a.TriggeredAt != nil) != (a.Status == AlertStatusTriggered) {
		return fmt.Errorf("%w: triggered_at must be set iff status is triggered", ErrInvalidAlert)
	}
	if a.AutoResetAfterHours != nil && *a.AutoResetAfterHours <= 0 {
		return fmt.Errorf("%w: auto reset hours must be positive", ErrInvalidAlert)
	}
	return nil
}

// EligibleForEvaluation reports whether the checker should evaluate this
// alert. Triggered alerts stay out of the pass until reset so a satisfied
// condition does not re-notify on every poll.
func (a *Alert) EligibleForEvaluation() bool {
	return a.Enabled && a.Status != AlertStatusTriggered
}

// MarkTriggered transitions the alert to triggered. Invoked only by the
// checker.
func (a *Alert) MarkTriggered(now time.Time) {
	a.Status = AlertStatusTriggered
	a.TriggeredAt = &now
}

// Reset forces the alert back to active regardless of elapsed time.
func (a *Alert) Reset() {
	a.Status = AlertStatusActive
	a.TriggeredAt = nil
}

// ToggleEnabled flips the enabled flag without touching the status.
func (a *Alert) ToggleEnabled() {
	a.Enabled = !a.Enabled
}

// AutoResetDue reports whether the auto-reset window has elapsed. Always
// false for alerts that are not triggered or have no auto-reset configured.
func (a *Alert) AutoResetDue(now time.Time) bool {
	if a.Status != AlertStatusTriggered || a.TriggeredAt == nil || a.AutoResetAfterHours == nil {
		return false
	}
	return now.Sub(*a.TriggeredAt) >= time.Duration(*a.AutoResetAfterHours)*time.Hour
}

// DisplayName returns the user-facing pair name, e.g. "USD/ILS" or "BTC/USD".
func (a *Alert) DisplayName() string {
	if a.Kind == AlertKindCrypto {
		symbol := a.CryptoSymbol
		if symbol == "" {
			symbol = a.CryptoID
		}
		return fmt.Sprintf("%s/USD", strings.ToUpper(symbol))
	}
	return fmt.Sprintf("%s/%s", strings.ToUpper(a.BaseCurrency), strings.ToUpper(a.TargetCurrency))
}
