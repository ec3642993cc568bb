package notify

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/t77yq/ratewatch/internal/model"
	"github.com/t77yq/ratewatch/internal/storage"
)

// AuthorizationStatus reports whether the notification center may deliver.
type AuthorizationStatus string

const (
	AuthorizationAuthorized    AuthorizationStatus = "authorized"
	AuthorizationDenied        AuthorizationStatus = "denied"
	AuthorizationNotDetermined AuthorizationStatus = "not_determined"
	AuthorizationProvisional   AuthorizationStatus = "provisional"
	AuthorizationUnknown       AuthorizationStatus = "unknown"
)

// Deliverable reports whether the status permits delivery.
func (s AuthorizationStatus) Deliverable() bool {
	return s == AuthorizationAuthorized || s == AuthorizationProvisional
}

// Content is the user-facing payload of a notification.
type Content struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Center is the delivery collaborator. Scheduling a second notification
// under the same identifier replaces the first; that replace semantic is
// the deduplication contract the Notifier relies on.
type Center interface {
	// RequestAuthorization prompts for permission. Idempotent once the
	// decision has been made.
	RequestAuthorization(ctx context.Context) (bool, error)

	// AuthorizationStatus returns the current permission state.
	AuthorizationStatus(ctx context.Context) (AuthorizationStatus, error)

	// Schedule delivers (or replaces) the notification for an identifier.
	Schedule(ctx context.Context, identifier string, content Content) error

	// RemovePending removes a not-yet-delivered notification.
	RemovePending(ctx context.Context, identifier string) error

	// RemoveDelivered removes an already-delivered notification.
	RemoveDelivered(ctx context.Context, identifier string) error

	// SetBadgeCount sets the application badge.
	SetBadgeCount(ctx context.Context, count int) error
}

// Notifier turns triggered alerts into notifications. It deduplicates by
// alert id and keeps the badge equal to the number of currently triggered
// alerts.
type Notifier struct {
	logger *zap.Logger
	center Center
	store  storage.AlertStore
}

// NewNotifier creates a notifier.
func NewNotifier(logger *zap.Logger, center Center, store storage.AlertStore) *Notifier {
	return &Notifier{
		logger: logger.Named("notifier"),
		center: center,
		store:  store,
	}
}

// RequestPermission runs the one-shot permission prompt.
func (n *Notifier) RequestPermission(ctx context.Context) (bool, error) {
	return n.center.RequestAuthorization(ctx)
}

// AuthorizationStatus reports the current notification authorization.
func (n *Notifier) AuthorizationStatus(ctx context.Context) (AuthorizationStatus, error) {
	return n.center.AuthorizationStatus(ctx)
}

// Deliver sends a notification for a triggered alert, using the alert's own
// id as the notification identifier. If authorization has not been decided
// it asks once; if still denied, it logs a warning and no-ops.
func (n *Notifier) Deliver(ctx context.Context, alert *model.Alert, current decimal.Decimal) error {
	status, err := n.center.AuthorizationStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to read authorization status: %w", err)
	}

	if status == AuthorizationNotDetermined {
		granted, err := n.center.RequestAuthorization(ctx)
		if err != nil {
			return fmt.Errorf("failed to request authorization: %w", err)
		}
		if granted {
			status = AuthorizationAuthorized
		} else {
			status = AuthorizationDenied
		}
	}

	if !status.Deliverable() {
		n.logger.Warn("Notification suppressed, not authorized",
			zap.String("alert_id", alert.ID),
			zap.String("status", string(status)))
		return nil
	}

	content := buildContent(alert, current)
	if err := n.center.Schedule(ctx, alert.ID, content); err != nil {
		return fmt.Errorf("failed to schedule notification for alert %s: %w", alert.ID, err)
	}

	n.logger.Info("Notification delivered",
		zap.String("alert_id", alert.ID),
		zap.String("title", content.Title))
	return nil
}

// Cancel removes both pending and delivered notifications for an alert.
// Used when an alert is deleted or reset.
func (n *Notifier) Cancel(ctx context.Context, alertID string) error {
	if err := n.center.RemovePending(ctx, alertID); err != nil {
		return fmt.Errorf("failed to remove pending notification for %s: %w", alertID, err)
	}
	if err := n.center.RemoveDelivered(ctx, alertID); err != nil {
		return fmt.Errorf("failed to remove delivered notification for %s: %w", alertID, err)
	}
	return nil
}

// RefreshBadge recomputes the badge from the store's triggered count.
func (n *Notifier) RefreshBadge(ctx context.Context) error {
	count, err := n.store.CountTriggered(ctx)
	if err != nil {
		return fmt.Errorf("failed to count triggered alerts: %w", err)
	}
	if err := n.center.SetBadgeCount(ctx, count); err != nil {
		return fmt.Errorf("failed to set badge count: %w", err)
	}
	return nil
}

// ClearBadge zeroes the badge.
func (n *Notifier) ClearBadge(ctx context.Context) error {
	return n.center.SetBadgeCount(ctx, 0)
}

func buildContent(alert *model.Alert, current decimal.Decimal) Content {
	var direction string
	if alert.Condition.Direction == model.ConditionAbove {
		direction = "risen above"
	} else {
		direction = "fallen below"
	}

	return Content{
		Title: fmt.Sprintf("%s alert", alert.DisplayName()),
		Body: fmt.Sprintf("%s has %s %s (current: %s)",
			alert.DisplayName(),
			direction,
			alert.Condition.Threshold.String(),
			current.String()),
	}
}
