package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/ratewatch/internal/checker"
	"github.com/t77yq/ratewatch/internal/model"
	"github.com/t77yq/ratewatch/internal/notify"
	"github.com/t77yq/ratewatch/internal/storage"
)

// ErrNotificationsDenied is returned by CheckNow when alerts triggered but
// notification authorization is denied, so the caller can tell the user why
// nothing was shown.
var ErrNotificationsDenied = errors.New("notifications are denied")

// App ties the checker, store and notifier together behind the operations
// the daemon and any future UI call. Every check path, foreground or
// background, funnels through the same evaluation pass.
type App struct {
	logger   *zap.Logger
	store    storage.AlertStore
	checker  *checker.Checker
	notifier *notify.Notifier
}

// NewApp creates the application service.
func NewApp(logger *zap.Logger, store storage.AlertStore, chk *checker.Checker, notifier *notify.Notifier) *App {
	return &App{
		logger:   logger.Named("app"),
		store:    store,
		checker:  chk,
		notifier: notifier,
	}
}

// CreateAlert validates and persists a new alert.
func (a *App) CreateAlert(ctx context.Context, alert *model.Alert) error {
	if err := alert.Validate(); err != nil {
		return err
	}
	if err := a.store.Save(ctx, alert); err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	a.logger.Info("Alert created",
		zap.String("alert_id", alert.ID),
		zap.String("pair", alert.DisplayName()),
		zap.String("condition", alert.Condition.String()))
	return nil
}

// UpdateAlert validates and persists changes to an existing alert.
func (a *App) UpdateAlert(ctx context.Context, alert *model.Alert) error {
	if err := alert.Validate(); err != nil {
		return err
	}
	if _, err := a.store.Get(ctx, alert.ID); err != nil {
		return err
	}
	if err := a.store.Save(ctx, alert); err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	a.logger.Info("Alert updated", zap.String("alert_id", alert.ID))
	return nil
}

// DeleteAlert removes an alert along with any notification it put up, then
// brings the badge back in line.
func (a *App) DeleteAlert(ctx context.Context, alertID string) error {
	if err := a.store.Delete(ctx, alertID); err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if err := a.notifier.Cancel(ctx, alertID); err != nil {
		a.logger.Warn("Failed to remove notification for deleted alert",
			zap.String("alert_id", alertID),
			zap.Error(err))
	}
	if err := a.notifier.RefreshBadge(ctx); err != nil {
		a.logger.Warn("Failed to refresh badge", zap.Error(err))
	}

	a.logger.Info("Alert deleted", zap.String("alert_id", alertID))
	return nil
}

// ToggleAlert flips an alert's enabled flag. The alert's status is left
// untouched, so a muted triggered alert stays triggered.
func (a *App) ToggleAlert(ctx context.Context, alertID string) (*model.Alert, error) {
	alert, err := a.store.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}

	alert.ToggleEnabled()
	if err := a.store.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	a.logger.Info("Alert toggled",
		zap.String("alert_id", alert.ID),
		zap.Bool("enabled", alert.Enabled))
	return alert, nil
}

// ResetAlert manually reverts a triggered alert to active, dismisses its
// notification and refreshes the badge.
func (a *App) ResetAlert(ctx context.Context, alertID string) (*model.Alert, error) {
	alert, err := a.store.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}

	alert.Reset()
	if err := a.store.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}
	if err := a.notifier.Cancel(ctx, alertID); err != nil {
		a.logger.Warn("Failed to remove notification for reset alert",
			zap.String("alert_id", alertID),
			zap.Error(err))
	}
	if err := a.notifier.RefreshBadge(ctx); err != nil {
		a.logger.Warn("Failed to refresh badge", zap.Error(err))
	}

	a.logger.Info("Alert reset", zap.String("alert_id", alertID))
	return alert, nil
}

// GetAlert returns one alert by id.
func (a *App) GetAlert(ctx context.Context, alertID string) (*model.Alert, error) {
	return a.store.Get(ctx, alertID)
}

// ListAlerts returns all stored alerts.
func (a *App) ListAlerts(ctx context.Context) ([]*model.Alert, error) {
	return a.store.LoadAll(ctx)
}

// RunStartupCheck runs the launch-time pass: ask for notification
// permission if it has never been decided, then evaluate all alerts.
// Per-alert failures are logged, not returned; only a failure that aborts
// the whole pass surfaces.
func (a *App) RunStartupCheck(ctx context.Context) error {
	if _, err := a.notifier.RequestPermission(ctx); err != nil {
		a.logger.Warn("Failed to request notification permission", zap.Error(err))
	}

	result, err := a.runPass(ctx)
	if err != nil {
		return err
	}

	a.logger.Info("Startup check complete",
		zap.Int("triggered", len(result.Triggered)),
		zap.Int("reset", len(result.Reset)),
		zap.Int("errors", len(result.Errors)))
	return nil
}

// CheckNow runs a user-initiated pass. A store-level load failure or denied
// notification permission comes back as the error; individual provider
// failures stay in the result and the logs rather than interrupting the
// user for one bad pair.
func (a *App) CheckNow(ctx context.Context) (*checker.Result, error) {
	result, err := a.runPass(ctx)
	if err != nil {
		return nil, err
	}

	status, err := a.notifier.AuthorizationStatus(ctx)
	if err != nil {
		a.logger.Warn("Failed to read authorization status", zap.Error(err))
	} else if status == notify.AuthorizationDenied {
		return result, ErrNotificationsDenied
	}

	return result, nil
}

// RunBackgroundRefresh is the body of the scheduled background job. An
// already-running pass is not an error from the scheduler's point of view;
// a cancelled deadline is, so the completion gets reported as expired.
func (a *App) RunBackgroundRefresh(ctx context.Context) error {
	result, err := a.runPass(ctx)
	if err != nil {
		if errors.Is(err, checker.ErrCheckInProgress) {
			a.logger.Warn("Skipping background refresh, check already running")
			return nil
		}
		return err
	}

	a.logger.Info("Background refresh complete",
		zap.Int("triggered", len(result.Triggered)),
		zap.Int("reset", len(result.Reset)),
		zap.Int("errors", len(result.Errors)))

	return ctx.Err()
}

// runPass executes one evaluation pass and applies its notification side
// effects: deliver for the newly triggered, dismiss for the auto-reset, and
// recount the badge.
func (a *App) runPass(ctx context.Context) (*checker.Result, error) {
	result, err := a.checker.CheckAlerts(ctx)
	if err != nil {
		return nil, err
	}

	for _, trig := range result.Triggered {
		if err := a.notifier.Deliver(ctx, trig.Alert, trig.Value); err != nil {
			a.logger.Error("Failed to deliver notification",
				zap.String("alert_id", trig.Alert.ID),
				zap.Error(err))
		}
	}

	for _, alert := range result.Reset {
		if err := a.notifier.Cancel(ctx, alert.ID); err != nil {
			a.logger.Warn("Failed to remove notification for auto-reset alert",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
		}
	}

	if err := a.notifier.RefreshBadge(ctx); err != nil {
		a.logger.Warn("Failed to refresh badge", zap.Error(err))
	}

	return result, nil
}
