package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/ratewatch/internal/model"
	"github.com/t77yq/ratewatch/internal/notify"
	"github.com/t77yq/ratewatch/internal/testutil"
)

func newAlert(t *testing.T) *model.Alert {
	t.Helper()

	alert := model.NewAlert(model.AlertKindCurrency, model.Condition{
		Direction: model.ConditionAbove,
		Threshold: decimal.NewFromFloat(3.70),
	})
	alert.BaseCurrency = "USD"
	alert.TargetCurrency = "ILS"
	return alert
}

func TestNotifier_DeliverUsesAlertIDAsIdentifier(t *testing.T) {
	center := testutil.NewFakeCenter()
	store := testutil.NewMemoryAlertStore()
	notifier := notify.NewNotifier(zap.NewNop(), center, store)

	alert := newAlert(t)
	require.NoError(t, notifier.Deliver(context.Background(), alert, decimal.NewFromFloat(3.71)))

	content, ok := center.Visible(alert.ID)
	require.True(t, ok)
	require.Contains(t, content.Title, "USD/ILS")
	require.Contains(t, content.Body, "risen above")
	require.Contains(t, content.Body, "3.7")
	require.Contains(t, content.Body, "3.71")
}

func TestNotifier_DeliverDeduplicatesByAlertID(t *testing.T) {
	center := testutil.NewFakeCenter()
	store := testutil.NewMemoryAlertStore()
	notifier := notify.NewNotifier(zap.NewNop(), center, store)

	alert := newAlert(t)

	// A foreground check and a background check racing on stale data both
	// deliver for the same alert.
	require.NoError(t, notifier.Deliver(context.Background(), alert, decimal.NewFromFloat(3.71)))
	require.NoError(t, notifier.Deliver(context.Background(), alert, decimal.NewFromFloat(3.72)))

	// At most one visible notification for the alert; the later delivery
	// replaced the earlier one.
	require.Equal(t, 1, center.VisibleCount())
	content, ok := center.Visible(alert.ID)
	require.True(t, ok)
	require.Contains(t, content.Body, "3.72")
}

func TestNotifier_DeliverPromptsOnceWhenUndetermined(t *testing.T) {
	center := testutil.NewFakeCenter()
	center.Status = notify.AuthorizationNotDetermined
	center.Grant = true
	store := testutil.NewMemoryAlertStore()
	notifier := notify.NewNotifier(zap.NewNop(), center, store)

	alert := newAlert(t)
	require.NoError(t, notifier.Deliver(context.Background(), alert, decimal.NewFromFloat(3.71)))

	require.Equal(t, 1, center.AuthorizationRequests())
	require.Equal(t, 1, center.VisibleCount())
}

func TestNotifier_DeliverNoOpsWhenDenied(t *testing.T) {
	center := testutil.NewFakeCenter()
	center.Status = notify.AuthorizationNotDetermined
	center.Grant = false
	store := testutil.NewMemoryAlertStore()
	notifier := notify.NewNotifier(zap.NewNop(), center, store)

	alert := newAlert(t)

	// Denied delivery is silent: no error, nothing visible.
	require.NoError(t, notifier.Deliver(context.Background(), alert, decimal.NewFromFloat(3.71)))
	require.Zero(t, center.VisibleCount())
	require.Zero(t, center.ScheduleCalls())
}

func TestNotifier_DeliverSurfacesScheduleFailure(t *testing.T) {
	center := testutil.NewFakeCenter()
	center.ScheduleErr = errors.New("bucket offline")
	store := testutil.NewMemoryAlertStore()
	notifier := notify.NewNotifier(zap.NewNop(), center, store)

	require.Error(t, notifier.Deliver(context.Background(), newAlert(t), decimal.NewFromFloat(3.71)))
}

func TestNotifier_CancelRemovesNotification(t *testing.T) {
	center := testutil.NewFakeCenter()
	store := testutil.NewMemoryAlertStore()
	notifier := notify.NewNotifier(zap.NewNop(), center, store)

	alert := newAlert(t)
	require.NoError(t, notifier.Deliver(context.Background(), alert, decimal.NewFromFloat(3.71)))
	require.Equal(t, 1, center.VisibleCount())

	require.NoError(t, notifier.Cancel(context.Background(), alert.ID))
	require.Zero(t, center.VisibleCount())
}

func TestNotifier_RefreshBadgeTracksTriggeredCount(t *testing.T) {
	center := testutil.NewFakeCenter()
	store := testutil.NewMemoryAlertStore()
	notifier := notify.NewNotifier(zap.NewNop(), center, store)
	ctx := context.Background()

	first := newAlert(t)
	first.MarkTriggered(time.Now())
	require.NoError(t, store.Save(ctx, first))

	second := newAlert(t)
	require.NoError(t, store.Save(ctx, second))

	require.NoError(t, notifier.RefreshBadge(ctx))
	require.Equal(t, 1, center.Badge())

	second.MarkTriggered(time.Now())
	require.NoError(t, store.Save(ctx, second))
	require.NoError(t, notifier.RefreshBadge(ctx))
	require.Equal(t, 2, center.Badge())

	require.NoError(t, notifier.ClearBadge(ctx))
	require.Zero(t, center.Badge())
}

func TestAuthorizationStatus_Deliverable(t *testing.T) {
	require.True(t, notify.AuthorizationAuthorized.Deliverable())
	require.True(t, notify.AuthorizationProvisional.Deliverable())
	require.False(t, notify.AuthorizationDenied.Deliverable())
	require.False(t, notify.AuthorizationNotDetermined.Deliverable())
	require.False(t, notify.AuthorizationUnknown.Deliverable())
}
