package storage

import (
	"context"
	"errors"

	"github.com/t77yq/ratewatch/internal/model"
)

var (
	// ErrAlertNotFound is returned by Get when no alert exists for the id.
	// Delete is idempotent and does not return it.
	ErrAlertNotFound = errors.New("alert not found")
)

// AlertStore is the durable home of the alert collection. Reads and writes
// are per-alert so two concurrent evaluation passes cannot clobber
// unrelated alerts.
type AlertStore interface {
	// LoadAll returns every stored alert.
	LoadAll(ctx context.Context) ([]*model.Alert, error)

	// Get returns the alert with the given id, or ErrAlertNotFound.
	Get(ctx context.Context, id string) (*model.Alert, error)

	// Save inserts or replaces a single alert.
	Save(ctx context.Context, alert *model.Alert) error

	// Delete removes an alert. Deleting a missing id is a no-op.
	Delete(ctx context.Context, id string) error

	// CountTriggered returns the number of alerts currently in triggered
	// status. Drives the notification badge.
	CountTriggered(ctx context.Context) (int, error)
}
