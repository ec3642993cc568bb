package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	notificationKeyPrefix = "alert."
	authorizationKey      = "auth"
	badgeKey              = "badge"
)

// NATSCenter implements Center on a JetStream key-value bucket. A Put on an
// alert's key natively replaces any prior notification for that alert,
// which is exactly the dedup semantic the Notifier needs; consumers (UI,
// widget feeds) watch the bucket for delivery. The authorization decision
// is persisted in the same bucket so the one-shot prompt survives restarts.
type NATSCenter struct {
	logger *zap.Logger
	kv     nats.KeyValue

	// grantOnRequest is the decision applied the first time authorization
	// is requested. In a headless deployment it comes from configuration.
	grantOnRequest bool
}

// NewNATSCenter creates (or binds to) the notification bucket.
func NewNATSCenter(logger *zap.Logger, js nats.JetStreamContext, bucket string, grantOnRequest bool) (*NATSCenter, error) {
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "ratewatch notification center",
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open notification bucket %q: %w", bucket, err)
	}

	return &NATSCenter{
		logger:         logger.Named("nats-center"),
		kv:             kv,
		grantOnRequest: grantOnRequest,
	}, nil
}

// RequestAuthorization implements Center. The first call records the
// configured decision; later calls return the recorded one.
func (c *NATSCenter) RequestAuthorization(ctx context.Context) (bool, error) {
	status, err := c.AuthorizationStatus(ctx)
	if err != nil {
		return false, err
	}
	if status != AuthorizationNotDetermined {
		return status.Deliverable(), nil
	}

	decided := AuthorizationDenied
	if c.grantOnRequest {
		decided = AuthorizationAuthorized
	}
	if _, err := c.kv.Put(authorizationKey, []byte(decided)); err != nil {
		return false, fmt.Errorf("failed to record authorization decision: %w", err)
	}

	c.logger.Info("Notification authorization decided",
		zap.String("status", string(decided)))
	return decided.Deliverable(), nil
}

// AuthorizationStatus implements Center.
func (c *NATSCenter) AuthorizationStatus(ctx context.Context) (AuthorizationStatus, error) {
	if err := ctx.Err(); err != nil {
		return AuthorizationUnknown, err
	}

	entry, err := c.kv.Get(authorizationKey)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return AuthorizationNotDetermined, nil
	}
	if err != nil {
		return AuthorizationUnknown, fmt.Errorf("failed to read authorization status: %w", err)
	}

	switch status := AuthorizationStatus(entry.Value()); status {
	case AuthorizationAuthorized, AuthorizationDenied, AuthorizationNotDetermined, AuthorizationProvisional:
		return status, nil
	default:
		return AuthorizationUnknown, nil
	}
}

// Schedule implements Center.
func (c *NATSCenter) Schedule(ctx context.Context, identifier string, content Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal notification content: %w", err)
	}

	if _, err := c.kv.Put(notificationKeyPrefix+identifier, data); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// RemovePending implements Center.
func (c *NATSCenter) RemovePending(ctx context.Context, identifier string) error {
	return c.remove(ctx, identifier)
}

// RemoveDelivered implements Center. Pending and delivered notifications
// share the bucket, so both removals purge the same key.
func (c *NATSCenter) RemoveDelivered(ctx context.Context, identifier string) error {
	return c.remove(ctx, identifier)
}

func (c *NATSCenter) remove(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.kv.Purge(notificationKeyPrefix + identifier)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove notification %s: %w", identifier, err)
	}
	return nil
}

// SetBadgeCount implements Center.
func (c *NATSCenter) SetBadgeCount(ctx context.Context, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := c.kv.Put(badgeKey, []byte(strconv.Itoa(count))); err != nil {
		return fmt.Errorf("failed to set badge count: %w", err)
	}
	return nil
}

// BadgeCount reads the current badge value; 0 when unset.
func (c *NATSCenter) BadgeCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	entry, err := c.kv.Get(badgeKey)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read badge count: %w", err)
	}

	count, err := strconv.Atoi(string(entry.Value()))
	if err != nil {
		return 0, fmt.Errorf("failed to parse badge count: %w", err)
	}
	return count, nil
}
