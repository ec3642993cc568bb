package testutil

import (
	"context"
	"sync"

	"github.com/t77yq/ratewatch/internal/notify"
)

// FakeCenter is an in-memory notify.Center for tests. Like a real
// notification center, scheduling under an existing identifier replaces the
// previous notification.
type FakeCenter struct {
	mu sync.Mutex

	// Status is the authorization state returned to callers.
	Status notify.AuthorizationStatus

	// Grant is the decision applied when authorization is requested while
	// Status is not determined.
	Grant bool

	// ScheduleErr, when set, fails every Schedule call.
	ScheduleErr error

	notifications map[string]notify.Content
	badge         int
	requests      int
	scheduleCalls int
}

// NewFakeCenter creates a fake center in the authorized state.
func NewFakeCenter() *FakeCenter {
	return &FakeCenter{
		Status:        notify.AuthorizationAuthorized,
		Grant:         true,
		notifications: make(map[string]notify.Content),
	}
}

// RequestAuthorization implements notify.Center.
func (c *FakeCenter) RequestAuthorization(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests++
	if c.Status == notify.AuthorizationNotDetermined {
		if c.Grant {
			c.Status = notify.AuthorizationAuthorized
		} else {
			c.Status = notify.AuthorizationDenied
		}
	}
	return c.Status.Deliverable(), nil
}

// AuthorizationStatus implements notify.Center.
func (c *FakeCenter) AuthorizationStatus(ctx context.Context) (notify.AuthorizationStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Status, nil
}

// Schedule implements notify.Center.
func (c *FakeCenter) Schedule(ctx context.Context, identifier string, content notify.Content) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scheduleCalls++
	if c.ScheduleErr != nil {
		return c.ScheduleErr
	}
	c.notifications[identifier] = content
	return nil
}

// RemovePending implements notify.Center.
func (c *FakeCenter) RemovePending(ctx context.Context, identifier string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.notifications, identifier)
	return nil
}

// RemoveDelivered implements notify.Center.
func (c *FakeCenter) RemoveDelivered(ctx context.Context, identifier string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.notifications, identifier)
	return nil
}

// SetBadgeCount implements notify.Center.
func (c *FakeCenter) SetBadgeCount(ctx context.Context, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.badge = count
	return nil
}

// Visible returns the notification stored for an identifier.
func (c *FakeCenter) Visible(identifier string) (notify.Content, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.notifications[identifier]
	return content, ok
}

// VisibleCount returns the number of distinct visible notifications.
func (c *FakeCenter) VisibleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notifications)
}

// Badge returns the current badge value.
func (c *FakeCenter) Badge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.badge
}

// AuthorizationRequests returns how many times authorization was requested.
func (c *FakeCenter) AuthorizationRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// ScheduleCalls returns how many times Schedule was invoked.
func (c *FakeCenter) ScheduleCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduleCalls
}
