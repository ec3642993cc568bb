package scheduler

import (
	"context"
	"time"
)

// Permission is the OS-level background-execution permission state.
type Permission string

const (
	PermissionAvailable  Permission = "available"
	PermissionDenied     Permission = "denied"
	PermissionRestricted Permission = "restricted"
	PermissionUnknown    Permission = "unknown"
)

// JobHandler is invoked when a scheduled job fires. The context carries the
// execution deadline; the handler must stop promptly once it is cancelled.
type JobHandler func(ctx context.Context)

// Request asks the OS scheduler to run a registered job no earlier than
// Delay from now.
type Request struct {
	JobID string
	Delay time.Duration
}

// OSScheduler is the scheduling collaborator. Implementations map job
// requests onto whatever timer facility the host provides.
type OSScheduler interface {
	// Register binds a job identifier to a handler. At most one handler
	// per id.
	Register(jobID string, handler JobHandler) error

	// Submit requests a single future run of a registered job. Fails with
	// ErrUnavailable, ErrTooManyPending, ErrNotPermitted, or an unknown
	// error.
	Submit(req Request) error

	// Cancel drops any pending request for the job id. Idempotent.
	Cancel(jobID string) error

	// Permission reports the background-execution permission state.
	Permission() Permission
}
