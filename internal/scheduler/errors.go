package scheduler

import "errors"

var (
	// ErrUnavailable is returned when background scheduling is disabled,
	// e.g. low-power mode or an unsupported environment. Not retried.
	ErrUnavailable = errors.New("background scheduling unavailable")

	// ErrTooManyPending is returned when a request would exceed the pending
	// limit for a job id. Existing pending requests are cancelled; the
	// request is not automatically resubmitted.
	ErrTooManyPending = errors.New("too many pending requests")

	// ErrNotPermitted is returned when the job identifier was never
	// registered. This is a configuration mistake, fatal to the feature.
	ErrNotPermitted = errors.New("job identifier not permitted")

	// ErrAlreadyRegistered is returned when a job id is registered twice
	ErrAlreadyRegistered = errors.New("job already registered")

	// ErrPermissionDenied is returned when the OS-level background
	// execution permission is anything but available
	ErrPermissionDenied = errors.New("background execution not permitted")
)
