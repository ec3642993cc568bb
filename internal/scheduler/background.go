package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultJobID identifies the recurring refresh job.
	DefaultJobID = "ratewatch-refresh"

	// MinimumRefreshInterval is the floor enforced on every scheduling
	// request. The host scheduler rejects anything shorter.
	MinimumRefreshInterval = 15 * time.Minute

	// DefaultExecutionBudget bounds one background invocation when the
	// host provides no deadline of its own.
	DefaultExecutionBudget = 25 * time.Second
)

// RunFunc is the unit of work a background invocation executes: one
// checker pass plus notification delivery.
type RunFunc func(ctx context.Context) error

// CompletionStatus is reported back to the host exactly once per
// invocation.
type CompletionStatus string

const (
	CompletionSuccess CompletionStatus = "success"
	CompletionExpired CompletionStatus = "expired"
	CompletionError   CompletionStatus = "error"
)

// Config holds the background scheduler settings.
type Config struct {
	JobID    string
	Interval time.Duration
	Budget   time.Duration

	// OnComplete, when set, observes each invocation's completion report.
	OnComplete func(status CompletionStatus, err error)
}

// Background owns the recurring refresh job: registration, re-arming,
// permission and error handling, and the deadline-bounded invocation of the
// alert pipeline.
type Background struct {
	logger *zap.Logger
	os     OSScheduler
	run    RunFunc
	cfg    Config

	mu         sync.Mutex
	registered bool
}

// NewBackground creates a background scheduler. Zero config fields fall
// back to the package defaults.
func NewBackground(logger *zap.Logger, os OSScheduler, run RunFunc, cfg Config) *Background {
	if cfg.JobID == "" {
		cfg.JobID = DefaultJobID
	}
	if cfg.Interval < MinimumRefreshInterval {
		cfg.Interval = MinimumRefreshInterval
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultExecutionBudget
	}
	return &Background{
		logger: logger.Named("background"),
		os:     os,
		run:    run,
		cfg:    cfg,
	}
}

// RegisterJob binds the job id to the invocation handler. Called once at
// process start; a second call is rejected rather than stacking handlers.
func (b *Background) RegisterJob() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registered {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, b.cfg.JobID)
	}
	if err := b.os.Register(b.cfg.JobID, b.HandleInvocation); err != nil {
		return fmt.Errorf("failed to register job %s: %w", b.cfg.JobID, err)
	}
	b.registered = true

	b.logger.Info("Background job registered",
		zap.String("job_id", b.cfg.JobID),
		zap.Duration("interval", b.cfg.Interval))
	return nil
}

// ScheduleNext requests the next run, no earlier than the configured
// interval from now. Any previously pending request for the job id is
// cancelled first so requests never stack. Returns an error instead of
// panicking on every failure mode.
func (b *Background) ScheduleNext() error {
	perm := b.os.Permission()
	if perm != PermissionAvailable {
		b.logger.Warn("Background execution not available, skipping schedule",
			zap.String("job_id", b.cfg.JobID),
			zap.String("permission", string(perm)))
		return fmt.Errorf("%w: permission %s", ErrPermissionDenied, perm)
	}

	if err := b.os.Cancel(b.cfg.JobID); err != nil {
		b.logger.Warn("Failed to cancel pending request before rescheduling",
			zap.String("job_id", b.cfg.JobID),
			zap.Error(err))
	}

	err := b.os.Submit(Request{JobID: b.cfg.JobID, Delay: b.cfg.Interval})
	if err == nil {
		b.logger.Info("Next background refresh scheduled",
			zap.String("job_id", b.cfg.JobID),
			zap.Duration("no_earlier_than", b.cfg.Interval))
		return nil
	}

	switch {
	case errors.Is(err, ErrUnavailable):
		// Feature disabled or low-power mode. Do not retry now; the next
		// foreground launch will try again.
		b.logger.Warn("Background scheduling unavailable",
			zap.String("job_id", b.cfg.JobID),
			zap.Error(err))
	case errors.Is(err, ErrTooManyPending):
		// Drop whatever is stacked; do not resubmit immediately.
		if cancelErr := b.os.Cancel(b.cfg.JobID); cancelErr != nil {
			b.logger.Warn("Failed to cancel stacked requests",
				zap.String("job_id", b.cfg.JobID),
				zap.Error(cancelErr))
		}
		b.logger.Warn("Too many pending requests, cancelled existing ones",
			zap.String("job_id", b.cfg.JobID),
			zap.Error(err))
	case errors.Is(err, ErrNotPermitted):
		// The job id was never registered with the host. Misconfiguration,
		// fatal to the feature.
		b.logger.Error("Job identifier not permitted, background refresh disabled",
			zap.String("job_id", b.cfg.JobID),
			zap.Error(err))
	default:
		b.logger.Error("Unknown scheduling failure",
			zap.String("job_id", b.cfg.JobID),
			zap.Error(err))
	}

	return fmt.Errorf("failed to schedule job %s: %w", b.cfg.JobID, err)
}

// CancelAll drops any pending request for the job id. Used on explicit
// user opt-out.
func (b *Background) CancelAll() {
	if err := b.os.Cancel(b.cfg.JobID); err != nil {
		b.logger.Warn("Failed to cancel pending requests",
			zap.String("job_id", b.cfg.JobID),
			zap.Error(err))
		return
	}
	b.logger.Info("Pending background requests cancelled",
		zap.String("job_id", b.cfg.JobID))
}

// HandleInvocation runs one background refresh. It re-arms the next run
// before doing any work, executes the pipeline as a cancellable unit bounded
// by the host deadline (or the configured budget), and reports completion
// exactly once whether the pipeline succeeds, errors, or expires.
func (b *Background) HandleInvocation(ctx context.Context) {
	b.logger.Info("Background refresh invoked", zap.String("job_id", b.cfg.JobID))

	// Re-arm first so a slow pass cannot starve future scheduling.
	if err := b.ScheduleNext(); err != nil {
		b.logger.Warn("Failed to re-arm background refresh", zap.Error(err))
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithCancel(ctx)
	} else {
		runCtx, cancel = context.WithTimeout(ctx, b.cfg.Budget)
	}
	defer cancel()

	var once sync.Once
	report := func(status CompletionStatus, err error) {
		once.Do(func() {
			if err != nil {
				b.logger.Warn("Background refresh completed",
					zap.String("job_id", b.cfg.JobID),
					zap.String("status", string(status)),
					zap.Error(err))
			} else {
				b.logger.Info("Background refresh completed",
					zap.String("job_id", b.cfg.JobID),
					zap.String("status", string(status)))
			}
			if b.cfg.OnComplete != nil {
				b.cfg.OnComplete(status, err)
			}
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- b.run(runCtx)
	}()

	select {
	case err := <-done:
		switch {
		case err == nil:
			report(CompletionSuccess, nil)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			report(CompletionExpired, err)
		default:
			report(CompletionError, err)
		}
	case <-runCtx.Done():
		// Expiration: cancel the unit of work and wait for it to wind
		// down. The pipeline checks for cancellation between provider
		// fetches, so this returns promptly.
		cancel()
		report(CompletionExpired, runCtx.Err())
		<-done
	}
}
