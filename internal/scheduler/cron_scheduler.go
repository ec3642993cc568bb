package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronScheduler implements OSScheduler on a cron runner. Each submitted
// request becomes a one-shot entry that fires once and drops out of the
// schedule; re-arming is the caller's job.
type CronScheduler struct {
	logger *zap.Logger
	cron   *cron.Cron
	budget time.Duration

	mu         sync.Mutex
	permission Permission
	handlers   map[string]JobHandler
	pending    map[string]cron.EntryID
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewCronScheduler creates a cron-backed scheduler. budget bounds each job
// invocation's execution time.
func NewCronScheduler(logger *zap.Logger, budget time.Duration) *CronScheduler {
	cl := &cronLogger{logger: logger.Named("cron")}
	if budget <= 0 {
		budget = DefaultExecutionBudget
	}

	return &CronScheduler{
		logger:     logger.Named("cron-scheduler"),
		cron:       cron.New(cron.WithChain(cron.Recover(cl))),
		budget:     budget,
		permission: PermissionAvailable,
		handlers:   make(map[string]JobHandler),
		pending:    make(map[string]cron.EntryID),
	}
}

// Start starts the underlying cron runner.
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop stops the runner and waits for in-flight jobs to finish.
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// SetPermission overrides the reported background-execution permission.
// Used when the user opts out of background refresh.
func (s *CronScheduler) SetPermission(p Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permission = p
}

// Permission implements OSScheduler.
func (s *CronScheduler) Permission() Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

// Register implements OSScheduler.
func (s *CronScheduler) Register(jobID string, handler JobHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[jobID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, jobID)
	}
	s.handlers[jobID] = handler

	s.logger.Info("Registered job handler", zap.String("job_id", jobID))
	return nil
}

// Submit implements OSScheduler. The request's delay is clamped to the
// minimum refresh interval; at most one request may be pending per job id.
func (s *CronScheduler) Submit(req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.permission != PermissionAvailable {
		return fmt.Errorf("%w: permission %s", ErrUnavailable, s.permission)
	}

	handler, ok := s.handlers[req.JobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotPermitted, req.JobID)
	}

	if _, exists := s.pending[req.JobID]; exists {
		return fmt.Errorf("%w: %s", ErrTooManyPending, req.JobID)
	}

	delay := req.Delay
	if delay < MinimumRefreshInterval {
		delay = MinimumRefreshInterval
	}

	at := time.Now().Add(delay)
	entryID := s.cron.Schedule(oneShotSchedule{at: at}, cron.FuncJob(func() {
		s.fire(req.JobID, handler)
	}))
	s.pending[req.JobID] = entryID

	s.logger.Info("Scheduled one-shot job",
		zap.String("job_id", req.JobID),
		zap.Time("no_earlier_than", at))
	return nil
}

// Cancel implements OSScheduler. Cancelling a job with nothing pending is a
// no-op.
func (s *CronScheduler) Cancel(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.pending[jobID]
	if !ok {
		return nil
	}

	s.cron.Remove(entryID)
	delete(s.pending, jobID)

	s.logger.Info("Cancelled pending job", zap.String("job_id", jobID))
	return nil
}

// fire runs a due job under the execution budget.
func (s *CronScheduler) fire(jobID string, handler JobHandler) {
	s.mu.Lock()
	delete(s.pending, jobID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.budget)
	defer cancel()

	handler(ctx)
}

// oneShotSchedule fires exactly once. Returning the zero time from Next
// drops the entry from the cron runner after it fires.
type oneShotSchedule struct {
	at time.Time
}

func (o oneShotSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}
