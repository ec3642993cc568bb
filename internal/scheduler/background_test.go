package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeOS is a scriptable OSScheduler for tests.
type fakeOS struct {
	mu         sync.Mutex
	permission Permission
	submitErr  error
	handlers   map[string]JobHandler
	submits    []Request
	cancels    []string
}

func newFakeOS() *fakeOS {
	return &fakeOS{
		permission: PermissionAvailable,
		handlers:   make(map[string]JobHandler),
	}
}

func (f *fakeOS) Register(jobID string, handler JobHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[jobID]; ok {
		return ErrAlreadyRegistered
	}
	f.handlers[jobID] = handler
	return nil
}

func (f *fakeOS) Submit(req Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	return f.submitErr
}

func (f *fakeOS) Cancel(jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, jobID)
	return nil
}

func (f *fakeOS) Permission() Permission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission
}

func (f *fakeOS) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeOS) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancels)
}

func noopRun(ctx context.Context) error { return nil }

func TestBackground_RegisterJobIdempotent(t *testing.T) {
	os := newFakeOS()
	b := NewBackground(zap.NewNop(), os, noopRun, Config{})

	require.NoError(t, b.RegisterJob())
	require.ErrorIs(t, b.RegisterJob(), ErrAlreadyRegistered)

	// Exactly one handler bound.
	require.Len(t, os.handlers, 1)
}

func TestBackground_ScheduleNextEnforcesMinimumInterval(t *testing.T) {
	os := newFakeOS()
	b := NewBackground(zap.NewNop(), os, noopRun, Config{Interval: time.Minute})
	require.NoError(t, b.RegisterJob())

	require.NoError(t, b.ScheduleNext())
	require.Len(t, os.submits, 1)
	require.Equal(t, MinimumRefreshInterval, os.submits[0].Delay)
	require.Equal(t, DefaultJobID, os.submits[0].JobID)
}

func TestBackground_ScheduleNextCancelsPendingFirst(t *testing.T) {
	os := newFakeOS()
	b := NewBackground(zap.NewNop(), os, noopRun, Config{})
	require.NoError(t, b.RegisterJob())

	require.NoError(t, b.ScheduleNext())
	require.Equal(t, []string{DefaultJobID}, os.cancels)
}

func TestBackground_ScheduleNextPermissionGate(t *testing.T) {
	for _, perm := range []Permission{PermissionDenied, PermissionRestricted, PermissionUnknown} {
		t.Run(string(perm), func(t *testing.T) {
			os := newFakeOS()
			os.permission = perm
			b := NewBackground(zap.NewNop(), os, noopRun, Config{})
			require.NoError(t, b.RegisterJob())

			err := b.ScheduleNext()
			require.ErrorIs(t, err, ErrPermissionDenied)
			// No request was issued at all.
			require.Zero(t, os.submitCount())
		})
	}
}

func TestBackground_ScheduleNextErrorTaxonomy(t *testing.T) {
	t.Run("unavailable is not retried", func(t *testing.T) {
		os := newFakeOS()
		os.submitErr = ErrUnavailable
		b := NewBackground(zap.NewNop(), os, noopRun, Config{})
		require.NoError(t, b.RegisterJob())

		err := b.ScheduleNext()
		require.ErrorIs(t, err, ErrUnavailable)
		require.Equal(t, 1, os.submitCount())
	})

	t.Run("too many pending cancels without resubmitting", func(t *testing.T) {
		os := newFakeOS()
		os.submitErr = ErrTooManyPending
		b := NewBackground(zap.NewNop(), os, noopRun, Config{})
		require.NoError(t, b.RegisterJob())

		err := b.ScheduleNext()
		require.ErrorIs(t, err, ErrTooManyPending)
		// One cancel before submit, one as the recovery action.
		require.Equal(t, 2, os.cancelCount())
		require.Equal(t, 1, os.submitCount())

		// The caller may schedule again later.
		os.submitErr = nil
		require.NoError(t, b.ScheduleNext())
	})

	t.Run("not permitted surfaces", func(t *testing.T) {
		os := newFakeOS()
		os.submitErr = ErrNotPermitted
		b := NewBackground(zap.NewNop(), os, noopRun, Config{})
		require.NoError(t, b.RegisterJob())

		require.ErrorIs(t, b.ScheduleNext(), ErrNotPermitted)
	})

	t.Run("unknown error surfaces", func(t *testing.T) {
		os := newFakeOS()
		os.submitErr = errors.New("weird kernel mood")
		b := NewBackground(zap.NewNop(), os, noopRun, Config{})
		require.NoError(t, b.RegisterJob())

		require.Error(t, b.ScheduleNext())
	})
}

func TestBackground_CancelAll(t *testing.T) {
	os := newFakeOS()
	b := NewBackground(zap.NewNop(), os, noopRun, Config{})
	require.NoError(t, b.RegisterJob())

	b.CancelAll()
	require.Equal(t, []string{DefaultJobID}, os.cancels)
}

func TestBackground_HandleInvocationRearmsBeforeRunning(t *testing.T) {
	os := newFakeOS()

	var submitsWhenRunStarted int
	run := func(ctx context.Context) error {
		submitsWhenRunStarted = os.submitCount()
		return nil
	}

	b := NewBackground(zap.NewNop(), os, run, Config{})
	require.NoError(t, b.RegisterJob())

	b.HandleInvocation(context.Background())
	require.Equal(t, 1, submitsWhenRunStarted)
}

func TestBackground_HandleInvocationReportsCompletionOnce(t *testing.T) {
	cases := []struct {
		name   string
		run    RunFunc
		status CompletionStatus
	}{
		{"success", func(ctx context.Context) error { return nil }, CompletionSuccess},
		{"error", func(ctx context.Context) error { return errors.New("provider meltdown") }, CompletionError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			os := newFakeOS()

			var mu sync.Mutex
			var reports []CompletionStatus
			cfg := Config{
				OnComplete: func(status CompletionStatus, err error) {
					mu.Lock()
					defer mu.Unlock()
					reports = append(reports, status)
				},
			}

			b := NewBackground(zap.NewNop(), os, tc.run, cfg)
			require.NoError(t, b.RegisterJob())

			b.HandleInvocation(context.Background())

			mu.Lock()
			defer mu.Unlock()
			require.Equal(t, []CompletionStatus{tc.status}, reports)
		})
	}
}

func TestBackground_HandleInvocationExpiration(t *testing.T) {
	os := newFakeOS()

	// The pipeline honors cancellation the way the checker does: it stops
	// when the deadline fires and returns the context error.
	run := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	var mu sync.Mutex
	var reports []CompletionStatus
	cfg := Config{
		OnComplete: func(status CompletionStatus, err error) {
			mu.Lock()
			defer mu.Unlock()
			reports = append(reports, status)
		},
	}

	b := NewBackground(zap.NewNop(), os, run, cfg)
	require.NoError(t, b.RegisterJob())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	b.HandleInvocation(ctx)

	// Completed promptly after expiry, reported exactly once as expired.
	require.Less(t, time.Since(start), 5*time.Second)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []CompletionStatus{CompletionExpired}, reports)
}

func TestBackground_HandleInvocationAppliesBudgetWithoutDeadline(t *testing.T) {
	os := newFakeOS()

	var hadDeadline bool
	run := func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}

	b := NewBackground(zap.NewNop(), os, run, Config{Budget: time.Second})
	require.NoError(t, b.RegisterJob())

	b.HandleInvocation(context.Background())
	require.True(t, hadDeadline)
}
