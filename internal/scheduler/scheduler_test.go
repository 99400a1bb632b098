package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"report-scheduler/internal/jobhistory"
	"report-scheduler/internal/store/memstore"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegisterValidation(t *testing.T) {
	s := New(jobhistory.NewStoreClaimer(memstore.New()), zap.NewNop())
	noop := func(context.Context, RunInfo) error { return nil }

	require.NoError(t, s.Register(Job{Name: "a", Interval: time.Minute, Run: noop}))
	assert.ErrorIs(t, s.Register(Job{Name: "a", Interval: time.Minute, Run: noop}), ErrDuplicateJob)
	assert.Error(t, s.Register(Job{Name: "b", Run: noop}))
	assert.Error(t, s.Register(Job{Name: "c", Interval: time.Minute}))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
}

func TestTickRunsOncePerWindow(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	s := New(jobhistory.NewStoreClaimer(memstore.New()), zaptest.NewLogger(t), WithClock(clock.Now))

	var infos []RunInfo
	require.NoError(t, s.Register(Job{Name: "outbox", Interval: 10 * time.Minute, Run: func(_ context.Context, info RunInfo) error {
		infos = append(infos, info)
		return nil
	}}))

	ctx := context.Background()
	require.NoError(t, s.Tick(ctx, "outbox"))
	clock.Advance(5 * time.Minute)
	require.NoError(t, s.Tick(ctx, "outbox"))
	// Nine minutes later is within the drift tolerance, so this tick runs.
	clock.Advance(4 * time.Minute)
	require.NoError(t, s.Tick(ctx, "outbox"))

	require.Len(t, infos, 2)
	assert.Nil(t, infos[0].LastRun)
	require.NotNil(t, infos[1].LastRun)
	assert.Equal(t, infos[0].Now, *infos[1].LastRun)
}

func TestConcurrentSchedulersRunJobOnce(t *testing.T) {
	claimer := jobhistory.NewStoreClaimer(memstore.New())
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	var runs atomic.Int32

	var schedulers []*Scheduler
	for i := 0; i < 5; i++ {
		s := New(claimer, zap.NewNop(), WithClock(func() time.Time { return now }))
		require.NoError(t, s.Register(Job{Name: "deactivation", Interval: time.Hour, Run: func(context.Context, RunInfo) error {
			runs.Add(1)
			return nil
		}}))
		schedulers = append(schedulers, s)
	}

	var wg sync.WaitGroup
	for _, s := range schedulers {
		wg.Add(1)
		go func(s *Scheduler) {
			defer wg.Done()
			_ = s.Tick(context.Background(), "deactivation")
		}(s)
	}
	wg.Wait()
	assert.EqualValues(t, 1, runs.Load())
}

func TestFailedRunKeepsClaim(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	s := New(jobhistory.NewStoreClaimer(memstore.New()), zap.NewNop(), WithClock(clock.Now))
	var runs int
	require.NoError(t, s.Register(Job{Name: "mart", Interval: time.Hour, Run: func(context.Context, RunInfo) error {
		runs++
		return errors.New("mailbox unavailable")
	}}))

	ctx := context.Background()
	assert.Error(t, s.Tick(ctx, "mart"))
	clock.Advance(time.Minute)
	assert.NoError(t, s.Tick(ctx, "mart"))
	assert.Equal(t, 1, runs)
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(jobhistory.NewStoreClaimer(memstore.New()), zap.NewNop())
	require.NoError(t, s.Register(Job{Name: "boom", Interval: time.Hour, Run: func(context.Context, RunInfo) error {
		panic("nil map")
	}}))
	err := s.RunNow(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestRunNowBypassesWindow(t *testing.T) {
	s := New(jobhistory.NewStoreClaimer(memstore.New()), zap.NewNop())
	var runs []RunInfo
	require.NoError(t, s.Register(Job{Name: "future-engagement", Interval: 24 * time.Hour, Run: func(_ context.Context, info RunInfo) error {
		runs = append(runs, info)
		return nil
	}}))

	ctx := context.Background()
	require.NoError(t, s.Tick(ctx, "future-engagement"))
	require.NoError(t, s.RunNow(ctx, "future-engagement"))
	require.Len(t, runs, 2)
	assert.True(t, runs[1].Manual)
	assert.NotNil(t, runs[1].LastRun)

	assert.ErrorIs(t, s.RunNow(ctx, "missing"), ErrUnknownJob)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(jobhistory.NewStoreClaimer(memstore.New()), zap.NewNop())
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Register(Job{Name: "outbox", Interval: time.Hour, Run: func(context.Context, RunInfo) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not run after initial delay")
	}
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
}

func TestRunReportsDeadline(t *testing.T) {
	s := New(jobhistory.NewStoreClaimer(memstore.New()), zap.NewNop())
	require.NoError(t, s.Register(Job{Name: "slow", Interval: time.Hour, InitialDelay: time.Hour, Run: func(context.Context, RunInfo) error {
		return nil
	}}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Run(ctx), context.DeadlineExceeded)
}
