package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"report-scheduler/internal/jobhistory"
	"report-scheduler/internal/telemetry"
)

var (
	ErrUnknownJob   = errors.New("unknown job")
	ErrDuplicateJob = errors.New("job already registered")
	ErrJobBusy      = errors.New("job is already running")
)

// RunInfo is passed to a job body.
type RunInfo struct {
	Now time.Time
	// LastRun is the previous successful claim, nil on the very first run.
	LastRun *time.Time
	Manual  bool
}

// Job is a named unit of periodic work.
type Job struct {
	Name         string
	Interval     time.Duration
	InitialDelay time.Duration
	Run          func(ctx context.Context, info RunInfo) error
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
}

type entry struct {
	job     Job
	running sync.Mutex
}

// Scheduler owns the job table and runs each job on its own ticker, guarded by a claim
// in the job history so that several processes never run the same job in one window.
type Scheduler struct {
	claimer jobhistory.Claimer
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	jobs  map[string]*entry
	order []string
}

type Option func(*Scheduler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(claimer jobhistory.Claimer, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		claimer: claimer,
		logger:  logger,
		now:     time.Now,
		jobs:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. Names must be unique and intervals positive.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("register job: name and run function are required")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("register job %s: interval must be positive", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("register job %s: %w", job.Name, ErrDuplicateJob)
	}
	s.jobs[job.Name] = &entry{job: job}
	s.order = append(s.order, job.Name)
	return nil
}

// Jobs lists the registered jobs in registration order.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobInfo, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, JobInfo{Name: name, Interval: s.jobs[name].job.Interval})
	}
	return out
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownJob)
	}
	return e, nil
}

// Run starts one loop per job and blocks until ctx is done. It returns the context's
// error, so callers can tell a shutdown from a deadline.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, name := range s.order {
		entries = append(entries, s.jobs[name])
	}
	s.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			return s.loop(ctx, e)
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e *entry) error {
	delay := time.NewTimer(e.job.InitialDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-delay.C:
	}

	ticker := time.NewTicker(e.job.Interval)
	defer ticker.Stop()
	for {
		if err := s.tick(ctx, e); err != nil && !errors.Is(err, ErrJobBusy) {
			s.logger.Warn("job tick failed", zap.String("job", e.job.Name), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one timed attempt of the named job: claim the window, then run.
func (s *Scheduler) Tick(ctx context.Context, name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	return s.tick(ctx, e)
}

func (s *Scheduler) tick(ctx context.Context, e *entry) error {
	if !e.running.TryLock() {
		return ErrJobBusy
	}
	defer e.running.Unlock()

	now := s.now()
	claim, err := s.claimer.Claim(ctx, e.job.Name, now, claimWindow(e.job.Interval))
	if err != nil {
		telemetry.JobRuns.WithLabelValues(e.job.Name, "claim_error").Inc()
		return err
	}
	if !claim.Granted {
		telemetry.JobClaimsSkipped.WithLabelValues(e.job.Name).Inc()
		s.logger.Debug("job claim not granted", zap.String("job", e.job.Name))
		return nil
	}
	return s.execute(ctx, e, RunInfo{Now: now, LastRun: claim.PreviousRun})
}

// RunNow runs the named job immediately, bypassing the window. It waits for a timed
// run of the same job in this process to finish first.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	e.running.Lock()
	defer e.running.Unlock()

	now := s.now()
	claim, err := s.claimer.ForceClaim(ctx, name, now)
	if err != nil {
		return err
	}
	return s.execute(ctx, e, RunInfo{Now: now, LastRun: claim.PreviousRun, Manual: true})
}

func (s *Scheduler) execute(ctx context.Context, e *entry, info RunInfo) (err error) {
	logger := s.logger.With(zap.String("job", e.job.Name), zap.Bool("manual", info.Manual))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", e.job.Name, r)
			logger.Error("job panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			telemetry.JobRuns.WithLabelValues(e.job.Name, "panic").Inc()
		}
		telemetry.JobDuration.WithLabelValues(e.job.Name).Observe(time.Since(start).Seconds())
	}()

	logger.Debug("job started")
	if err = e.job.Run(ctx, info); err != nil {
		telemetry.JobRuns.WithLabelValues(e.job.Name, "error").Inc()
		logger.Error("job failed", zap.Error(err))
		return fmt.Errorf("job %s: %w", e.job.Name, err)
	}
	telemetry.JobRuns.WithLabelValues(e.job.Name, "ok").Inc()
	logger.Debug("job finished", zap.Duration("took", time.Since(start)))
	return nil
}

// claimWindow leaves a tenth of the interval for ticker drift between processes.
func claimWindow(interval time.Duration) time.Duration {
	return interval - interval/10
}
