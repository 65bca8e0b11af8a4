package cron

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/angelmondragon/marketcore/pkg/logger"
	"github.com/angelmondragon/marketcore/pkg/metrics"
)

const (
	defaultInterval   = 15 * time.Minute
	defaultJobTimeout = 5 * time.Minute

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// ServiceParams configure the cron service. Zero Interval and JobTimeout
// take the package defaults.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs the registered jobs on a fixed cadence, one instance at a
// time across the fleet.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run executes a cycle immediately and then once per interval until ctx is
// canceled. Cycle errors are logged, never returned.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.withLock(ctx, s.registry.Jobs()); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes every job once and reports whether this instance held
// the lock. Job failures are recorded in logs and metrics only.
func (s *Service) RunOnce(ctx context.Context) (bool, error) {
	return s.withLock(ctx, s.registry.Jobs())
}

// RunJob executes the named job once under the lock and returns its error.
func (s *Service) RunJob(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown cron job %q (registered: %v)", name, s.registry.Names())
	}
	var jobErr error
	ran, err := s.locked(ctx, func() { jobErr = s.runJob(ctx, job) })
	if err != nil {
		return err
	}
	if !ran {
		return fmt.Errorf("cron lock held by another instance")
	}
	return jobErr
}

func (s *Service) withLock(ctx context.Context, jobs []Job) (bool, error) {
	return s.locked(ctx, func() {
		for _, job := range jobs {
			_ = s.runJob(ctx, job)
		}
	})
}

func (s *Service) locked(ctx context.Context, fn func()) (bool, error) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	if !acquired {
		s.logg.Info(ctx, "another cron instance holds the lock; skipping cycle")
		return false, nil
	}
	defer func() {
		// release even when ctx is already canceled
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()
	fn()
	return true, nil
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	jobCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
			jobCtx = s.logg.WithField(jobCtx, "panic_stack", string(debug.Stack()))
		}
		duration := time.Since(start)
		s.metrics.ObserveDuration(name, duration)
		logCtx := s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
		if err != nil {
			s.logg.Error(logCtx, "job failed", err)
			s.metrics.IncRun(name, outcomeFailure)
			return
		}
		s.logg.Info(logCtx, "job completed")
		s.metrics.IncRun(name, outcomeSuccess)
	}()

	return job.Run(jobCtx)
}
