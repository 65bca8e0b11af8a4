package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore/pkg/logger"
	"github.com/angelmondragon/marketcore/pkg/metrics"
)

type fakeLock struct {
	held     bool
	err      error
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name  string
	err   error
	panic bool
	runs  int
	ctx   context.Context
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	t.ctx = ctx
	if t.panic {
		panic("nil map write")
	}
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "ok"}
	bad := &testJob{name: "bad", err: errors.New("boom")}
	lock := &fakeLock{}
	reg := prometheus.NewRegistry()

	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(ok, bad),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	ran, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, bad.runs)
	require.Equal(t, 1, lock.releases)
	require.False(t, lock.held)

	require.Equal(t, 1.0, runCount(t, reg, "bad", outcomeFailure))
	require.Equal(t, 1.0, runCount(t, reg, "ok", outcomeSuccess))
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "ok"}
	lock := &fakeLock{held: true}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: lock})
	require.NoError(t, err)

	ran, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
	require.Zero(t, job.runs)
	require.Zero(t, lock.releases)
}

func TestServiceSurfacesLockErrors(t *testing.T) {
	job := &testJob{name: "ok"}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: &fakeLock{err: errors.New("redis down")}})
	require.NoError(t, err)

	_, err = svc.RunOnce(context.Background())
	require.ErrorContains(t, err, "redis down")
	require.Zero(t, job.runs)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "ok"}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: &fakeLock{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, svc.Run(ctx), context.Canceled)
	require.Equal(t, 1, job.runs)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop()})
	require.Error(t, err)

	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}})
	require.NoError(t, err)
	require.Equal(t, defaultInterval, svc.interval)
	require.Equal(t, defaultJobTimeout, svc.jobTimeout)
}

func TestServiceRecoversPanickingJob(t *testing.T) {
	boom := &testJob{name: "boom", panic: true}
	after := &testJob{name: "after"}
	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(boom, after),
		Lock:     &fakeLock{},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	ran, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 1, after.runs)
	require.Equal(t, 1.0, runCount(t, reg, "boom", outcomeFailure))
}

func TestServiceBoundsJobsWithTimeout(t *testing.T) {
	job := &testJob{name: "slow"}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: &fakeLock{}, JobTimeout: time.Minute})
	require.NoError(t, err)

	_, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	deadline, ok := job.ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestServiceRunJob(t *testing.T) {
	ok := &testJob{name: "ok"}
	bad := &testJob{name: "bad", err: errors.New("boom")}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(ok, bad), Lock: lock})
	require.NoError(t, err)

	require.NoError(t, svc.RunJob(context.Background(), "ok"))
	require.ErrorContains(t, svc.RunJob(context.Background(), "bad"), "boom")
	require.ErrorContains(t, svc.RunJob(context.Background(), "nope"), "unknown cron job")
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, bad.runs)
	require.Equal(t, 2, lock.releases)

	lock.held = true
	require.ErrorContains(t, svc.RunJob(context.Background(), "ok"), "held by another instance")
}

func runCount(t *testing.T, reg *prometheus.Registry, job, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "marketcore_job_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["job"] == job && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
