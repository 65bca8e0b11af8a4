package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCronJobMetricsRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.IncRun("stale-orders", "success")
	m.IncRun("stale-orders", "failure")
	m.IncRun("stale-orders", "success")
	m.ObserveDuration("stale-orders", 40*time.Millisecond)
	m.AddExpired(3)
	m.AddExpired(0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "marketcore_job_runs_total", "outcome", "success"); err != nil {
		t.Fatalf("fetch runs: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 successful runs, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "marketcore_job_duration_seconds", "job", "stale-orders"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
	expired := findMetricFamily(mfs, "marketcore_orders_expired_total")
	if expired == nil || len(expired.GetMetric()) != 1 {
		t.Fatal("expired counter not exported")
	}
	if got := expired.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected 3 expired orders, got %f", got)
	}
}

func TestNilCronJobMetricsIsSafe(t *testing.T) {
	var m *CronJobMetrics
	m.IncRun("job", "success")
	m.ObserveDuration("job", time.Second)
	m.AddExpired(1)
}
