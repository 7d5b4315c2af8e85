package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)

	m.ObserveRun("cart-cleanup", 250*time.Millisecond, nil)
	m.ObserveRun("cart-cleanup", time.Second, errors.New("db down"))
	m.ObserveRun("outbox-retention", 2*time.Second, fmt.Errorf("delete: %w", context.DeadlineExceeded))
	m.IncSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	cases := []struct {
		job, result string
		want        float64
	}{
		{"cart-cleanup", CronResultSuccess, 1},
		{"cart-cleanup", CronResultFailure, 1},
		{"outbox-retention", CronResultTimeout, 1},
	}
	for _, tc := range cases {
		sample := findSample(mfs, "cron_job_runs_total", map[string]string{"job": tc.job, "result": tc.result})
		if sample == nil || sample.GetCounter().GetValue() != tc.want {
			t.Fatalf("runs{job=%s,result=%s}: got %v want %v", tc.job, tc.result, sample, tc.want)
		}
	}

	hist := findSample(mfs, "cron_job_duration_seconds", map[string]string{"job": "cart-cleanup"})
	if hist == nil || hist.GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected two cart-cleanup duration samples, got %v", hist)
	}

	if findSample(mfs, "cron_job_last_success_timestamp_seconds", map[string]string{"job": "cart-cleanup"}).GetGauge().GetValue() <= 0 {
		t.Fatal("last success gauge not set for cart-cleanup")
	}
	if findSample(mfs, "cron_job_last_success_timestamp_seconds", map[string]string{"job": "outbox-retention"}) != nil {
		t.Fatal("last success gauge must not be set for a failed job")
	}

	skipped := findSample(mfs, "cron_cycles_skipped_total", nil)
	if skipped == nil || skipped.GetCounter().GetValue() != 1 {
		t.Fatalf("expected one skipped cycle, got %v", skipped)
	}
}

func TestCronMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewCronMetrics(nil)
	m.ObserveRun("", time.Second, nil)
	m.IncSkipped()

	var nilMetrics *CronMetrics
	nilMetrics.ObserveRun("job", time.Second, errors.New("x"))
	nilMetrics.IncSkipped()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	sample := findSample(mfs, name, map[string]string{label: value})
	if sample == nil {
		return 0, fmt.Errorf("metric %q with %s=%s not found", name, label, value)
	}
	return sample.GetCounter().GetValue(), nil
}

// findSample returns the first sample of family name carrying every label in
// want, or nil.
func findSample(mfs []*dto.MetricFamily, name string, want map[string]string) *dto.Metric {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabels(metric.GetLabel(), want) {
				return metric
			}
		}
	}
	return nil
}

func hasLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
