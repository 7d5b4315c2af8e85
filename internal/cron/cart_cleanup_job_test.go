package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/partsdepot/cart-service/pkg/logger"
)

type fakeStaleCarts struct {
	cutoff time.Time
	calls  int
	err    error
}

func (f *fakeStaleCarts) DeactivateStaleGuestCarts(ctx context.Context, olderThan time.Time) (int64, error) {
	f.calls++
	f.cutoff = olderThan
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func TestCartCleanupJobUsesIdleWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	carts := &fakeStaleCarts{}
	job := newCartCleanupJob(t, carts, 0)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := now.Add(-cartCleanupDays * 24 * time.Hour)
	if !carts.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, carts.cutoff)
	}
	if carts.calls != 1 {
		t.Fatalf("expected one call, got %d", carts.calls)
	}
	if job.Name() != "cart-cleanup" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}

func TestCartCleanupJobCustomWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	carts := &fakeStaleCarts{}
	job := newCartCleanupJob(t, carts, 14)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-14 * 24 * time.Hour); !carts.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, carts.cutoff)
	}
}

func TestCartCleanupJobPropagatesError(t *testing.T) {
	job := newCartCleanupJob(t, &fakeStaleCarts{err: errors.New("db down")}, 0)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewCartCleanupJobRequiresDependencies(t *testing.T) {
	if _, err := NewCartCleanupJob(CartCleanupJobParams{Carts: &fakeStaleCarts{}}); err == nil {
		t.Fatal("expected error without logger")
	}
	if _, err := NewCartCleanupJob(CartCleanupJobParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without cart service")
	}
}

func newCartCleanupJob(t *testing.T, carts *fakeStaleCarts, days int) *cartCleanupJob {
	t.Helper()
	jobIface, err := NewCartCleanupJob(CartCleanupJobParams{
		Logger:  testLogger(),
		Carts:   carts,
		MaxIdle: days,
	})
	if err != nil {
		t.Fatalf("NewCartCleanupJob: %v", err)
	}
	job, ok := jobIface.(*cartCleanupJob)
	if !ok {
		t.Fatalf("expected cartCleanupJob, got %T", jobIface)
	}
	return job
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}
