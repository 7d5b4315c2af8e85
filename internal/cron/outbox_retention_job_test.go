package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
)

var retentionNow = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

type fakeOutboxPruner struct {
	backlog     int64
	cutoff      time.Time
	minAttempts int
	calls       int
	err         error
}

func (f *fakeOutboxPruner) PruneBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttempts, limit int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.minAttempts = minAttempts
	if f.err != nil {
		return 0, f.err
	}
	n := min(f.backlog, int64(limit))
	f.backlog -= n
	return n, nil
}

type fakeDLQPruner struct {
	backlog int64
	cutoff  time.Time
	calls   int
}

func (f *fakeDLQPruner) PruneBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	n := min(f.backlog, int64(limit))
	f.backlog -= n
	return n, nil
}

type countingTxRunner struct{ txs int }

func (c *countingTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	c.txs++
	return fn(nil)
}

func newRetentionJob(t *testing.T, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = testLogger()
	if params.DB == nil {
		params.DB = &countingTxRunner{}
	}
	job, err := NewOutboxRetentionJob(params)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	concrete := job.(*outboxRetentionJob)
	concrete.now = func() time.Time { return retentionNow }
	return concrete
}

func TestOutboxRetentionJobUsesDefaults(t *testing.T) {
	events := &fakeOutboxPruner{backlog: 3}
	dlq := &fakeDLQPruner{backlog: 1}
	job := newRetentionJob(t, OutboxRetentionJobParams{Outbox: events, DLQ: dlq})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := retentionNow.AddDate(0, 0, -outboxRetentionDays); !events.cutoff.Equal(want) {
		t.Fatalf("outbox cutoff %s, want %s", events.cutoff, want)
	}
	if want := retentionNow.AddDate(0, 0, -dlqRetentionDays); !dlq.cutoff.Equal(want) {
		t.Fatalf("dlq cutoff %s, want %s", dlq.cutoff, want)
	}
	if events.minAttempts != outboxMinAttempts {
		t.Fatalf("min attempts %d, want %d", events.minAttempts, outboxMinAttempts)
	}
	if events.calls != 1 || dlq.calls != 1 {
		t.Fatalf("short first batch should stop the loop, calls outbox=%d dlq=%d", events.calls, dlq.calls)
	}
}

func TestOutboxRetentionJobDrainsInBatches(t *testing.T) {
	events := &fakeOutboxPruner{backlog: 5}
	tx := &countingTxRunner{}
	job := newRetentionJob(t, OutboxRetentionJobParams{
		DB:          tx,
		Outbox:      events,
		Retention:   3,
		MinAttempts: 4,
		BatchSize:   2,
	})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if events.backlog != 0 {
		t.Fatalf("backlog left: %d", events.backlog)
	}
	// 2 + 2 + 1
	if events.calls != 3 || tx.txs != 3 {
		t.Fatalf("expected three batches in three transactions, calls=%d txs=%d", events.calls, tx.txs)
	}
	if want := retentionNow.AddDate(0, 0, -3); !events.cutoff.Equal(want) {
		t.Fatalf("cutoff %s, want %s", events.cutoff, want)
	}
	if events.minAttempts != 4 {
		t.Fatalf("min attempts %d, want 4", events.minAttempts)
	}
}

func TestOutboxRetentionJobStopsOnCancel(t *testing.T) {
	events := &fakeOutboxPruner{backlog: 100}
	job := newRetentionJob(t, OutboxRetentionJobParams{Outbox: events, BatchSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := job.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if events.calls != 1 {
		t.Fatalf("expected a single batch before noticing cancellation, got %d", events.calls)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newRetentionJob(t, OutboxRetentionJobParams{Outbox: &fakeOutboxPruner{err: errors.New("boom")}})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewOutboxRetentionJobValidates(t *testing.T) {
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: testLogger(), DB: &countingTxRunner{}}); err == nil {
		t.Fatal("expected error without outbox repository")
	}
}
