package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/partsdepot/cart-service/pkg/logger"
)

const (
	outboxRetentionDays = 30
	dlqRetentionDays    = 90
	pruneBatchSize      = 500

	// the publisher pins dead-lettered rows at its max attempts, default 10
	outboxMinAttempts = 10
)

type outboxPruner interface {
	PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error)
}

type dlqPruner interface {
	PruneBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

// OutboxRetentionJobParams configure pruning of finished outbox rows and old
// dead letters. DLQ is optional; without it dead letters are kept forever.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Outbox       outboxPruner
	DLQ          dlqPruner
	Retention    int
	DLQRetention int
	MinAttempts  int
	BatchSize    int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		outbox:       params.Outbox,
		dlq:          params.DLQ,
		retention:    positiveOr(params.Retention, outboxRetentionDays),
		dlqRetention: positiveOr(params.DLQRetention, dlqRetentionDays),
		minAttempts:  positiveOr(params.MinAttempts, outboxMinAttempts),
		batch:        positiveOr(params.BatchSize, pruneBatchSize),
		now:          time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	outbox       outboxPruner
	dlq          dlqPruner
	retention    int
	dlqRetention int
	minAttempts  int
	batch        int
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now()
	cutoff := retentionCutoff(now, j.retention)
	events, err := j.pruneInBatches(ctx, func(tx *gorm.DB) (int64, error) {
		return j.outbox.PruneBefore(ctx, tx, cutoff, j.minAttempts, j.batch)
	})
	if err != nil {
		return fmt.Errorf("prune outbox events: %w", err)
	}

	var deadLetters int64
	dlqCutoff := retentionCutoff(now, j.dlqRetention)
	if j.dlq != nil {
		deadLetters, err = j.pruneInBatches(ctx, func(tx *gorm.DB) (int64, error) {
			return j.dlq.PruneBefore(ctx, tx, dlqCutoff, j.batch)
		})
		if err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":               cutoff,
		"dlq_cutoff":           dlqCutoff,
		"min_attempts":         j.minAttempts,
		"events_deleted":       events,
		"dead_letters_deleted": deadLetters,
	}), "outbox retention complete")
	return nil
}

// pruneInBatches runs prune in its own transaction until a batch comes back
// short, keeping row locks brief on a busy table.
func (j *outboxRetentionJob) pruneInBatches(ctx context.Context, prune func(tx *gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for {
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			deleted, err = prune(tx)
			return err
		})
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < int64(j.batch) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}
