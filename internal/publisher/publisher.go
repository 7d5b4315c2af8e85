package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partsdepot/cart-service/pkg/db/models"
	"github.com/partsdepot/cart-service/pkg/enums"
	"github.com/partsdepot/cart-service/pkg/logger"
	"github.com/partsdepot/cart-service/pkg/outbox/registry"
	"github.com/partsdepot/cart-service/pkg/rabbitmq"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	defaultMaxBackoff     = 10 * time.Second
)

type txRunner interface {
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type broker interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, msg rabbitmq.Message) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publishMetrics interface {
	IncPublished(eventType string)
	IncFailed(eventType string)
	IncDeadLettered(eventType, reason string)
}

type Params struct {
	Logger   *logger.Logger
	DB       txRunner
	Broker   broker
	Outbox   outboxStore
	DLQ      deadLetterStore
	Registry resolver
	Metrics  publishMetrics

	BatchSize      int
	MaxAttempts    int
	PollInterval   time.Duration
	PublishTimeout time.Duration
	MaxBackoff     time.Duration
}

// Publisher relays committed outbox rows to the broker. Each batch is claimed
// and settled inside one transaction, so a crash mid-batch leaves the rows
// unpublished and they are sent again; consumers dedupe on the message id.
type Publisher struct {
	logg     *logger.Logger
	db       txRunner
	broker   broker
	outbox   outboxStore
	dlq      deadLetterStore
	registry resolver
	metrics  publishMetrics

	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

func New(p Params) (*Publisher, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Broker == nil:
		return nil, errors.New("broker is required")
	case p.Outbox == nil:
		return nil, errors.New("outbox repository is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}
	return &Publisher{
		logg:           p.Logger,
		db:             p.DB,
		broker:         p.Broker,
		outbox:         p.Outbox,
		dlq:            p.DLQ,
		registry:       p.Registry,
		metrics:        p.Metrics,
		batchSize:      positiveOr(p.BatchSize, defaultBatchSize),
		maxAttempts:    positiveOr(p.MaxAttempts, defaultMaxAttempts),
		pollInterval:   positiveOr(p.PollInterval, defaultPollInterval),
		publishTimeout: positiveOr(p.PublishTimeout, defaultPublishTimeout),
		maxBackoff:     positiveOr(p.MaxBackoff, defaultMaxBackoff),
		now:            time.Now,
	}, nil
}

// BatchResult tallies how the rows of one batch were settled.
type BatchResult struct {
	Claimed      int
	Delivered    int
	Retried      int
	DeadLettered int
}

// Run polls until ctx ends. A full batch that delivered cleanly is followed
// immediately by the next poll and an empty poll waits one interval. A batch
// that failed or left rows for retry backs off. When a delivery fails and the
// broker no longer answers a ping, Run returns so the process can be
// restarted with a fresh connection.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.checkDependencies(ctx); err != nil {
		return err
	}

	wait := newBackoff(p.pollInterval, p.maxBackoff)
	for {
		if err := ctx.Err(); err != nil {
			p.logg.Info(ctx, "outbox publisher stopping")
			return err
		}

		res, err := p.PublishBatch(ctx)
		var delay time.Duration
		switch {
		case err != nil:
			p.logg.Error(ctx, "outbox batch failed", err)
			delay = wait.next()
		case res.Retried > 0:
			if err := p.broker.Ping(ctx); err != nil {
				return fmt.Errorf("rabbitmq unreachable: %w", err)
			}
			delay = wait.next()
			p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
				"retried":  res.Retried,
				"delay_ms": delay.Milliseconds(),
			}), "outbox deliveries failed, backing off")
		case res.Claimed == p.batchSize:
			wait.reset()
			continue
		default:
			wait.reset()
			delay = jitter(p.pollInterval)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (p *Publisher) checkDependencies(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": p.db.Ping,
		"rabbitmq": p.broker.Ping,
	} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s unreachable: %w", name, err)
		}
	}
	return nil
}

// PublishBatch claims up to batchSize rows and settles each one. A returned
// error means the transaction rolled back and the result is zero.
func (p *Publisher) PublishBatch(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := p.outbox.FetchUnpublishedForPublish(tx, p.batchSize, p.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		res.Claimed = len(rows)
		for _, row := range rows {
			settled, err := p.settle(ctx, tx, row)
			if err != nil {
				return err
			}
			switch settled {
			case outcomeDelivered:
				res.Delivered++
			case outcomeRetry:
				res.Retried++
			case outcomeDeadLetter:
				res.DeadLettered++
			}
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

// settle publishes one row and records the outcome. Only bookkeeping errors
// are returned; delivery failures are recorded on the row.
func (p *Publisher) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	resolved, err := p.registry.Resolve(row)
	if err == nil {
		err = p.deliver(ctx, row, resolved)
	}
	rowCtx := p.logg.WithFields(ctx, rowFields(row, resolved))

	v := classify(row, err, p.maxAttempts)
	switch v.outcome {
	case outcomeDelivered:
		if err := p.outbox.MarkPublishedTx(tx, row.ID); err != nil {
			return v.outcome, fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		p.count(func(m publishMetrics) { m.IncPublished(string(row.EventType)) })
		p.logg.Debug(rowCtx, "outbox event published")
	case outcomeRetry:
		if err := p.outbox.MarkFailedTx(tx, row.ID, v.cause); err != nil {
			return v.outcome, fmt.Errorf("mark %s failed: %w", row.ID, err)
		}
		p.count(func(m publishMetrics) { m.IncFailed(string(row.EventType)) })
		p.logg.Warn(p.logg.WithFields(rowCtx, map[string]any{
			"next_attempt": row.AttemptCount + 1,
			"error":        v.cause.Error(),
		}), "outbox publish will be retried")
	case outcomeDeadLetter:
		if err := p.deadLetter(tx, row, v); err != nil {
			return v.outcome, err
		}
		p.count(func(m publishMetrics) { m.IncDeadLettered(string(row.EventType), string(v.reason)) })
		p.logg.Warn(p.logg.WithFields(rowCtx, map[string]any{
			"dlq_reason": v.reason,
			"error":      v.cause.Error(),
		}), "outbox event dead-lettered")
	}
	return v.outcome, nil
}

func (p *Publisher) deliver(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	if resolved.Descriptor.RoutingKey == "" {
		return registry.Permanent(fmt.Errorf("no routing key for %s", row.EventType))
	}
	messageID := resolved.Envelope.EventID
	if messageID == "" {
		messageID = row.ID.String()
	}

	ctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()
	return p.broker.Publish(ctx, rabbitmq.Message{
		RoutingKey: resolved.Descriptor.RoutingKey,
		MessageID:  messageID,
		Type:       string(row.EventType),
		Timestamp:  resolved.Envelope.OccurredAt,
		Body:       row.Payload,
		Headers: map[string]any{
			"outbox_id":      row.ID.String(),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"attempt":        int32(row.AttemptCount + 1),
		},
	})
}

func (p *Publisher) deadLetter(tx *gorm.DB, row models.OutboxEvent, v verdict) error {
	msg := v.cause.Error()
	if err := p.dlq.InsertTx(tx, models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   v.reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      p.now().UTC(),
	}); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	if err := p.outbox.MarkTerminalTx(tx, row.ID, v.cause, p.maxAttempts); err != nil {
		return fmt.Errorf("mark %s terminal: %w", row.ID, err)
	}
	return nil
}

func (p *Publisher) count(fn func(publishMetrics)) {
	if p.metrics != nil {
		fn(p.metrics)
	}
}

func rowFields(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}
	if resolved != nil {
		fields["routing_key"] = resolved.Descriptor.RoutingKey
	}
	return fields
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

type verdict struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	cause   error
}

// classify decides what happens to a row after a delivery attempt. Permanent
// errors skip the retry budget; anything else is retried until the attempt
// that would reach maxAttempts.
func classify(row models.OutboxEvent, err error, maxAttempts int) verdict {
	switch {
	case err == nil:
		return verdict{outcome: outcomeDelivered}
	case registry.IsPermanent(err):
		return verdict{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, cause: err}
	case row.AttemptCount+1 >= maxAttempts:
		return verdict{
			outcome: outcomeDeadLetter,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			cause:   fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err),
		}
	}
	return verdict{outcome: outcomeRetry, cause: err}
}

func positiveOr[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}
