package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partsdepot/cart-service/pkg/db/models"
	"github.com/partsdepot/cart-service/pkg/enums"
	"github.com/partsdepot/cart-service/pkg/logger"
)

const currentEnvelopeVersion = 1

// ErrInvalidEvent marks events rejected before they reach the outbox table.
var ErrInvalidEvent = errors.New("invalid outbox event")

// DomainEvent is what producers hand to Emit. Data is marshalled into the
// envelope's data field as-is.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("%w: unsupported event type %q", ErrInvalidEvent, e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("%w: unsupported aggregate type %q", ErrInvalidEvent, e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%w: aggregate id is required", ErrInvalidEvent)
	}
	return nil
}

// toRow wraps the event in its envelope. The envelope's event id is the row
// id, so consumers can dedupe on it and operators can find the row from a
// delivered message.
func (e DomainEvent) toRow(now time.Time) (models.OutboxEvent, PayloadEnvelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("marshal %s data: %w", e.EventType, err)
	}
	envelope := PayloadEnvelope{
		Version:    e.Version,
		EventID:    uuid.NewString(),
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Data:       data,
	}
	if envelope.Version <= 0 {
		envelope.Version = currentEnvelopeVersion
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = now
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("marshal envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            uuid.MustParse(envelope.EventID),
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       json.RawMessage(body),
	}, envelope, nil
}

// Service writes domain events to the transactional outbox.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}
}

// Emit appends the event inside tx so it commits or rolls back with the cart
// mutation that produced it.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}
	row, envelope, err := event.toRow(s.now())
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("insert %s outbox row: %w", event.EventType, err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
		}), "outbox event queued")
	}
	return nil
}
