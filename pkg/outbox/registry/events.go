package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/partsdepot/cart-service/pkg/config"
	"github.com/partsdepot/cart-service/pkg/db/models"
	"github.com/partsdepot/cart-service/pkg/enums"
	"github.com/partsdepot/cart-service/pkg/outbox"
	"github.com/partsdepot/cart-service/pkg/outbox/payloads"
)

// ErrPermanent marks a row that can never be delivered as stored. Retrying it
// only burns attempts, so the publisher dead-letters it straight away.
var ErrPermanent = errors.New("permanent outbox failure")

// Permanent tags err with ErrPermanent.
func Permanent(err error) error {
	if err == nil {
		err = errors.New("unspecified")
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err, or anything it wraps, is ErrPermanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// EventDescriptor is the routing and decoding contract for one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	RoutingKey    string
	SchemaVersion int
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is an outbox row after its envelope and payload were decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry knows every event the publisher may put on the exchange.
type EventRegistry struct {
	exchange string
	byType   map[enums.OutboxEventType]EventDescriptor
}

// cartEvent builds a descriptor whose payload decodes into *T.
func cartEvent[T any](eventType enums.OutboxEventType) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: enums.AggregateCart,
		SchemaVersion: 1,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// NewEventRegistry routes each cart event to <prefix>.<event_type>.v<schema>.
func NewEventRegistry(cfg config.RabbitMQConfig) (*EventRegistry, error) {
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		return nil, fmt.Errorf("rabbitmq exchange is required")
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.RoutingPrefix), ".")
	if prefix == "" {
		return nil, fmt.Errorf("routing key prefix is required")
	}

	descriptors := []EventDescriptor{
		cartEvent[payloads.CartCreatedEvent](enums.EventCartCreated),
		cartEvent[payloads.CartMergedEvent](enums.EventCartMerged),
		cartEvent[payloads.CartDeactivatedEvent](enums.EventCartDeactivated),
	}
	reg := &EventRegistry{exchange: exchange, byType: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		desc.RoutingKey = fmt.Sprintf("%s.%s.v%d", prefix, desc.EventType, desc.SchemaVersion)
		reg.byType[desc.EventType] = desc
	}
	for _, eventType := range enums.OutboxEventTypes() {
		if _, ok := reg.byType[eventType]; !ok {
			return nil, fmt.Errorf("no descriptor for event type %s", eventType)
		}
	}
	return reg, nil
}

func (r *EventRegistry) Exchange() string { return r.exchange }

// Lookup returns the descriptor registered for eventType.
func (r *EventRegistry) Lookup(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.byType[eventType]
	return desc, ok
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every error it returns is permanent.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[event.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("unsupported event type %q", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, Permanent(fmt.Errorf("event %s expects aggregate %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, Permanent(errors.New("aggregate id is empty"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s envelope carries no data", event.EventType))
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s data: %w", event.EventType, err))
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
