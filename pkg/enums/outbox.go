package enums

// OutboxAggregateType identifies the aggregate an outbox row describes.
type OutboxAggregateType string

const AggregateCart OutboxAggregateType = "cart"

var aggregateTypes = []OutboxAggregateType{AggregateCart}

func (a OutboxAggregateType) IsValid() bool { return member(a, aggregateTypes) }

func ParseOutboxAggregateType(raw string) (OutboxAggregateType, error) {
	return parse("aggregate type", raw, aggregateTypes)
}

// OutboxEventType names a cart lifecycle event. Values double as the middle
// segment of broker routing keys.
type OutboxEventType string

const (
	EventCartCreated     OutboxEventType = "cart_created"
	EventCartMerged      OutboxEventType = "cart_merged"
	EventCartDeactivated OutboxEventType = "cart_deactivated"
)

var eventTypes = []OutboxEventType{
	EventCartCreated,
	EventCartMerged,
	EventCartDeactivated,
}

// OutboxEventTypes lists every event the publisher knows how to route.
func OutboxEventTypes() []OutboxEventType {
	return append([]OutboxEventType(nil), eventTypes...)
}

func (e OutboxEventType) IsValid() bool { return member(e, eventTypes) }

func ParseOutboxEventType(raw string) (OutboxEventType, error) {
	return parse("event type", raw, eventTypes)
}

// OutboxDLQErrorReason explains why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool { return member(r, dlqReasons) }
