package enums

// OutboxAggregateType names the aggregate an outbox row belongs to.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

var aggregateTypes = []OutboxAggregateType{AggregateOrder}

func (a OutboxAggregateType) IsValid() bool { return member(aggregateTypes, a) }

// ParseOutboxAggregateType matches exactly; the value is machine-written.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return lookup(aggregateTypes, "aggregate type", value, false)
}

// OutboxEventType names a domain event carried through the outbox.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
)

var eventTypes = []OutboxEventType{EventOrderCreated, EventOrderStatusChanged}

func (e OutboxEventType) IsValid() bool { return member(eventTypes, e) }

// ParseOutboxEventType matches exactly; the value is machine-written.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return lookup(eventTypes, "event type", value, false)
}

// OutboxDLQErrorReason explains why an outbox row was parked.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
