// Package registry knows which outbox event types exist, where they are
// published, and what a well-formed payload for each looks like.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/farmfresh/marketplace-backend/pkg/config"
	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	"github.com/farmfresh/marketplace-backend/pkg/outbox"
	"github.com/farmfresh/marketplace-backend/pkg/outbox/payloads"
)

// EventDescriptor is the routing half of a registered event.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed every check and is safe to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps err so the publisher parks the row instead of retrying.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

type entry struct {
	EventDescriptor
	decode func(data json.RawMessage, aggregateID uuid.UUID) (any, error)
}

// typed builds a decoder that unmarshals into T and then runs check.
func typed[T any](check func(event *T, aggregateID uuid.UUID) error) func(json.RawMessage, uuid.UUID) (any, error) {
	return func(data json.RawMessage, aggregateID uuid.UUID) (any, error) {
		event := new(T)
		if err := json.Unmarshal(data, event); err != nil {
			return nil, err
		}
		if err := check(event, aggregateID); err != nil {
			return nil, err
		}
		return event, nil
	}
}

// EventRegistry resolves outbox rows against the registered event types.
type EventRegistry struct {
	entries map[enums.OutboxEventType]entry
}

// NewEventRegistry registers the order events on the configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	order := func(t enums.OutboxEventType) EventDescriptor {
		return EventDescriptor{EventType: t, AggregateType: enums.AggregateOrder, Topic: cfg.OrdersTopic}
	}
	return &EventRegistry{entries: map[enums.OutboxEventType]entry{
		enums.EventOrderCreated: {
			EventDescriptor: order(enums.EventOrderCreated),
			decode:          typed(checkOrderCreated),
		},
		enums.EventOrderStatusChanged: {
			EventDescriptor: order(enums.EventOrderStatusChanged),
			decode:          typed(checkStatusChanged),
		},
	}}, nil
}

func checkOrderCreated(event *payloads.OrderCreatedEvent, aggregateID uuid.UUID) error {
	switch {
	case event.OrderID != aggregateID:
		return fmt.Errorf("order id %s does not match aggregate %s", event.OrderID, aggregateID)
	case len(event.Items) == 0:
		return errors.New("order has no items")
	case !event.Status.IsValid():
		return fmt.Errorf("invalid status %q", event.Status)
	}
	return nil
}

func checkStatusChanged(event *payloads.OrderStatusChangedEvent, aggregateID uuid.UUID) error {
	switch {
	case event.OrderID != aggregateID:
		return fmt.Errorf("order id %s does not match aggregate %s", event.OrderID, aggregateID)
	case !event.PreviousStatus.CanTransitionTo(event.Status):
		return fmt.Errorf("illegal transition %s -> %s", event.PreviousStatus, event.Status)
	}
	return nil
}

// Topics lists the distinct topics in sorted order.
func (r *EventRegistry) Topics() []string {
	set := map[string]struct{}{}
	for _, e := range r.entries {
		set[e.Topic] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for topic := range set {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// Resolve checks routing metadata, decodes the envelope and validates the
// typed payload. Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	e, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case e.AggregateType != event.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", e.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	envelope, err := outbox.ParseEnvelope(event.Payload)
	if err != nil {
		return nil, permanent("%w", err)
	}
	if !envelope.HasData() {
		return nil, permanent("payload missing for %s", event.EventType)
	}

	payload, err := e.decode(envelope.Data, event.AggregateID)
	if err != nil {
		return nil, permanent("%s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: e.EventDescriptor, Envelope: envelope, Payload: payload}, nil
}
