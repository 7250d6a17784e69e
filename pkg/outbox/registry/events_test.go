package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmfresh/marketplace-backend/pkg/config"
	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	"github.com/farmfresh/marketplace-backend/pkg/outbox"
	"github.com/farmfresh/marketplace-backend/pkg/outbox/payloads"
)

func createdEvent(orderID uuid.UUID) payloads.OrderCreatedEvent {
	return payloads.OrderCreatedEvent{
		OrderID:     orderID,
		UserID:      uuid.New(),
		Status:      enums.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("64.95"),
		Items: []payloads.OrderItemSnapshot{
			{ProductID: uuid.New(), ProductName: "Honey", Price: decimal.RequireFromString("12.99"), Quantity: 5},
		},
	}
}

func orderRow(t *testing.T, eventType enums.OutboxEventType, aggregateID uuid.UUID, data any) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Payload:       mustEnvelope(t, mustMarshal(t, data)),
	}
}

func TestResolveOrderCreated(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()

	resolved, err := reg.Resolve(orderRow(t, enums.EventOrderCreated, orderID, createdEvent(orderID)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "orders-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.OrderID != orderID || !payload.TotalAmount.Equal(decimal.RequireFromString("64.95")) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope metadata missing: %+v", resolved.Envelope)
	}
}

func TestResolveStatusChanged(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()

	resolved, err := reg.Resolve(orderRow(t, enums.EventOrderStatusChanged, orderID, payloads.OrderStatusChangedEvent{
		OrderID:        orderID,
		PreviousStatus: enums.OrderStatusPending,
		Status:         enums.OrderStatusShipped,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, ok := resolved.Payload.(*payloads.OrderStatusChangedEvent)
	if !ok || payload.Status != enums.OrderStatusShipped {
		t.Fatalf("unexpected payload %#v", resolved.Payload)
	}
}

func TestResolveRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()
	empty := createdEvent(orderID)
	empty.Items = nil

	cases := map[string]models.OutboxEvent{
		"unknown event": orderRow(t, enums.OutboxEventType("order_refunded"), orderID, createdEvent(orderID)),
		"aggregate mismatch": func() models.OutboxEvent {
			row := orderRow(t, enums.EventOrderCreated, orderID, createdEvent(orderID))
			row.AggregateType = enums.OutboxAggregateType("cart")
			return row
		}(),
		"missing aggregate id": orderRow(t, enums.EventOrderCreated, uuid.Nil, createdEvent(uuid.Nil)),
		"order id differs":     orderRow(t, enums.EventOrderCreated, uuid.New(), createdEvent(orderID)),
		"no items":             orderRow(t, enums.EventOrderCreated, orderID, empty),
		"illegal transition": orderRow(t, enums.EventOrderStatusChanged, orderID, payloads.OrderStatusChangedEvent{
			OrderID:        orderID,
			PreviousStatus: enums.OrderStatusDelivered,
			Status:         enums.OrderStatusPending,
		}),
		"null payload": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Payload:       json.RawMessage(`{"data":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %v", err)
			}
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected error without orders topic")
	}
	if topics := newTestEventRegistry(t).Topics(); len(topics) != 1 || topics[0] != "orders-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
