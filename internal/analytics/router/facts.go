package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farmfresh/marketplace-backend/internal/analytics/types"
	analyticswriter "github.com/farmfresh/marketplace-backend/internal/analytics/writer"
	"github.com/farmfresh/marketplace-backend/pkg/outbox/payloads"
)

func orderCreatedFact(envelope types.Envelope, event *payloads.OrderCreatedEvent) (types.SalesFactRow, error) {
	row := baseFact(envelope, event.CreatedAt)
	row.OrderID = event.OrderID.String()
	row.UserID = event.UserID.String()
	row.CustomerEmail = optional(event.CustomerEmail)
	row.Status = string(event.Status)
	row.TotalAmount = event.TotalAmount.StringFixed(2)

	var units int64
	for _, item := range event.Items {
		units += int64(item.Quantity)
	}
	lines := int64(len(event.Items))
	row.ItemCount = &lines
	row.UnitsSold = &units

	items, err := analyticswriter.EncodeJSON(event.Items)
	if err != nil {
		return types.SalesFactRow{}, fmt.Errorf("encode order items: %w", err)
	}
	row.Items = items
	return withPayload(row, envelope)
}

func statusChangedFact(envelope types.Envelope, event *payloads.OrderStatusChangedEvent) (types.SalesFactRow, error) {
	row := baseFact(envelope, event.ChangedAt)
	row.OrderID = event.OrderID.String()
	row.UserID = event.UserID.String()
	row.CustomerEmail = optional(event.CustomerEmail)
	row.Status = string(event.Status)
	row.PreviousStatus = optional(string(event.PreviousStatus))
	row.TotalAmount = event.TotalAmount.StringFixed(2)
	if event.ChangedBy != uuid.Nil {
		row.ChangedBy = optional(event.ChangedBy.String())
	}
	return withPayload(row, envelope)
}

// baseFact stamps the event identity. The envelope time wins over the
// event's own timestamp.
func baseFact(envelope types.Envelope, eventTime time.Time) types.SalesFactRow {
	at := envelope.OccurredAt
	if at.IsZero() {
		at = eventTime
	}
	return types.SalesFactRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: at.UTC(),
	}
}

func withPayload(row types.SalesFactRow, envelope types.Envelope) (types.SalesFactRow, error) {
	payload, err := analyticswriter.EncodeJSON(envelope.Payload)
	if err != nil {
		return types.SalesFactRow{}, fmt.Errorf("encode event payload: %w", err)
	}
	row.Payload = payload
	return row, nil
}

func optional(value string) *string {
	if value = strings.TrimSpace(value); value == "" {
		return nil
	}
	return &value
}
