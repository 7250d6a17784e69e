package worker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/farmfresh/marketplace-backend/internal/analytics/types"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	"github.com/farmfresh/marketplace-backend/pkg/outbox"
)

// message attributes stamped by the outbox publisher
const (
	attrEventID       = "event_id"
	attrEventType     = "event_type"
	attrAggregateType = "aggregate_type"
	attrAggregateID   = "aggregate_id"
	attrCreatedAt     = "created_at"
)

var (
	errMissingEventID     = errors.New("event_id missing")
	errMissingAggregateID = errors.New("aggregate_id missing")
)

// decodeMessage flattens a delivered message into an Envelope. The stored
// payload envelope wins over attributes for the event id and timestamp.
func decodeMessage(msg *gcppubsub.Message) (types.Envelope, error) {
	stored, err := outbox.ParseEnvelope(msg.Data)
	if err != nil {
		return types.Envelope{}, err
	}
	attrs := msg.Attributes

	eventType, err := enums.ParseOutboxEventType(attr(attrs, attrEventType))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("%s: %w", attrEventType, err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr(attrs, attrAggregateType))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("%s: %w", attrAggregateType, err)
	}
	aggregateID := attr(attrs, attrAggregateID)
	if aggregateID == "" {
		return types.Envelope{}, errMissingAggregateID
	}

	eventID := firstNonEmpty(stored.EventID, attr(attrs, attrEventID))
	if eventID == "" {
		return types.Envelope{}, errMissingEventID
	}

	return types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt(stored.OccurredAt, attr(attrs, attrCreatedAt)),
		Payload:       stored.Data,
	}, nil
}

func occurredAt(stored time.Time, created string) time.Time {
	if stored.IsZero() && created != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
			return parsed.UTC()
		}
	}
	return stored.UTC()
}

func attr(attrs map[string]string, key string) string {
	return strings.TrimSpace(attrs[key])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
