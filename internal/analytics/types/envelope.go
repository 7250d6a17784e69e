package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/farmfresh/marketplace-backend/pkg/enums"
)

var ErrEmptyPayload = errors.New("empty event payload")

// Envelope is one delivered order event: message attributes merged with the
// stored outbox envelope.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Payload       json.RawMessage           `json:"payload"`
}

// Decode unmarshals the event body into dst.
func (e Envelope) Decode(dst any) error {
	body := bytes.TrimSpace(e.Payload)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return fmt.Errorf("%w: %s", ErrEmptyPayload, e.EventType)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}
