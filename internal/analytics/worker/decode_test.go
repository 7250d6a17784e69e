package worker

import (
	"encoding/json"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmfresh/marketplace-backend/pkg/enums"
	"github.com/farmfresh/marketplace-backend/pkg/outbox"
)

func TestDecodeMessage(t *testing.T) {
	stored := outbox.PayloadEnvelope{
		EventID:    "evt-1",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(`{"orderId":"ord-1"}`),
	}
	env, err := decodeMessage(newMessage(stored, map[string]string{
		attrEventType:     "order_created",
		attrAggregateType: "order",
		attrAggregateID:   " ord-1 ",
	}))
	require.NoError(t, err)

	assert.Equal(t, enums.EventOrderCreated, env.EventType)
	assert.Equal(t, enums.AggregateOrder, env.AggregateType)
	assert.Equal(t, "ord-1", env.AggregateID)
	assert.Equal(t, "evt-1", env.EventID)
	assert.True(t, env.OccurredAt.Equal(stored.OccurredAt))
	assert.JSONEq(t, `{"orderId":"ord-1"}`, string(env.Payload))
}

func TestDecodeMessageUsesAttributesWhenEnvelopeIsSparse(t *testing.T) {
	eventID := uuid.NewString()
	env, err := decodeMessage(newMessage(outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}, map[string]string{
		attrEventType:     "order_status_changed",
		attrAggregateType: "order",
		attrAggregateID:   "ord-2",
		attrEventID:       eventID,
		attrCreatedAt:     "2026-03-02T10:00:00Z",
	}))
	require.NoError(t, err)
	assert.Equal(t, eventID, env.EventID)
	assert.Equal(t, "2026-03-02T10:00:00Z", env.OccurredAt.Format(time.RFC3339))
}

func TestDecodeMessageRejects(t *testing.T) {
	valid := outbox.PayloadEnvelope{EventID: uuid.NewString(), Data: json.RawMessage(`{}`)}
	cases := map[string]*gcppubsub.Message{
		"bad json": {Data: []byte("{")},
		"unknown event type": newMessage(valid, map[string]string{
			attrEventType: "ad_click", attrAggregateType: "order", attrAggregateID: "x",
		}),
		"unknown aggregate": newMessage(valid, map[string]string{
			attrEventType: "order_created", attrAggregateType: "vendor", attrAggregateID: "x",
		}),
		"missing aggregate id": newMessage(valid, map[string]string{
			attrEventType: "order_created", attrAggregateType: "order",
		}),
		"missing event id": newMessage(outbox.PayloadEnvelope{}, map[string]string{
			attrEventType: "order_created", attrAggregateType: "order", attrAggregateID: "x",
		}),
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeMessage(msg)
			assert.Error(t, err)
		})
	}
}

func newMessage(stored outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	data, _ := json.Marshal(stored)
	return &gcppubsub.Message{ID: "msg-1", Data: data, Attributes: attrs}
}
