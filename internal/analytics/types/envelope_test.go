package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmfresh/marketplace-backend/pkg/enums"
)

func TestEnvelopeDecode(t *testing.T) {
	env := Envelope{EventType: enums.EventOrderCreated, Payload: json.RawMessage(`{"status":"pending"}`)}
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, env.Decode(&body))
	assert.Equal(t, "pending", body.Status)

	for _, raw := range []string{"", "  ", "null"} {
		env.Payload = json.RawMessage(raw)
		assert.ErrorIs(t, env.Decode(&body), ErrEmptyPayload, "payload %q", raw)
	}

	env.Payload = json.RawMessage(`{"status":`)
	assert.Error(t, env.Decode(&body))
}
