package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
	}
	raw := json.RawMessage(MustMarshal(payload{OrderID: "o1"}))

	got, err := UnwrapPayload[payload](raw)
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OrderID)

	_, err = UnwrapPayload[payload](json.RawMessage(`{"order_id":`))
	assert.Error(t, err)
}

func TestPublishReportsFullInbox(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "t", 1, nil)
	require.NoError(t, p.Publish([]byte("k"), []byte("v")))
	assert.ErrorIs(t, p.Publish([]byte("k"), []byte("v")), ErrProducerBusy)
}
