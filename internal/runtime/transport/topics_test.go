package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/replybus/internal/runtime/envelope"
)

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "replybus_"}

	assert.Equal(t, "replybus_orders", topics.Service("orders"))
	assert.Equal(t, "replybus_orders_a1", topics.Instance("orders", "a1"))
	assert.Equal(t, []string{"replybus_orders", "replybus_orders_a1"},
		topics.Inboxes(envelope.Address{Service: "orders", Instance: "a1"}))

	topic, err := topics.For("orders")
	require.NoError(t, err)
	assert.Equal(t, "replybus_orders", topic)

	topic, err = topics.For("a1@orders")
	require.NoError(t, err)
	assert.Equal(t, "replybus_orders_a1", topic)

	_, err = topics.For("")
	assert.Error(t, err)
}
