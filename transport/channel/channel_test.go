package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/replybus/transport"
	"github.com/drblury/replybus/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.DefaultRegistry.Has("gochannel"))

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, transport.ChannelCapabilities, caps)
	assert.False(t, caps.SharedServiceInbox)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func TestBuildSharesOnePubSub(t *testing.T) {
	cfg := &transporttest.Config{ServiceName: "orders"}

	first, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	second, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, 2, Leases())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := second.Subscriber.Subscribe(ctx, "replybus_orders")
	require.NoError(t, err)

	require.NoError(t, first.Publisher.Publish("replybus_orders", message.NewMessage("1", []byte("hi"))))

	select {
	case msg := <-msgs:
		assert.Equal(t, "hi", string(msg.Payload))
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("message was not delivered across leases")
	}

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())
	assert.Equal(t, 1, Leases())
	require.NoError(t, second.Close())
	assert.Equal(t, 0, Leases())
}

func TestLastLeaseClosesUnderlyingPubSub(t *testing.T) {
	originalFactory := Factory
	defer func() { Factory = originalFactory }()

	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}
	var seen gochannel.Config
	Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		seen = cfg
		return pub, sub
	}

	tr, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, int64(OutputBuffer), seen.OutputChannelBuffer)

	require.NoError(t, tr.Publisher.Publish("t", message.NewMessage("1", nil)))
	assert.Len(t, pub.Messages("t"), 1)

	require.NoError(t, tr.Close())
	assert.True(t, pub.Closed)
	assert.True(t, sub.Closed)
}
