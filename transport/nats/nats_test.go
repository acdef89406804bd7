package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/replybus/transport"
	"github.com/drblury/replybus/transport/transporttest"
)

const testURL = "nats://localhost:4222"

func restoreFactories(t *testing.T) {
	t.Helper()
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory, SubscriberFactory = originalPub, originalSub
	})
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.NATSCapabilities, Capabilities())
}

func TestOptions(t *testing.T) {
	assert.Len(t, Options(""), 2)
	assert.Len(t, Options("orders"), 3)
}

func TestBuildConfiguresCoreNATS(t *testing.T) {
	restoreFactories(t)
	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}

	PublisherFactory = func(cfg nats.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		assert.Equal(t, testURL, cfg.URL)
		assert.True(t, cfg.JetStream.Disabled)
		assert.Len(t, cfg.NatsOptions, 3)
		return pub, nil
	}
	SubscriberFactory = func(cfg nats.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.Equal(t, "orders", cfg.QueueGroupPrefix)
		assert.True(t, cfg.JetStream.Disabled)
		return sub, nil
	}

	tr, err := Build(context.Background(), &transporttest.Config{ServiceName: "orders", NATSURL: testURL}, watermill.NopLogger{})

	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)
}

func TestBuildRequiresURL(t *testing.T) {
	_, err := Build(context.Background(), &transporttest.Config{ServiceName: "orders"}, watermill.NopLogger{})
	assert.ErrorIs(t, err, ErrURLRequired)
}

func TestBuildPublisherError(t *testing.T) {
	restoreFactories(t)
	PublisherFactory = func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return nil, errors.New("no servers available")
	}

	_, err := Build(context.Background(), &transporttest.Config{NATSURL: testURL}, watermill.NopLogger{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats publisher: no servers available")
}

func TestBuildSubscriberErrorClosesPublisher(t *testing.T) {
	restoreFactories(t)
	pub := &transporttest.Publisher{}
	PublisherFactory = func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return pub, nil
	}
	SubscriberFactory = func(nats.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return nil, errors.New("auth failed")
	}

	_, err := Build(context.Background(), &transporttest.Config{NATSURL: testURL}, watermill.NopLogger{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats subscriber")
	assert.True(t, pub.Closed)
}
