package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/replybus/transport"
	"github.com/drblury/replybus/transport/transporttest"
)

func stubFactories(t *testing.T, pub message.Publisher, sub message.Subscriber, seen *kafka.SubscriberConfig) {
	t.Helper()
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory, SubscriberFactory = originalPub, originalSub
	})

	PublisherFactory = func(cfg kafka.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		return pub, nil
	}
	SubscriberFactory = func(cfg kafka.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		if seen != nil {
			*seen = cfg
		}
		if sub == nil {
			return nil, errors.New("subscriber error")
		}
		return sub, nil
	}
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.KafkaCapabilities, transport.GetCapabilities(TransportName))
	assert.Equal(t, transport.KafkaCapabilities, Capabilities())
}

func TestBuildUsesExplicitConsumerGroup(t *testing.T) {
	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}
	var seen kafka.SubscriberConfig
	stubFactories(t, pub, sub, &seen)

	tr, err := Build(context.Background(), &transporttest.Config{
		ServiceName:        "orders",
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaConsumerGroup: "orders-v2",
	}, watermill.NopLogger{})

	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)
	assert.Equal(t, []string{"localhost:9092"}, seen.Brokers)
	assert.Equal(t, "orders-v2", seen.ConsumerGroup)
}

func TestBuildDefaultsConsumerGroupToService(t *testing.T) {
	var seen kafka.SubscriberConfig
	stubFactories(t, &transporttest.Publisher{}, &transporttest.Subscriber{}, &seen)

	_, err := Build(context.Background(), &transporttest.Config{
		ServiceName:  "billing",
		KafkaBrokers: []string{"b1:9092", "b2:9092"},
	}, watermill.NopLogger{})

	require.NoError(t, err)
	assert.Equal(t, "billing", seen.ConsumerGroup)
}

func TestBuildRequiresBrokers(t *testing.T) {
	_, err := Build(context.Background(), &transporttest.Config{ServiceName: "orders"}, watermill.NopLogger{})
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestBuildPublisherError(t *testing.T) {
	originalPub := PublisherFactory
	defer func() { PublisherFactory = originalPub }()
	PublisherFactory = func(kafka.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return nil, errors.New("publisher error")
	}

	_, err := Build(context.Background(), &transporttest.Config{KafkaBrokers: []string{"k:9092"}}, watermill.NopLogger{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka publisher: publisher error")
}

func TestBuildSubscriberErrorClosesPublisher(t *testing.T) {
	pub := &transporttest.Publisher{}
	stubFactories(t, pub, nil, nil)

	_, err := Build(context.Background(), &transporttest.Config{KafkaBrokers: []string{"k:9092"}}, watermill.NopLogger{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka subscriber")
	assert.True(t, pub.Closed)
}
