package transport

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/replybus/internal/runtime/config"
	errspkg "github.com/drblury/replybus/internal/runtime/errors"
	pubsub "github.com/drblury/replybus/transport"
	"github.com/drblury/replybus/transport/transporttest"
)

func TestDefaultFactoryBuildsChannel(t *testing.T) {
	tr, err := DefaultFactory().Build(context.Background(), &config.Config{ServiceName: "orders", PubSubSystem: "channel"}, watermill.NopLogger{})

	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
	require.NoError(t, tr.Close())
}

func TestDefaultFactoryRequiresConfig(t *testing.T) {
	_, err := DefaultFactory().Build(context.Background(), nil, watermill.NopLogger{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)
}

func TestRegistryFactory(t *testing.T) {
	reg := pubsub.NewRegistry()
	pub := &transporttest.Publisher{}
	reg.Register("fake", func(context.Context, pubsub.Config, watermill.LoggerAdapter) (pubsub.Transport, error) {
		return pubsub.Transport{Publisher: pub, Subscriber: &transporttest.Subscriber{}}, nil
	})

	tr, err := RegistryFactory(reg).Build(context.Background(), &config.Config{PubSubSystem: "fake"}, watermill.NopLogger{})

	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)

	_, err = RegistryFactory(reg).Build(context.Background(), &config.Config{PubSubSystem: "kafka"}, watermill.NopLogger{})
	assert.Error(t, err)
}

func TestFactoryFunc(t *testing.T) {
	called := false
	f := FactoryFunc(func(context.Context, *config.Config, watermill.LoggerAdapter) (pubsub.Transport, error) {
		called = true
		return pubsub.Transport{}, nil
	})

	_, err := f.Build(context.Background(), &config.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.True(t, called)
}
