package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/replybus/internal/runtime/config"
	errspkg "github.com/drblury/replybus/internal/runtime/errors"
	pubsub "github.com/drblury/replybus/transport"

	// Import all transport packages to register them.
	_ "github.com/drblury/replybus/transport/transports"
)

// Factory abstracts how a bus obtains the publisher and subscriber pair
// behind its envelope transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (pubsub.Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (pubsub.Transport, error)

// Build calls f.
func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (pubsub.Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the built-in transport factory that uses the
// modular transport registry.
func DefaultFactory() Factory {
	return registryFactory{registry: pubsub.DefaultRegistry}
}

// RegistryFactory builds transports from a specific registry.
func RegistryFactory(registry *pubsub.Registry) Factory {
	return registryFactory{registry: registry}
}

type registryFactory struct {
	registry *pubsub.Registry
}

func (f registryFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (pubsub.Transport, error) {
	if conf == nil {
		return pubsub.Transport{}, errspkg.ErrConfigRequired
	}
	return f.registry.Build(ctx, conf, logger)
}
