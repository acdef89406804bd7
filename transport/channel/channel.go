// Package channel provides an in-memory Go channel transport. Every bus built
// from it inside one process shares a single Go channel pub/sub, so services
// running side by side can exchange requests without a broker.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/replybus/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// OutputBuffer is the per-subscription channel buffer of the shared pub/sub.
const OutputBuffer = 256

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

var (
	hubMu sync.Mutex
	live  *hub
)

type hub struct {
	pub  message.Publisher
	sub  message.Subscriber
	refs int
}

// Build leases the process-wide Go channel pub/sub. The pub/sub is closed
// when the last lease is closed.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	hubMu.Lock()
	defer hubMu.Unlock()

	if live == nil {
		pub, sub := Factory(gochannel.Config{OutputChannelBuffer: OutputBuffer}, logger)
		live = &hub{pub: pub, sub: sub}
	}
	live.refs++

	l := &lease{hub: live}
	return transport.Transport{
		Publisher:  l,
		Subscriber: l,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

// Leases reports how many transports currently share the pub/sub.
func Leases() int {
	hubMu.Lock()
	defer hubMu.Unlock()
	if live == nil {
		return 0
	}
	return live.refs
}

type lease struct {
	hub  *hub
	once sync.Once
}

func (l *lease) Publish(topic string, messages ...*message.Message) error {
	return l.hub.pub.Publish(topic, messages...)
}

func (l *lease) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return l.hub.sub.Subscribe(ctx, topic)
}

func (l *lease) Close() error {
	var err error
	l.once.Do(func() {
		err = release(l.hub)
	})
	return err
}

func release(h *hub) error {
	hubMu.Lock()
	h.refs--
	last := h.refs == 0
	if last && live == h {
		live = nil
	}
	hubMu.Unlock()

	if !last {
		return nil
	}
	return transport.Transport{Publisher: h.pub, Subscriber: h.sub}.Close()
}
