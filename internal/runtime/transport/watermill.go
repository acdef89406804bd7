package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/replybus/internal/runtime/envelope"
	loggingpkg "github.com/drblury/replybus/internal/runtime/logging"
	pubsub "github.com/drblury/replybus/transport"
)

// DefaultCloseTimeout bounds how long Close waits for in-flight handlers.
const DefaultCloseTimeout = 10 * time.Second

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// Options configures a Watermill envelope transport.
type Options struct {
	// Local is the address whose inboxes are consumed.
	Local envelope.Address
	// Topics maps addresses to topic names.
	Topics Topics
	// CloseTimeout defaults to DefaultCloseTimeout.
	CloseTimeout time.Duration
	// Setup runs against the router before the inbox handlers are added.
	// Middlewares, plugins and metrics decorators are installed here.
	Setup func(router *message.Router) error
}

// Watermill is an EnvelopeTransport backed by a Watermill router consuming
// the service inbox and the instance inbox of the local address.
type Watermill struct {
	publisher message.Publisher
	pubsub    pubsub.Transport
	router    *message.Router
	topics    Topics
	logger    loggingpkg.ServiceLogger

	mu      sync.RWMutex
	handler EnvelopeHandler

	closeOnce sync.Once
	closeErr  error
}

// NewWatermill wires tr into a router. The returned transport does not
// consume anything until Run is called.
func NewWatermill(tr pubsub.Transport, opts Options, logger loggingpkg.ServiceLogger) (*Watermill, error) {
	if tr.Publisher == nil || tr.Subscriber == nil {
		return nil, errors.New("transport requires a publisher and a subscriber")
	}
	if opts.Local.Service == "" || opts.Local.Instance == "" {
		return nil, fmt.Errorf("local address %q must name a service and an instance", opts.Local)
	}
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: opts.CloseTimeout}, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		return nil, err
	}
	if opts.Setup != nil {
		if err := opts.Setup(router); err != nil {
			return nil, fmt.Errorf("router setup: %w", err)
		}
	}

	w := &Watermill{
		publisher: tr.Publisher,
		pubsub:    tr,
		router:    router,
		topics:    opts.Topics,
		logger:    logger.With(loggingpkg.LogFields{"address": opts.Local.String()}),
	}
	for _, topic := range opts.Topics.Inboxes(opts.Local) {
		router.AddNoPublisherHandler("inbox_"+topic, topic, tr.Subscriber, w.consume)
	}
	return w, nil
}

// Router exposes the underlying router, for example to register metrics.
func (w *Watermill) Router() *message.Router {
	return w.router
}

// OnEnvelope installs the inbound handler.
func (w *Watermill) OnEnvelope(handler EnvelopeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
}

// SendEnvelope publishes env on the inbox topic of env.To.
func (w *Watermill) SendEnvelope(ctx context.Context, env envelope.Envelope) error {
	topic, err := w.topics.For(env.To)
	if err != nil {
		return err
	}
	return w.publisher.Publish(topic, ToMessage(ctx, env))
}

// SendReply addresses reply to the sender of original and correlates it with
// original before publishing.
func (w *Watermill) SendReply(ctx context.Context, original, reply envelope.Envelope) error {
	if original.From == "" {
		return fmt.Errorf("reply to %s: original has no sender", original.ID)
	}
	reply.To = original.From
	reply.CorrelationID = original.ID
	return w.SendEnvelope(ctx, reply)
}

// Run blocks until ctx is cancelled or Close is called.
func (w *Watermill) Run(ctx context.Context) error {
	return routerRun(w.router, ctx)
}

// Running is closed once the router consumes both inboxes.
func (w *Watermill) Running() chan struct{} {
	return w.router.Running()
}

// Close stops the router and closes the underlying publisher and subscriber.
func (w *Watermill) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = errors.Join(w.router.Close(), w.pubsub.Close())
	})
	return w.closeErr
}

// consume always acknowledges: a failed envelope is logged, never redelivered.
func (w *Watermill) consume(msg *message.Message) error {
	ctx, env, err := FromMessage(msg)
	if err != nil {
		w.logger.Error("Dropping malformed message", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
		return nil
	}

	w.mu.RLock()
	handler := w.handler
	w.mu.RUnlock()
	if handler == nil {
		w.logger.Info("Dropping envelope, no handler installed", loggingpkg.LogFields{"id": env.ID, "type": env.Type})
		return nil
	}

	if err := handler(ctx, env); err != nil {
		w.logger.Error("Envelope handler failed", err, loggingpkg.LogFields{
			"id":   env.ID,
			"type": env.Type,
			"from": env.From,
		})
	}
	return nil
}
