package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	configpkg "github.com/drblury/replybus/internal/runtime/config"
	"github.com/drblury/replybus/internal/runtime/correlation"
	"github.com/drblury/replybus/internal/runtime/envelope"
	errspkg "github.com/drblury/replybus/internal/runtime/errors"
	idspkg "github.com/drblury/replybus/internal/runtime/ids"
	loggingpkg "github.com/drblury/replybus/internal/runtime/logging"
	"github.com/drblury/replybus/internal/runtime/stats"
	"github.com/drblury/replybus/internal/runtime/subscriptions"
	transportpkg "github.com/drblury/replybus/internal/runtime/transport"
	pubsub "github.com/drblury/replybus/transport"
)

const (
	metricsNamespace = "replybus"
	tracerName       = "github.com/drblury/replybus"
)

// Dependencies holds the optional collaborators a Bus can use.
// Leave fields nil to get the defaults.
type Dependencies struct {
	// Transport replaces the Watermill transport entirely. Router middlewares
	// and router metrics are not applied to it.
	Transport transportpkg.EnvelopeTransport
	// TransportFactory builds the publisher and subscriber pair. Defaults to
	// the transport registry.
	TransportFactory transportpkg.Factory
	// Middlewares are appended after the default middleware chain.
	Middlewares []MiddlewareRegistration
	// DisableDefaultMiddlewares skips registering the default middleware chain.
	DisableDefaultMiddlewares bool
	// SignalHandling closes the bus router on SIGINT/SIGTERM.
	SignalHandling bool
	// Registerer receives the bus metrics. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// TracerProvider defaults to the global OpenTelemetry provider.
	TracerProvider trace.TracerProvider
	// Hooks run around every subscriber invocation.
	Hooks HandlerHooks
}

// Bus is one participant on the message bus. It owns a correlation table of
// outstanding requests, a registry of subscriptions and the statistics of
// everything it sent and received.
type Bus struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	address      envelope.Address
	transport    transportpkg.EnvelopeTransport
	router       *message.Router
	capabilities pubsub.Capabilities

	table    *correlation.Table
	subs     *subscriptions.Registry[Handler]
	counters stats.Counters
	hooks    HandlerHooks

	limiter    *rate.Limiter
	tracer     trace.Tracer
	registerer prometheus.Registerer
	collector  *stats.Collector
	http       *httpServers

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewBus constructs a Bus and panics on configuration errors. Register
// subscriptions on the returned Bus before calling Start.
func NewBus(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) *Bus {
	b, err := TryNewBus(ctx, conf, log, deps)
	if err != nil {
		panic(err)
	}
	return b
}

// TryNewBus constructs a Bus and reports configuration and transport errors.
func TryNewBus(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) (*Bus, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if strings.TrimSpace(conf.ServiceName) == "" {
		return nil, errspkg.ErrServiceNameRequired
	}

	normalized := conf.WithDefaults()
	if normalized.InstanceID == "" {
		normalized.InstanceID = idspkg.NewInstanceID()
	}
	if err := normalized.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	b := &Bus{
		Conf:       &normalized,
		address:    envelope.Address{Service: normalized.ServiceName, Instance: normalized.InstanceID},
		table:      correlation.NewTable(),
		subs:       subscriptions.NewRegistry[Handler](),
		registerer: deps.Registerer,
		hooks:      deps.Hooks,
	}
	b.Logger = log.With(loggingpkg.LogFields{"bus": b.address.String()})
	b.Logger.Info("Creating bus", loggingpkg.LogFields{
		"pubsub_system": normalized.PubSubSystem,
		"config":        normalized,
	})

	if b.registerer == nil {
		b.registerer = prometheus.DefaultRegisterer
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	b.tracer = tp.Tracer(tracerName)

	if normalized.SendRateLimit > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(normalized.SendRateLimit), normalized.SendBurst)
	}
	b.table.OnExpired = func(id string) {
		b.counters.IncExpired()
		b.Logger.Info("Request expired without reply", loggingpkg.LogFields{"id": id})
	}

	transport, err := b.buildTransport(ctx, deps)
	if err != nil {
		return nil, err
	}
	b.transport = transport
	b.transport.OnEnvelope(b.OnEnvelope)

	if normalized.MetricsEnabled {
		if err := b.registerMetrics(); err != nil {
			_ = b.transport.Close()
			return nil, err
		}
	}
	b.registerWebUI()
	return b, nil
}

func (b *Bus) buildTransport(ctx context.Context, deps Dependencies) (transportpkg.EnvelopeTransport, error) {
	if deps.Transport != nil {
		return deps.Transport, nil
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	tr, err := factory.Build(ctx, b.Conf, loggingpkg.NewWatermillAdapter(b.Logger))
	if err != nil {
		return nil, fmt.Errorf("build %s transport: %w", b.Conf.PubSubSystem, err)
	}
	b.capabilities = pubsub.GetCapabilities(b.Conf.PubSubSystem)

	w, err := transportpkg.NewWatermill(tr, transportpkg.Options{
		Local:  b.address,
		Topics: transportpkg.Topics{Prefix: b.Conf.TopicPrefix},
		Setup: func(router *message.Router) error {
			b.router = router
			if deps.SignalHandling {
				router.AddPlugin(plugin.SignalsHandler)
			}
			return b.registerConfiguredMiddlewares(deps)
		},
	}, b.Logger)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	return w, nil
}

func (b *Bus) registerConfiguredMiddlewares(deps Dependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := b.registerMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

// Address returns the "instance@service" address replies are sent to.
func (b *Bus) Address() string {
	return b.address.String()
}

// Capabilities describes the transport the bus was built on. It is empty for
// a transport supplied through Dependencies.Transport.
func (b *Bus) Capabilities() pubsub.Capabilities {
	return b.capabilities
}

// Start serves the metrics endpoint, if configured, and consumes envelopes
// until ctx is cancelled or Close is called.
func (b *Bus) Start(ctx context.Context) error {
	if b.closed.Load() {
		return errspkg.ErrBusClosed
	}
	if caps := b.capabilities; caps.Name != "" && !caps.SharedServiceInbox {
		b.Logger.Info("Service inbox is not shared between replicas, requests to the service reach every instance", loggingpkg.LogFields{
			"transport": caps.Name,
			"service":   b.address.Service,
		})
	}
	b.startHTTPServers()
	return b.transport.Run(ctx)
}

// Running is closed once the bus consumes its inboxes.
func (b *Bus) Running() chan struct{} {
	return b.transport.Running()
}

// Close stops the transport and resolves every pending request with
// ErrBusClosed. It is safe to call more than once.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		errs := []error{b.transport.Close()}
		b.table.Close(errspkg.ErrBusClosed)
		errs = append(errs, b.stopHTTPServers())
		if b.collector != nil {
			b.registerer.Unregister(b.collector)
		}
		b.closeErr = errors.Join(errs...)
		b.Logger.Info("Bus closed", nil)
	})
	return b.closeErr
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() stats.Snapshot {
	return b.counters.Snapshot(b.table.Len())
}

// Subscribe appends handler to the handlers of typ. Handlers of one type run
// in subscription order.
func (b *Bus) Subscribe(typ string, handler Handler) (subscriptions.Subscription, error) {
	if typ == "" {
		return subscriptions.Subscription{}, errspkg.ErrTypeRequired
	}
	if envelope.IsReserved(typ) || typ == envelope.TypePing {
		return subscriptions.Subscription{}, fmt.Errorf("%w: %q", errspkg.ErrReservedType, typ)
	}
	if handler == nil {
		return subscriptions.Subscription{}, errspkg.ErrHandlerRequired
	}
	sub := b.subs.Subscribe(typ, handler)
	b.Logger.Debug("Subscribed", loggingpkg.LogFields{"type": typ, "handlers": b.subs.Count(typ)})
	return sub, nil
}

// Unsubscribe removes the handler behind sub. It reports whether it was
// still registered.
func (b *Bus) Unsubscribe(sub subscriptions.Subscription) bool {
	return b.subs.Unsubscribe(sub)
}

// SubscribedTypes lists the types with at least one subscription ever made.
func (b *Bus) SubscribedTypes() []string {
	return b.subs.Types()
}

func (b *Bus) waitForSendSlot(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}
