package runtime

import (
	"errors"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	loggingpkg "github.com/drblury/replybus/internal/runtime/logging"
	transportpkg "github.com/drblury/replybus/internal/runtime/transport"
)

// MiddlewareBuilder constructs a router middleware for the supplied bus.
// Returning a nil middleware skips the registration.
type MiddlewareBuilder func(*Bus) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware should be registered on the
// router consuming the bus inboxes.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the standard chain used by the Bus constructor.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		LogEnvelopesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RecovererMiddleware(),
	}
}

// LogEnvelopesMiddleware logs the header of every consumed envelope at debug level.
func LogEnvelopesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_envelopes",
		Builder: func(b *Bus) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = b.Logger
			}
			if l == nil {
				return nil, errors.New("log envelopes middleware requires a logger")
			}
			return logEnvelopesMiddleware(l), nil
		},
	}
}

// TracerMiddleware wraps envelope consumption in an OpenTelemetry span that
// continues the trace propagated by the sender.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(b *Bus) (message.HandlerMiddleware, error) {
			return tracerMiddleware(b.tracer), nil
		},
	}
}

// MetricsMiddleware registers Watermill's Prometheus router metrics when
// metrics are enabled.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(b *Bus) (message.HandlerMiddleware, error) {
			if !b.Conf.MetricsEnabled || b.router == nil {
				return nil, nil
			}
			metricsBuilder := metrics.NewPrometheusMetricsBuilder(b.registerer, metricsNamespace, b.Conf.PubSubSystem)
			metricsBuilder.AddPrometheusRouterMetrics(b.router)
			return nil, nil
		},
	}
}

// RecovererMiddleware converts panics outside the subscriber isolation into
// handler errors.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// registerMiddleware attaches the supplied middleware to the bus router.
func (b *Bus) registerMiddleware(reg MiddlewareRegistration) error {
	if b.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case reg.Middleware != nil:
		mw = reg.Middleware
	case reg.Builder != nil:
		var err error
		mw, err = reg.Builder(b)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}
	b.router.AddMiddleware(mw)
	return nil
}

func logEnvelopesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Consuming envelope", loggingpkg.LogFields{
				"message_uuid":   msg.UUID,
				"type":           msg.Metadata.Get(transportpkg.MetadataType),
				"from":           msg.Metadata.Get(transportpkg.MetadataFrom),
				"correlation_id": msg.Metadata.Get(transportpkg.MetadataCorrelationID),
				"size":           len(msg.Payload),
			})
			return h(msg)
		}
	}
}

func tracerMiddleware(tracer trace.Tracer) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			parent := otel.GetTextMapPropagator().Extract(msg.Context(), propagation.MapCarrier(msg.Metadata))
			ctx, span := tracer.Start(
				parent,
				"replybus.consume",
				trace.WithSpanKind(trace.SpanKindConsumer),
			)
			defer span.End()
			msg.SetContext(ctx)

			span.SetAttributes(
				attribute.String("messaging.message.id", msg.UUID),
				attribute.String("replybus.type", msg.Metadata.Get(transportpkg.MetadataType)),
				attribute.String("replybus.from", msg.Metadata.Get(transportpkg.MetadataFrom)),
			)
			return h(msg)
		}
	}
}
