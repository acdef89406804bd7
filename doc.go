// Package replybus is a request/reply bus on top of Watermill. Every bus is an
// addressable participant named instance@service: it sends typed requests to a
// service or to one instance of it, and answers requests addressed to it with
// the handlers subscribed to their type.
//
// The target transport (Go Channels, Kafka, RabbitMQ, NATS, AWS SNS/SQS or
// HTTP) is read from Config. Each bus consumes two inboxes, one shared by all
// replicas of its service and one private to its instance, and replies are
// always delivered to the private inbox of the sender.
//
// A minimal setup fills Config, creates a Bus, subscribes handlers and calls
// Start:
//
//	bus := replybus.NewBus(ctx, &replybus.Config{ServiceName: "pricing"}, logger, replybus.Dependencies{})
//	replybus.SubscribeJSON(bus, "quote", func(ctx context.Context, q Quote, req *replybus.Request) error {
//		return req.Reply(ctx, price(q))
//	})
//	go bus.Start(ctx)
//
//	body, err := client.Send("pricing").OfType("quote").WithBody(q).Await(ctx)
//
// # Protocol
//
// Requests carry a caller-chosen type. The types ping, pong, reply, reply_err
// and no_subscribers are reserved: a ping is answered with a pong, a request
// nobody subscribed to is answered with a no_subscribers reply_err, and a
// reply resolves exactly one pending callback through its correlation id.
//
// # Middleware and hooks
//
// The default router chain logs consumed envelopes, opens OpenTelemetry spans,
// records Watermill router metrics and recovers panics. Custom middleware is
// added via Dependencies.Middlewares. HandlerHooks provide OnHandlerStart,
// OnHandlerDone and OnHandlerError callbacks around every subscriber.
//
// # Monitoring
//
// Bus.Stats returns counters for sent, received and failed envelopes. They are
// exported to Prometheus when MetricsEnabled is set, and the optional WebUI
// serves the address, subscriptions and counters on /api/bus.
package replybus
