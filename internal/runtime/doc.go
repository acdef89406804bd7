/*
Package runtime implements the request/reply bus behind replybus.

# Architecture Overview

A Bus is one addressable participant. It sends typed requests to a service
or to one instance of it, keeps a callback per outstanding request and routes
every inbound envelope either to a waiting callback or to the handlers
subscribed to its type. Everything a Bus needs is owned by it; there is no
package-level state.

# Package Structure

## Bus (bus.go)

Construction, lifecycle and subscriptions. The Bus wires together:
  - an EnvelopeTransport (Watermill router over a registry-built pub/sub)
  - the correlation table of pending requests
  - the subscription registry
  - counters, Prometheus collectors and the HTTP servers exposing them

## Sending (builder.go)

Bus.Send returns an immutable RequestBuilder. Complete registers an optional
callback before handing the envelope to the transport; Await wraps it in a
channel and honours context cancellation. Requests default to the ping type.

## Routing (router.go, request.go)

OnEnvelope classifies each envelope by its Kind:
  - reply and pong resolve the pending request with the body
  - reply_err resolves it with a *envelope.RemoteError
  - no_subscribers resolves it with ErrNoSubscribers
  - ping is answered with an empty pong
  - anything else is a request dispatched to the subscribed handlers

Handlers receive a *Request bound to the envelope, with Reply and ReplyErr
helpers. A panicking or failing handler does not stop the handlers after it.
Requests without subscribers are answered with a no_subscribers reply_err.

## Typed subscriptions (typed.go)

SubscribeJSON and SubscribeProto decode the body before calling the handler.

## Middleware and hooks (middleware.go, hooks.go)

Router middlewares (logging, tracing, router metrics, recovery) run around
inbox consumption. HandlerHooks run around every subscriber invocation.

## Monitoring (metrics.go, webui.go)

Bus counters are exported through a Prometheus collector and /metrics. The
optional WebUI serves the bus address, subscriptions and counters on /api/bus.

# Sub-packages

  - config/: Bus configuration, YAML loading and environment overrides
  - correlation/: Pending request table with optional expiry
  - envelope/: Envelope, addresses, protocol kinds and body codecs
  - errors/: Sentinel errors and error types
  - ids/: ULID message ids and instance ids
  - logging/: Logger interface and Watermill adapters
  - stats/: Counters and their Prometheus collector
  - subscriptions/: Generic type to handler registry
  - transport/: EnvelopeTransport and its Watermill implementation

# Usage Example

	bus := runtime.NewBus(ctx, &config.Config{ServiceName: "billing"}, logger, runtime.Dependencies{})

	bus.Subscribe("invoice.total", func(ctx context.Context, body []byte, req *runtime.Request) error {
		return req.Reply(ctx, map[string]int{"total": 42})
	})

	go bus.Start(ctx)

	body, err := bus.Send("billing").OfType("invoice.total").WithBody(order).Await(ctx)
*/
package runtime
