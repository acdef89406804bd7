package runtime

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/replybus/internal/runtime/correlation"
	"github.com/drblury/replybus/internal/runtime/envelope"
	errspkg "github.com/drblury/replybus/internal/runtime/errors"
	loggingpkg "github.com/drblury/replybus/internal/runtime/logging"
)

// RequestBuilder accumulates the parameters of one outbound request. It is a
// value: every With method returns a modified copy, so a partially built
// request can be reused as a template.
type RequestBuilder struct {
	bus        *Bus
	target     string
	typ        string
	body       any
	timeout    time.Duration
	hasTimeout bool
}

// Send starts a request to target, either "service" or "instance@service".
// Without OfType the request is a ping.
func (b *Bus) Send(target string) RequestBuilder {
	return RequestBuilder{bus: b, target: target, typ: envelope.TypePing}
}

// OfType sets the message type the target subscribed to.
func (r RequestBuilder) OfType(typ string) RequestBuilder {
	r.typ = typ
	return r
}

// WithBody sets the request body. []byte and json.RawMessage are sent as is,
// protobuf messages as protojson and anything else as JSON.
func (r RequestBuilder) WithBody(body any) RequestBuilder {
	r.body = body
	return r
}

// WithTimeout overrides Config.PendingTimeout for this request. Zero waits for
// a reply indefinitely.
func (r RequestBuilder) WithTimeout(d time.Duration) RequestBuilder {
	r.timeout = d
	r.hasTimeout = true
	return r
}

// Complete sends the request. A non-nil cb is registered before sending and
// is invoked exactly once with the reply body or the error that ended the
// request. A send failure resolves cb and is also returned.
func (r RequestBuilder) Complete(ctx context.Context, cb correlation.Callback) error {
	_, err := r.send(ctx, cb)
	return err
}

// Await sends the request and blocks until the reply arrives or ctx is done.
// A cancelled wait removes the pending request, so a late reply is counted as
// unmatched.
func (r RequestBuilder) Await(ctx context.Context) ([]byte, error) {
	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	id, err := r.send(ctx, func(body []byte, err error) {
		done <- result{body: body, err: err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case res := <-done:
		return res.body, res.err
	case <-ctx.Done():
		if r.bus.table.Cancel(id) {
			return nil, ctx.Err()
		}
		// Resolved concurrently with the cancellation.
		res := <-done
		return res.body, res.err
	}
}

func (r RequestBuilder) send(ctx context.Context, cb correlation.Callback) (string, error) {
	b := r.bus
	if b == nil || b.closed.Load() {
		return "", errspkg.ErrBusClosed
	}
	if r.target == "" {
		return "", errspkg.ErrTargetRequired
	}
	if _, err := envelope.ParseAddress(r.target); err != nil {
		return "", fmt.Errorf("invalid target: %w", err)
	}
	if r.typ == "" {
		return "", errspkg.ErrTypeRequired
	}
	if envelope.IsReserved(r.typ) {
		return "", fmt.Errorf("%w: %q", errspkg.ErrReservedType, r.typ)
	}

	body, err := envelope.EncodeBody(r.body)
	if err != nil {
		return "", err
	}
	if !b.capabilities.Fits(len(body)) {
		return "", fmt.Errorf("%w: %d bytes, %s allows %d", errspkg.ErrBodyTooLarge, len(body), b.capabilities.Name, b.capabilities.MaxMessageSize)
	}

	env := envelope.NewRequest(b.address.String(), r.target, r.typ, body)

	ctx, span := b.tracer.Start(ctx, "replybus.send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", env.ID),
			attribute.String("replybus.type", env.Type),
			attribute.String("replybus.to", env.To),
		),
	)
	defer span.End()

	if cb != nil {
		timeout := b.Conf.PendingTimeout
		if r.hasTimeout {
			timeout = r.timeout
		}
		if err := b.table.Register(env.ID, cb, timeout); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "register")
			return "", err
		}
	}

	err = b.waitForSendSlot(ctx)
	if err == nil {
		err = b.transport.SendEnvelope(ctx, env)
	}
	if err != nil {
		b.counters.IncSendFailed()
		sendErr := &errspkg.SendError{ID: env.ID, Target: env.To, Type: env.Type, Err: err}
		span.RecordError(sendErr)
		span.SetStatus(codes.Error, "send")
		b.Logger.Error("Failed to send request", sendErr, envelopeFields(env))
		if cb != nil {
			b.table.Resolve(env.ID, nil, sendErr)
		}
		return "", sendErr
	}

	b.counters.IncSent()
	b.Logger.Trace("Request sent", loggingpkg.LogFields{"id": env.ID, "type": env.Type, "to": env.To})
	return env.ID, nil
}

// Ping sends a ping to target and returns the round-trip time of the pong.
func (b *Bus) Ping(ctx context.Context, target string) (time.Duration, error) {
	start := time.Now()
	if _, err := b.Send(target).Await(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
