package runtime

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/replybus/internal/runtime/envelope"
	errspkg "github.com/drblury/replybus/internal/runtime/errors"
	loggingpkg "github.com/drblury/replybus/internal/runtime/logging"
)

var errMissingCorrelation = errors.New("reply carries no correlation id")

// OnEnvelope routes one inbound envelope. Replies resolve the matching pending
// request, pings are answered with a pong and requests are dispatched to the
// subscribed handlers. The returned error joins the handler failures only;
// protocol problems are counted and logged instead.
func (b *Bus) OnEnvelope(ctx context.Context, env envelope.Envelope) error {
	b.counters.IncReceived()

	switch kind := env.Kind(); kind {
	case envelope.KindReply, envelope.KindPong:
		b.resolve(env, env.Body, nil)
	case envelope.KindReplyErr:
		b.resolve(env, nil, envelope.DecodeError(env.Body))
	case envelope.KindNoSubscribers:
		b.resolve(env, nil, errspkg.ErrNoSubscribers)
	case envelope.KindPing:
		_ = b.reply(ctx, env, envelope.TypePong, nil)
	case envelope.KindRequest:
		return b.dispatch(ctx, env)
	default:
		b.Logger.Error("Dropping envelope of unknown kind", fmt.Errorf("kind %s", kind), envelopeFields(env))
	}
	return nil
}

func (b *Bus) resolve(env envelope.Envelope, body []byte, err error) {
	if !env.HasCorrelation() {
		b.counters.IncNoCorrelationID()
		b.Logger.Error("Dropping reply", errMissingCorrelation, envelopeFields(env))
		return
	}
	if !b.table.Resolve(env.CorrelationID, body, err) {
		b.counters.IncUnmatched()
		b.Logger.Debug("Reply does not match a pending request", envelopeFields(env))
	}
}

func (b *Bus) dispatch(ctx context.Context, env envelope.Envelope) error {
	handlers := b.subs.HandlersFor(env.Type)
	if len(handlers) == 0 {
		b.counters.IncNoSubscribers()
		b.Logger.Info("No subscribers for request type", envelopeFields(env))
		payload, err := envelope.EncodeError(envelope.NoSubscribersError(env.Type))
		if err != nil {
			b.Logger.Error("Failed to encode no-subscribers error", err, envelopeFields(env))
			return nil
		}
		_ = b.reply(ctx, env, envelope.TypeReplyErr, payload)
		return nil
	}

	ctx, span := b.tracer.Start(ctx, "replybus.dispatch",
		trace.WithAttributes(
			attribute.String("replybus.type", env.Type),
			attribute.String("replybus.from", env.From),
			attribute.Int("replybus.handlers", len(handlers)),
		),
	)
	defer span.End()

	req := &Request{bus: b, env: env}
	var errs []error
	for i, handler := range handlers {
		hc := HandlerContext{Type: env.Type, Index: i, RequestID: env.ID, From: env.From, Context: ctx}
		err := b.invokeHooked(ctx, hc, handler, req)
		if err != nil {
			b.counters.IncHandlerFailures()
			b.Logger.Error("Handler failed", err, loggingpkg.LogFields{
				"type":    env.Type,
				"id":      env.ID,
				"handler": i,
			})
			errs = append(errs, err)
		}
	}

	joined := errors.Join(errs...)
	if joined != nil {
		span.RecordError(joined)
		span.SetStatus(codes.Error, "handler failure")
	}
	return joined
}

// invokeHooked runs one handler between its hooks. A panicking hook is
// reported like a panicking handler.
func (b *Bus) invokeHooked(ctx context.Context, hc HandlerContext, handler Handler, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errspkg.HandlerPanicError{Type: req.Type(), Index: hc.Index, Value: r}
		}
	}()
	return b.hooks.runHooked(hc, func() error {
		return b.invoke(ctx, hc.Index, handler, req)
	})
}

func (b *Bus) invoke(ctx context.Context, index int, handler Handler, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errspkg.HandlerPanicError{Type: req.Type(), Index: index, Value: r}
		}
	}()
	return handler(ctx, req.Body(), req)
}

// reply sends an envelope of typ answering original.
func (b *Bus) reply(ctx context.Context, original envelope.Envelope, typ string, body []byte) error {
	if b.closed.Load() {
		b.counters.IncReplyFailures()
		b.Logger.Debug("Dropping reply on closed bus", envelopeFields(original))
		return errspkg.ErrBusClosed
	}
	if original.From == "" {
		b.counters.IncReplyFailures()
		err := fmt.Errorf("cannot reply to %s without a sender", original.ID)
		b.Logger.Error("Failed to send reply", err, envelopeFields(original))
		return err
	}

	out := envelope.NewReply(b.address.String(), original, typ, body)
	if err := b.transport.SendReply(ctx, original, out); err != nil {
		b.counters.IncReplyFailures()
		sendErr := &errspkg.SendError{ID: out.ID, Target: out.To, Type: typ, Err: err}
		b.Logger.Error("Failed to send reply", sendErr, envelopeFields(out))
		return sendErr
	}
	b.counters.IncRepliesSent()
	return nil
}

func envelopeFields(env envelope.Envelope) loggingpkg.LogFields {
	return loggingpkg.LogFields{
		"id":             env.ID,
		"type":           env.Type,
		"from":           env.From,
		"to":             env.To,
		"correlation_id": env.CorrelationID,
	}
}
