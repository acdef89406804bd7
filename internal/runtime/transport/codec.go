package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/replybus/internal/runtime/envelope"
)

// Metadata keys carrying the envelope header on a Watermill message.
const (
	MetadataTo            = "replybus_to"
	MetadataFrom          = "replybus_from"
	MetadataType          = "replybus_type"
	MetadataCorrelationID = "replybus_correlation_id"
)

// ErrMalformedMessage marks a message that lacks the envelope header.
var ErrMalformedMessage = errors.New("malformed envelope message")

// ToMessage encodes env as a Watermill message and injects the trace context
// of ctx into its metadata.
func ToMessage(ctx context.Context, env envelope.Envelope) *message.Message {
	msg := message.NewMessage(env.ID, env.Body)
	for k, v := range env.Metadata {
		msg.Metadata.Set(k, v)
	}
	msg.Metadata.Set(MetadataTo, env.To)
	msg.Metadata.Set(MetadataFrom, env.From)
	msg.Metadata.Set(MetadataType, env.Type)
	if env.CorrelationID != "" {
		msg.Metadata.Set(MetadataCorrelationID, env.CorrelationID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
	msg.SetContext(ctx)
	return msg
}

// FromMessage decodes an envelope and returns msg's context enriched with the
// propagated trace context. A context that already carries a span, for example
// one started by a tracing middleware, is kept as is.
func FromMessage(msg *message.Message) (context.Context, envelope.Envelope, error) {
	ctx := msg.Context()
	if !trace.SpanContextFromContext(ctx).IsValid() {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Metadata))
	}

	env := envelope.Envelope{
		ID:            msg.UUID,
		To:            msg.Metadata.Get(MetadataTo),
		From:          msg.Metadata.Get(MetadataFrom),
		Type:          msg.Metadata.Get(MetadataType),
		CorrelationID: msg.Metadata.Get(MetadataCorrelationID),
		Body:          msg.Payload,
	}
	switch {
	case env.Type == "":
		return ctx, env, fmt.Errorf("%w: missing %s", ErrMalformedMessage, MetadataType)
	case env.From == "":
		return ctx, env, fmt.Errorf("%w: missing %s", ErrMalformedMessage, MetadataFrom)
	}

	for k, v := range msg.Metadata {
		switch k {
		case MetadataTo, MetadataFrom, MetadataType, MetadataCorrelationID:
			continue
		}
		if env.Metadata == nil {
			env.Metadata = make(map[string]string, len(msg.Metadata))
		}
		env.Metadata[k] = v
	}
	return ctx, env, nil
}
