// Package transport connects a bus to a message broker. EnvelopeTransport is
// the narrow capability the bus depends on; Watermill implements it on top of
// any publisher and subscriber pair built by the transport registry.
package transport

import (
	"context"

	"github.com/drblury/replybus/internal/runtime/envelope"
)

// EnvelopeHandler receives every inbound envelope.
type EnvelopeHandler func(ctx context.Context, env envelope.Envelope) error

// EnvelopeTransport sends envelopes and delivers inbound ones to a single
// handler.
type EnvelopeTransport interface {
	// SendEnvelope delivers env to the inbox named by env.To.
	SendEnvelope(ctx context.Context, env envelope.Envelope) error
	// SendReply delivers reply to the sender of original.
	SendReply(ctx context.Context, original, reply envelope.Envelope) error
	// OnEnvelope installs the inbound handler. Call it before Run.
	OnEnvelope(handler EnvelopeHandler)
	// Run consumes inbound envelopes until ctx is cancelled or Close is called.
	Run(ctx context.Context) error
	// Running is closed once the transport consumes its inboxes.
	Running() chan struct{}
	Close() error
}
