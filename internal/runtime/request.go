package runtime

import (
	"context"
	"fmt"

	"github.com/drblury/replybus/internal/runtime/envelope"
)

// Handler processes the body of a request envelope. req allows the handler to
// answer the sender; a handler that never replies leaves the requester
// waiting until its timeout. A returned error is logged and counted but is
// not sent back; use req.ReplyErr for that.
type Handler func(ctx context.Context, body []byte, req *Request) error

// Request is the inbound envelope handed to a Handler.
type Request struct {
	bus *Bus
	env envelope.Envelope
}

// Envelope returns a copy of the received envelope.
func (r *Request) Envelope() envelope.Envelope {
	return r.env
}

func (r *Request) ID() string {
	return r.env.ID
}

// From is the "instance@service" address of the sender.
func (r *Request) From() string {
	return r.env.From
}

func (r *Request) Type() string {
	return r.env.Type
}

func (r *Request) Body() []byte {
	return r.env.Body
}

// Decode unmarshals the body into v using the envelope body codec.
func (r *Request) Decode(v any) error {
	return envelope.DecodeBody(r.env.Body, v)
}

// Reply sends body back to the sender as a successful reply. body follows the
// same encoding rules as RequestBuilder.WithBody.
func (r *Request) Reply(ctx context.Context, body any) error {
	payload, err := envelope.EncodeBody(body)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	return r.bus.reply(ctx, r.env, envelope.TypeReply, payload)
}

// ReplyErr sends err back to the sender, which receives it as a *RemoteError.
func (r *Request) ReplyErr(ctx context.Context, err error) error {
	payload, encErr := envelope.EncodeError(err)
	if encErr != nil {
		return fmt.Errorf("encode reply error: %w", encErr)
	}
	return r.bus.reply(ctx, r.env, envelope.TypeReplyErr, payload)
}
