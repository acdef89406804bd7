package runtime

import (
	"context"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"

	"github.com/drblury/replybus/internal/runtime/envelope"
	errspkg "github.com/drblury/replybus/internal/runtime/errors"
	"github.com/drblury/replybus/internal/runtime/subscriptions"
)

// JSONHandler receives a request body decoded into T.
type JSONHandler[T any] func(ctx context.Context, body T, req *Request) error

// ProtoHandler receives a request body decoded into a fresh protobuf message.
type ProtoHandler[T proto.Message] func(ctx context.Context, body T, req *Request) error

// SubscribeJSON subscribes a handler whose body is decoded from JSON. A body
// that does not decode is answered with an invalid_body error and the handler
// is not called.
func SubscribeJSON[T any](b *Bus, typ string, handler JSONHandler[T]) (subscriptions.Subscription, error) {
	if b == nil {
		return subscriptions.Subscription{}, errspkg.ErrBusClosed
	}
	if handler == nil {
		return subscriptions.Subscription{}, errspkg.ErrHandlerRequired
	}
	return b.Subscribe(typ, func(ctx context.Context, body []byte, req *Request) error {
		var payload T
		if err := envelope.DecodeBody(body, &payload); err != nil {
			return rejectInvalidBody(ctx, req, err)
		}
		return handler(ctx, payload, req)
	})
}

// SubscribeProto subscribes a handler whose body is decoded from protojson.
// T must be a pointer to a generated message.
func SubscribeProto[T proto.Message](b *Bus, typ string, handler ProtoHandler[T]) (subscriptions.Subscription, error) {
	if b == nil {
		return subscriptions.Subscription{}, errspkg.ErrBusClosed
	}
	if handler == nil {
		return subscriptions.Subscription{}, errspkg.ErrHandlerRequired
	}
	msgType := reflect.TypeOf((*T)(nil)).Elem()
	if msgType.Kind() != reflect.Ptr {
		return subscriptions.Subscription{}, fmt.Errorf("proto subscription for %q needs a pointer message type, got %s", typ, msgType)
	}

	return b.Subscribe(typ, func(ctx context.Context, body []byte, req *Request) error {
		payload, ok := reflect.New(msgType.Elem()).Interface().(T)
		if !ok {
			return fmt.Errorf("unexpected message type %s", msgType)
		}
		if err := envelope.DecodeBody(body, payload); err != nil {
			return rejectInvalidBody(ctx, req, err)
		}
		return handler(ctx, payload, req)
	})
}

func rejectInvalidBody(ctx context.Context, req *Request, cause error) error {
	remote := &envelope.RemoteError{Code: envelope.CodeInvalidBody, Message: cause.Error()}
	if err := req.ReplyErr(ctx, remote); err != nil {
		return fmt.Errorf("decode %s body: %w (reply failed: %v)", req.Type(), cause, err)
	}
	return fmt.Errorf("decode %s body: %w", req.Type(), cause)
}
