package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired      = sterrors.New("replybus: config is required")
	ErrLoggerRequired      = sterrors.New("replybus: logger is required")
	ErrServiceNameRequired = sterrors.New("replybus: service name is required")
	ErrBusClosed           = sterrors.New("replybus: bus is closed")
	ErrTargetRequired      = sterrors.New("replybus: target service is required")
	ErrTypeRequired        = sterrors.New("replybus: message type is required")
	ErrReservedType        = sterrors.New("replybus: message type is reserved for the reply protocol")
	ErrHandlerRequired     = sterrors.New("replybus: handler function is required")
	ErrDuplicateID         = sterrors.New("replybus: a request with this id is already pending")
	ErrTransportRequired   = sterrors.New("replybus: transport is required")
	ErrBodyTooLarge        = sterrors.New("replybus: body exceeds the transport message size limit")

	// ErrNoSubscribers is reported to a requester when the target has no
	// handler for the request type.
	ErrNoSubscribers = sterrors.New("replybus: no subscribers registered for that type")

	// ErrRequestTimeout resolves a pending request whose reply did not arrive
	// within its timeout.
	ErrRequestTimeout = sterrors.New("replybus: request timed out waiting for a reply")
)

// SendError reports that the transport refused an outbound envelope.
type SendError struct {
	ID     string
	Target string
	Type   string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("replybus: send %s to %q (id %s): %v", e.Type, e.Target, e.ID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// HandlerPanicError wraps a value recovered from a panicking subscriber.
type HandlerPanicError struct {
	Type  string
	Index int
	Value any
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("replybus: handler %d for type %q panicked: %v", e.Index, e.Type, e.Value)
}
