package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/replybus/internal/runtime/logging"
)

// HandlerContext describes one handler invocation to hooks.
type HandlerContext struct {
	// Type is the request type being handled.
	Type string
	// Index is the position of the handler among the subscribers of Type.
	Index int
	// RequestID is the id of the request envelope.
	RequestID string
	// From is the address of the requester.
	From    string
	Context context.Context
	// StartedAt is when the handler was invoked.
	StartedAt time.Time
	// Duration is only set in OnHandlerDone and OnHandlerError.
	Duration time.Duration
}

// HandlerHooks are callbacks around every subscriber invocation.
// Nil hooks are skipped.
type HandlerHooks struct {
	OnHandlerStart func(hc HandlerContext)
	OnHandlerDone  func(hc HandlerContext)
	// OnHandlerError receives returned errors and recovered panics.
	OnHandlerError func(hc HandlerContext, err error)
}

// Merge returns hooks that call h first and then other.
func (h HandlerHooks) Merge(other HandlerHooks) HandlerHooks {
	return HandlerHooks{
		OnHandlerStart: chainHooks(h.OnHandlerStart, other.OnHandlerStart),
		OnHandlerDone:  chainHooks(h.OnHandlerDone, other.OnHandlerDone),
		OnHandlerError: chainErrorHooks(h.OnHandlerError, other.OnHandlerError),
	}
}

func chainHooks(a, b func(HandlerContext)) func(HandlerContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(hc HandlerContext) {
		a(hc)
		b(hc)
	}
}

func chainErrorHooks(a, b func(HandlerContext, error)) func(HandlerContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(hc HandlerContext, err error) {
		a(hc, err)
		b(hc, err)
	}
}

// LoggingHooks logs every handler invocation at debug level.
func LoggingHooks(logger loggingpkg.ServiceLogger) HandlerHooks {
	return HandlerHooks{
		OnHandlerStart: func(hc HandlerContext) {
			logger.Debug("Handler started", hookFields(hc))
		},
		OnHandlerDone: func(hc HandlerContext) {
			fields := hookFields(hc)
			fields["duration_ms"] = hc.Duration.Milliseconds()
			logger.Debug("Handler completed", fields)
		},
	}
}

func hookFields(hc HandlerContext) loggingpkg.LogFields {
	return loggingpkg.LogFields{
		"type":    hc.Type,
		"handler": hc.Index,
		"id":      hc.RequestID,
		"from":    hc.From,
	}
}

// runHooked invokes call between the start and done/error hooks.
func (h HandlerHooks) runHooked(hc HandlerContext, call func() error) error {
	hc.StartedAt = time.Now()
	if h.OnHandlerStart != nil {
		h.OnHandlerStart(hc)
	}
	err := call()
	hc.Duration = time.Since(hc.StartedAt)
	if err != nil {
		if h.OnHandlerError != nil {
			h.OnHandlerError(hc, err)
		}
		return err
	}
	if h.OnHandlerDone != nil {
		h.OnHandlerDone(hc)
	}
	return nil
}
