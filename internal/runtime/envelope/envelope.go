// Package envelope defines the addressed, typed message unit exchanged with a
// transport, together with the fixed vocabulary of reply-protocol roles.
package envelope

import (
	"fmt"
	"strings"

	idspkg "github.com/drblury/replybus/internal/runtime/ids"
)

// Protocol type tags. Every other type value names an application subscription.
const (
	TypePing          = "ping"
	TypePong          = "pong"
	TypeReply         = "reply"
	TypeReplyErr      = "reply_err"
	TypeNoSubscribers = "no_subscribers"
)

// Kind is the protocol role an envelope plays, derived from its type tag.
type Kind int

const (
	// KindRequest is an application request addressed to subscribers.
	KindRequest Kind = iota
	KindPing
	KindPong
	KindReply
	KindReplyErr
	KindNoSubscribers
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return TypePing
	case KindPong:
		return TypePong
	case KindReply:
		return TypeReply
	case KindReplyErr:
		return TypeReplyErr
	case KindNoSubscribers:
		return TypeNoSubscribers
	case KindRequest:
		return "request"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsReply reports whether the kind answers an earlier request and therefore
// resolves a pending correlation.
func (k Kind) IsReply() bool {
	switch k {
	case KindPong, KindReply, KindReplyErr, KindNoSubscribers:
		return true
	}
	return false
}

// KindOf classifies a type tag.
func KindOf(typ string) Kind {
	switch typ {
	case TypePing:
		return KindPing
	case TypePong:
		return KindPong
	case TypeReply:
		return KindReply
	case TypeReplyErr:
		return KindReplyErr
	case TypeNoSubscribers:
		return KindNoSubscribers
	}
	return KindRequest
}

// IsReserved reports whether typ may not be used as an application type,
// either for fresh requests or for subscriptions. Ping is a request role and
// stays sendable.
func IsReserved(typ string) bool {
	return KindOf(typ).IsReply()
}

// Envelope is the unit handed to and received from the transport.
type Envelope struct {
	To            string
	From          string
	Type          string
	ID            string
	CorrelationID string
	Body          []byte
	// Metadata carries transport headers such as trace context.
	Metadata map[string]string
}

// Kind returns the protocol role of the envelope.
func (e Envelope) Kind() Kind {
	return KindOf(e.Type)
}

// HasCorrelation reports whether the envelope answers another envelope.
func (e Envelope) HasCorrelation() bool {
	return e.CorrelationID != ""
}

// NewRequest builds a fresh request. It never carries a correlation id.
func NewRequest(from, to, typ string, body []byte) Envelope {
	return Envelope{
		To:   to,
		From: from,
		Type: typ,
		ID:   idspkg.NewMessageID(),
		Body: body,
	}
}

// NewReply builds an envelope answering original. The reply is addressed to
// the originating instance and correlated to the original id.
func NewReply(from string, original Envelope, typ string, body []byte) Envelope {
	return Envelope{
		To:            original.From,
		From:          from,
		Type:          typ,
		ID:            idspkg.NewMessageID(),
		CorrelationID: original.ID,
		Body:          body,
	}
}

// Address identifies a service, optionally narrowed to one of its instances.
// Its string form is "instance@service", or just "service".
type Address struct {
	Service  string
	Instance string
}

// ParseAddress splits s on the last '@'. A string without '@' addresses the
// service as a whole.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	idx := strings.LastIndex(s, "@")
	if idx < 0 {
		return Address{Service: s}, nil
	}
	addr := Address{Instance: s[:idx], Service: s[idx+1:]}
	if addr.Service == "" {
		return Address{}, fmt.Errorf("address %q has no service", s)
	}
	if addr.Instance == "" {
		return Address{}, fmt.Errorf("address %q has an empty instance", s)
	}
	return addr, nil
}

func (a Address) String() string {
	if a.Instance == "" {
		return a.Service
	}
	return a.Instance + "@" + a.Service
}

// IsInstance reports whether the address targets one specific instance.
func (a Address) IsInstance() bool {
	return a.Instance != ""
}
