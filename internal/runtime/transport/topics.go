package transport

import (
	"fmt"

	"github.com/drblury/replybus/internal/runtime/envelope"
)

// Topics maps addresses onto broker topic names.
type Topics struct {
	Prefix string
}

// Service returns the inbox shared by every instance of service.
func (t Topics) Service(service string) string {
	return t.Prefix + service
}

// Instance returns the inbox of one instance of service.
func (t Topics) Instance(service, instance string) string {
	return t.Prefix + service + "_" + instance
}

// For returns the inbox an envelope addressed to "to" is published on.
func (t Topics) For(to string) (string, error) {
	addr, err := envelope.ParseAddress(to)
	if err != nil {
		return "", fmt.Errorf("resolve topic: %w", err)
	}
	if addr.IsInstance() {
		return t.Instance(addr.Service, addr.Instance), nil
	}
	return t.Service(addr.Service), nil
}

// Inboxes returns the service and instance inboxes of addr.
func (t Topics) Inboxes(addr envelope.Address) []string {
	return []string{t.Service(addr.Service), t.Instance(addr.Service, addr.Instance)}
}
