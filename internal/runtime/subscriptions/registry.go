// Package subscriptions keeps the ordered handler lists per message type.
package subscriptions

import (
	"sort"
	"sync"
)

// Subscription identifies one handler registration so it can be removed later.
type Subscription struct {
	Type string
	id   uint64
}

type registration[H any] struct {
	id      uint64
	handler H
}

// Registry maps a message type to its handlers in registration order.
type Registry[H any] struct {
	mu     sync.RWMutex
	nextID uint64
	byType map[string][]registration[H]
}

// NewRegistry returns an empty registry.
func NewRegistry[H any]() *Registry[H] {
	return &Registry[H]{byType: make(map[string][]registration[H])}
}

// Subscribe appends handler to the list for typ, creating it when needed.
func (r *Registry[H]) Subscribe(typ string, handler H) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.byType[typ] = append(r.byType[typ], registration[H]{id: r.nextID, handler: handler})
	return Subscription{Type: typ, id: r.nextID}
}

// Unsubscribe removes the registration behind sub. The type keeps its (maybe
// empty) list so later dispatches still see it as known.
func (r *Registry[H]) Unsubscribe(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.byType[sub.Type]
	for i, reg := range regs {
		if reg.id != sub.id {
			continue
		}
		remaining := make([]registration[H], 0, len(regs)-1)
		remaining = append(remaining, regs[:i]...)
		remaining = append(remaining, regs[i+1:]...)
		r.byType[sub.Type] = remaining
		return true
	}
	return false
}

// HandlersFor returns a snapshot of the handlers for typ in registration
// order. Unknown types and emptied types both yield an empty slice.
func (r *Registry[H]) HandlersFor(typ string) []H {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.byType[typ]
	handlers := make([]H, len(regs))
	for i, reg := range regs {
		handlers[i] = reg.handler
	}
	return handlers
}

// Count returns the number of handlers registered for typ.
func (r *Registry[H]) Count(typ string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[typ])
}

// Types lists every type that was ever subscribed, sorted.
func (r *Registry[H]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.byType))
	for typ := range r.byType {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}
