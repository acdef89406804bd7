// Package correlation tracks outbound requests that are waiting for a reply.
package correlation

import (
	"sync"
	"time"

	errspkg "github.com/drblury/replybus/internal/runtime/errors"
)

// Callback receives the outcome of a request: the reply body on success or
// the error that ended it. It is invoked at most once.
type Callback func(body []byte, err error)

type entry struct {
	callback Callback
	timer    *time.Timer
}

// Table maps request ids to their pending callbacks.
type Table struct {
	mu      sync.Mutex
	pending map[string]*entry
	// closedErr is set by Close and rejects later registrations.
	closedErr error

	// OnExpired is called after a request was resolved by its timeout.
	OnExpired func(id string)
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{pending: make(map[string]*entry)}
}

// Register stores cb under id. With a positive timeout the entry resolves
// itself with ErrRequestTimeout once the timeout elapses. A closed table
// rejects the registration with the error it was closed with.
func (t *Table) Register(id string, cb Callback, timeout time.Duration) error {
	if cb == nil {
		return errspkg.ErrHandlerRequired
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closedErr != nil {
		return t.closedErr
	}
	if _, ok := t.pending[id]; ok {
		return errspkg.ErrDuplicateID
	}
	e := &entry{callback: cb}
	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() { t.expire(id, e) })
	}
	t.pending[id] = e
	return nil
}

// Resolve removes the entry for id and then invokes its callback. It reports
// false when nothing was pending under id.
func (t *Table) Resolve(id string, body []byte, err error) bool {
	e, ok := t.take(id, nil)
	if !ok {
		return false
	}
	e.callback(body, err)
	return true
}

// Cancel drops the entry for id without invoking its callback.
func (t *Table) Cancel(id string) bool {
	_, ok := t.take(id, nil)
	return ok
}

// Len returns the number of pending requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close resolves every pending request with err and leaves the table empty.
// Later calls to Register fail with err.
func (t *Table) Close(err error) {
	t.mu.Lock()
	if t.closedErr == nil {
		t.closedErr = err
	}
	drained := t.pending
	t.pending = make(map[string]*entry)
	t.mu.Unlock()

	for _, e := range drained {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.callback(nil, err)
	}
}

// take removes id from the table. When want is set the entry is only removed
// if it is still that same registration.
func (t *Table) take(id string, want *entry) (*entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.pending[id]
	if !ok || (want != nil && e != want) {
		return nil, false
	}
	delete(t.pending, id)
	if e.timer != nil {
		e.timer.Stop()
	}
	return e, true
}

func (t *Table) expire(id string, e *entry) {
	if _, ok := t.take(id, e); !ok {
		return
	}
	e.callback(nil, errspkg.ErrRequestTimeout)
	if t.OnExpired != nil {
		t.OnExpired(id)
	}
}
