package util

import (
	"sync"
)

// Event is a one-shot notification carrying the error, if any, that caused
// it. Waiters block until the first Notify; later Notify calls are ignored.
type Event struct {
	notified bool
	err      error
	done     chan struct{}
	c        *sync.Cond
}

func NewEvent() *Event {
	return &Event{
		done: make(chan struct{}),
		c:    sync.NewCond(&sync.Mutex{}),
	}
}

// Notify fires the event with err. Only the first call has any effect.
func (e *Event) Notify(err error) {
	e.c.L.Lock()
	defer e.c.L.Unlock()
	if !e.notified {
		e.notified = true
		e.err = err
		close(e.done)
		e.c.Broadcast()
	}
}

// Wait blocks until the event fires and returns its error.
func (e *Event) Wait() error {
	e.c.L.Lock()
	defer e.c.L.Unlock()
	for !e.notified {
		e.c.Wait()
	}
	return e.err
}

// Done returns a channel closed when the event fires, for use in select.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

func (e *Event) HasBeenNotified() bool {
	e.c.L.Lock()
	defer e.c.L.Unlock()
	return e.notified
}

// Err returns the error the event fired with, or nil if it has not fired.
func (e *Event) Err() error {
	e.c.L.Lock()
	defer e.c.L.Unlock()
	return e.err
}
