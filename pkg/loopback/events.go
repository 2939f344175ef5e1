package loopback

import (
	"sync"
	"time"
)

// EventWaiter latches named events for waiters.
//
// Only subscribed events are recorded: a Notify that arrives before
// Subscribe is dropped, so callers must subscribe before the action that
// can trigger the event. Once recorded, an event stays fired.
type EventWaiter struct {
	mu     sync.Mutex
	events map[string]*eventState
}

type eventState struct {
	fired chan struct{}
	once  sync.Once
}

// NewEventWaiter creates an EventWaiter with no subscriptions.
func NewEventWaiter() *EventWaiter {
	return &EventWaiter{events: make(map[string]*eventState)}
}

// Subscribe starts recording name. Subscribing twice is a no-op.
func (w *EventWaiter) Subscribe(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.events[name]; !ok {
		w.events[name] = &eventState{fired: make(chan struct{})}
	}
}

// Notify marks name as fired and wakes every waiter.
// Returns false if name was not subscribed.
func (w *EventWaiter) Notify(name string) bool {
	w.mu.Lock()
	state, ok := w.events[name]
	w.mu.Unlock()
	if !ok {
		return false
	}
	state.once.Do(func() { close(state.fired) })
	return true
}

// Fired reports whether name has been notified since it was subscribed.
func (w *EventWaiter) Fired(name string) bool {
	w.mu.Lock()
	state, ok := w.events[name]
	w.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-state.fired:
		return true
	default:
		return false
	}
}

// Wait blocks until name fires or timeout elapses.
// Returns false on timeout, including for events never subscribed.
func (w *EventWaiter) Wait(name string, timeout time.Duration) bool {
	w.mu.Lock()
	state, ok := w.events[name]
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if !ok {
		<-timer.C
		return false
	}

	select {
	case <-state.fired:
		return true
	case <-timer.C:
		return false
	}
}
