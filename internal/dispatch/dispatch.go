// Package dispatch routes decoded envelopes to the feature session that
// registered interest in their type, and fans connection lifecycle
// transitions out to every subscriber regardless of type filters.
package dispatch

import (
	"sync"

	"classwire/pkg/types"
)

// EventKind identifies a connection lifecycle transition.
type EventKind string

const (
	EventOpen  EventKind = "open"
	EventClose EventKind = "close"
	EventError EventKind = "error"
)

// Event is a connection lifecycle transition broadcast to all modules.
type Event struct {
	Kind   EventKind
	Code   int    // close code, Kind == EventClose only
	Reason string // close reason, Kind == EventClose only
	Err    error  // Kind == EventError only
}

// MessageHandler consumes an envelope routed by type.
type MessageHandler func(*types.Envelope)

// LifecycleHandler consumes a lifecycle event.
type LifecycleHandler func(Event)

// Router holds the type-keyed subscriber registry. Delivery is
// synchronous and in registration order; no reordering or batching.
// Envelopes no module claims are dropped.
type Router struct {
	mu        sync.RWMutex
	handlers  map[string][]MessageHandler
	lifecycle []LifecycleHandler
	delivered int
	dropped   int
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[string][]MessageHandler),
	}
}

// Subscribe registers interest in one or more message types. Matching is
// string equality, not pattern matching.
func (r *Router) Subscribe(handler MessageHandler, msgTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range msgTypes {
		r.handlers[t] = append(r.handlers[t], handler)
	}
}

// SubscribeLifecycle registers for open/close/error broadcasts.
func (r *Router) SubscribeLifecycle(handler LifecycleHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lifecycle = append(r.lifecycle, handler)
}

// Deliver hands an envelope to every subscriber of its type, in the
// order the subscriptions were registered. Handlers run to completion on
// the caller's goroutine, so transport arrival order is delivery order.
func (r *Router) Deliver(env *types.Envelope) {
	r.mu.RLock()
	handlers := r.handlers[env.Type]
	r.mu.RUnlock()

	if len(handlers) == 0 {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		return
	}

	for _, h := range handlers {
		h(env)
	}

	r.mu.Lock()
	r.delivered++
	r.mu.Unlock()
}

// Lifecycle broadcasts a connection transition to all registered
// modules so each can reset or freeze its derived state.
func (r *Router) Lifecycle(ev Event) {
	r.mu.RLock()
	handlers := make([]LifecycleHandler, len(r.lifecycle))
	copy(handlers, r.lifecycle)
	r.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Stats returns delivery counters for monitoring.
func (r *Router) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"delivered":  r.delivered,
		"dropped":    r.dropped,
		"type_count": len(r.handlers),
	}
}
