// Package eventbus provides implementations of the EventBus interface.
// This package contains the synchronous event bus implementation.
package eventbus

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// ErrClosed is returned by Close when the bus was already closed.
var ErrClosed = errors.New("event bus already closed")

// SyncEventBus is a synchronous implementation of the EventBus interface.
// Events are delivered to handlers synchronously in the order they were subscribed,
// type-specific handlers first, then wildcard handlers.
//
// Thread-safety: This implementation is thread-safe. Multiple goroutines can
// publish events and subscribe/unsubscribe handlers concurrently. Callers that need
// delivery order to match mutation order must serialize their own Publish calls.
type SyncEventBus struct {
	logger *slog.Logger

	// subscribers map event types to their subscriptions
	subscribers map[domain.EventType][]subscription

	// allSubscribers contains handlers that receive all events
	allSubscribers []subscription

	// mu protects every field above and closed
	mu sync.RWMutex

	closed bool
}

// a subscription represents a single event subscription.
type subscription struct {
	id      domain.SubscriptionID
	handler domain.EventHandler
}

// NewSyncEventBus creates a new synchronous event bus.
func NewSyncEventBus() *SyncEventBus {
	return &SyncEventBus{
		subscribers: make(map[domain.EventType][]subscription),
	}
}

// SetLogger sets the logger for this event bus.
// This should be called after construction before using the event bus.
func (bus *SyncEventBus) SetLogger(logger *slog.Logger) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.logger = logger
}

// Publish publishes an event to all subscribers of that event type.
//
// If the event bus is closed, this method does nothing.
//
// Panics in handlers are recovered and logged, but do not stop other handlers
// from being called.
func (bus *SyncEventBus) Publish(event domain.Event) {
	if event == nil {
		return
	}

	bus.mu.RLock()
	if bus.closed {
		bus.mu.RUnlock()
		return
	}

	// Snapshot the handler lists so handlers may unsubscribe while being called
	typeSubscribers := append([]subscription(nil), bus.subscribers[event.Type()]...)
	wildcardSubscribers := append([]subscription(nil), bus.allSubscribers...)
	logger := bus.logger

	bus.mu.RUnlock()

	for _, sub := range typeSubscribers {
		callHandler(logger, sub, event)
	}
	for _, sub := range wildcardSubscribers {
		callHandler(logger, sub, event)
	}
}

// callHandler calls an event handler and recovers from panics.
func callHandler(logger *slog.Logger, sub subscription, event domain.Event) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("event handler panicked",
				slog.Any("panic", r),
				slog.String("event_type", string(event.Type())),
				slog.String("subscription", string(sub.id)))
		}
	}()

	sub.handler(event)
}

// Subscribe registers a handler for events of the specified type.
// Returns a unique subscription ID that can be used to unsubscribe.
func (bus *SyncEventBus) Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID {
	return bus.add(eventType, handler, false)
}

// SubscribeAll registers a handler that receives all events regardless of type.
func (bus *SyncEventBus) SubscribeAll(handler domain.EventHandler) domain.SubscriptionID {
	return bus.add("", handler, true)
}

func (bus *SyncEventBus) add(eventType domain.EventType, handler domain.EventHandler, wildcard bool) domain.SubscriptionID {
	if handler == nil {
		panic("event handler cannot be nil")
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		panic("cannot subscribe to closed event bus")
	}

	sub := subscription{handler: handler}
	if wildcard {
		sub.id = domain.SubscriptionID("sub-all-" + uuid.NewString())
		bus.allSubscribers = append(bus.allSubscribers, sub)
	} else {
		sub.id = domain.SubscriptionID("sub-" + uuid.NewString())
		bus.subscribers[eventType] = append(bus.subscribers[eventType], sub)
	}

	return sub.id
}

// Unsubscribe removes a previously registered event handler.
// Remaining handlers keep their relative order.
func (bus *SyncEventBus) Unsubscribe(id domain.SubscriptionID) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	for eventType, subs := range bus.subscribers {
		if kept, found := without(subs, id); found {
			bus.subscribers[eventType] = kept
			return
		}
	}

	if kept, found := without(bus.allSubscribers, id); found {
		bus.allSubscribers = kept
	}
}

// without returns subs minus the subscription with id, preserving order.
func without(subs []subscription, id domain.SubscriptionID) ([]subscription, bool) {
	for i, sub := range subs {
		if sub.id == id {
			kept := make([]subscription, 0, len(subs)-1)
			kept = append(kept, subs[:i]...)
			return append(kept, subs[i+1:]...), true
		}
	}
	return subs, false
}

// HasSubscribers returns true if there are any active subscriptions for the given event type.
func (bus *SyncEventBus) HasSubscribers(eventType domain.EventType) bool {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	return len(bus.subscribers[eventType]) > 0 || len(bus.allSubscribers) > 0
}

// Close shuts down the event bus and clears all subscriptions.
//
// Returns ErrClosed if already closed.
func (bus *SyncEventBus) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		return ErrClosed
	}

	bus.closed = true
	bus.subscribers = make(map[domain.EventType][]subscription)
	bus.allSubscribers = nil

	return nil
}

// SubscriberCount returns the number of active subscriptions for debugging.
// This counts both type-specific and wildcard subscriptions.
func (bus *SyncEventBus) SubscriberCount() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	count := len(bus.allSubscribers)
	for _, subs := range bus.subscribers {
		count += len(subs)
	}
	return count
}

// Verify that SyncEventBus implements the EventBus interface
var _ ports.EventBus = (*SyncEventBus)(nil)
