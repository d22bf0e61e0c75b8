// Package ports define the EventBus interface for event-driven communication.
// The event bus is how snapshots and session events reach observers.
package ports

import (
	"github.com/tejashwikalptaru/mantra/internal/domain"
)

// EventBus is the interface for publishing and subscribing to events.
//
// The event bus decouples event producers (the session engine) from event consumers
// (console, metrics, logging). Subscribers don't know about publishers.
//
// Thread-safety: Implementations must be thread-safe as events may be published and
// subscribed from multiple goroutines simultaneously.
//
// Example usage:
//
//	// In the engine: publish a snapshot change
//	bus.Publish(domain.NewStateChangedEvent(snapshot, previous))
//
//	// In the console: react to it
//	subID := bus.Subscribe(domain.EventStateChanged, func(event domain.Event) {
//	    e := event.(domain.StateChangedEvent)
//	    render(e.Snapshot)
//	})
//
//	// Later: Unsubscribe
//	bus.Unsubscribe(subID)
type EventBus interface {
	// Publish publishes an event to all subscribers of that event type.
	// Synchronous implementations deliver in subscription order before returning.
	//
	// Handlers must not publish into the same bus from inside a handler for the
	// snapshot event, and should process events quickly.
	Publish(event domain.Event)

	// Subscribe registers a handler for events of the specified type.
	// Each subscription gets a unique SubscriptionID.
	Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID

	// Unsubscribe removes a previously registered event handler.
	// If the subscription ID is invalid or already unsubscribed, this is a no-op.
	Unsubscribe(id domain.SubscriptionID)

	// SubscribeAll registers a handler that receives all events regardless of type.
	// This is useful for logging and metrics.
	SubscribeAll(handler domain.EventHandler) domain.SubscriptionID

	// HasSubscribers returns true if there are any active subscriptions for the given event type.
	HasSubscribers(eventType domain.EventType) bool

	// Close shuts down the event bus and cleans up resources.
	Close() error
}
