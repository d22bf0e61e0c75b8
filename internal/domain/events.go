// Package domain defines events for the event-driven architecture.
// Events decouple the session engine from its observers (console, metrics, logging).
package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Snapshot events
	EventStateChanged EventType = "session.state_changed"

	// Session lifecycle events
	EventBundleLoaded EventType = "session.bundle_loaded"

	// Track events
	EventTrackDegraded EventType = "track.degraded"
	EventTrackFinished EventType = "track.finished"
	EventPrerollFailed EventType = "preroll.failed"

	// Command events
	EventCommandCompleted EventType = "command.completed"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// StateChangedEvent is published on every snapshot mutation.
type StateChangedEvent struct {
	baseEvent
	Snapshot Snapshot
	Previous Status
}

// Type returns the event type.
func (e StateChangedEvent) Type() EventType {
	return EventStateChanged
}

// NewStateChangedEvent creates a new StateChangedEvent.
func NewStateChangedEvent(snapshot Snapshot, previous Status) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: newBaseEvent(),
		Snapshot:  snapshot,
		Previous:  previous,
	}
}

// BundleLoadedEvent is published when a bundle's main tracks are created.
type BundleLoadedEvent struct {
	baseEvent
	SessionID string
	ToneKind  AssetKind
	Mix       Mix
}

// Type returns the event type.
func (e BundleLoadedEvent) Type() EventType {
	return EventBundleLoaded
}

// NewBundleLoadedEvent creates a new BundleLoadedEvent.
func NewBundleLoadedEvent(sessionID string, toneKind AssetKind, mix Mix) BundleLoadedEvent {
	return BundleLoadedEvent{
		baseEvent: newBaseEvent(),
		SessionID: sessionID,
		ToneKind:  toneKind,
		Mix:       mix,
	}
}

// TrackDegradedEvent is published when a non-critical layer fails to start.
type TrackDegradedEvent struct {
	baseEvent
	SessionID string
	Role      TrackRole
	Error     error
}

// Type returns the event type.
func (e TrackDegradedEvent) Type() EventType {
	return EventTrackDegraded
}

// NewTrackDegradedEvent creates a new TrackDegradedEvent.
func NewTrackDegradedEvent(sessionID string, role TrackRole, err error) TrackDegradedEvent {
	return TrackDegradedEvent{
		baseEvent: newBaseEvent(),
		SessionID: sessionID,
		Role:      role,
		Error:     err,
	}
}

// TrackFinishedEvent is published when a non-looping layer reaches its end.
type TrackFinishedEvent struct {
	baseEvent
	SessionID string
	Role      TrackRole
}

// Type returns the event type.
func (e TrackFinishedEvent) Type() EventType {
	return EventTrackFinished
}

// NewTrackFinishedEvent creates a new TrackFinishedEvent.
func NewTrackFinishedEvent(sessionID string, role TrackRole) TrackFinishedEvent {
	return TrackFinishedEvent{
		baseEvent: newBaseEvent(),
		SessionID: sessionID,
		Role:      role,
	}
}

// PrerollFailedEvent is published when the pre-roll could not start.
// Playback proceeds without the masking track.
type PrerollFailedEvent struct {
	baseEvent
	Error error
}

// Type returns the event type.
func (e PrerollFailedEvent) Type() EventType {
	return EventPrerollFailed
}

// NewPrerollFailedEvent creates a new PrerollFailedEvent.
func NewPrerollFailedEvent(err error) PrerollFailedEvent {
	return PrerollFailedEvent{
		baseEvent: newBaseEvent(),
		Error:     err,
	}
}

// CommandCompletedEvent is published after every queued command.
type CommandCompletedEvent struct {
	baseEvent
	ID      string
	Command string
	Elapsed time.Duration
	Error   error
}

// Type returns the event type.
func (e CommandCompletedEvent) Type() EventType {
	return EventCommandCompleted
}

// NewCommandCompletedEvent creates a new CommandCompletedEvent.
func NewCommandCompletedEvent(id, command string, elapsed time.Duration, err error) CommandCompletedEvent {
	return CommandCompletedEvent{
		baseEvent: newBaseEvent(),
		ID:        id,
		Command:   command,
		Elapsed:   elapsed,
		Error:     err,
	}
}
