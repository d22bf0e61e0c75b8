package service

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// SnapshotStore owns the engine snapshot and broadcasts every change on the event bus.
//
// Mutations are checked against the status state machine and the mix range.
// Publishing is serialized, so subscribers see changes in the order they were made.
// Listeners must not mutate the store from inside a notification.
type SnapshotStore struct {
	logger *slog.Logger
	bus    ports.EventBus

	// mu guards snap; notifyMu orders mutation + publish pairs
	mu       sync.RWMutex
	notifyMu sync.Mutex
	snap     domain.Snapshot
}

// NewSnapshotStore creates a store holding initial.
func NewSnapshotStore(logger *slog.Logger, bus ports.EventBus, initial domain.Snapshot) *SnapshotStore {
	initial.Mix = initial.Mix.Clamp()
	if !initial.Status.IsValid() {
		initial.Status = domain.StatusIdle
	}
	return &SnapshotStore{
		logger: logger,
		bus:    bus,
		snap:   initial,
	}
}

// Get returns a copy of the current snapshot.
func (s *SnapshotStore) Get() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Update applies mutate to a copy of the snapshot and commits it.
//
// The mix is clamped and the error info is cleared outside StatusError. A status change
// that is not an edge of the state machine is rejected with domain.ErrInvalidTransition
// and nothing is committed. Unchanged snapshots are not published.
func (s *SnapshotStore) Update(mutate func(snap *domain.Snapshot)) (domain.Snapshot, error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	previous := s.snap
	next := previous.Clone()
	mutate(&next)

	next.Mix = next.Mix.Clamp()
	if next.Status != domain.StatusError {
		next.Error = nil
	}
	if next.PositionMs < 0 {
		next.PositionMs = 0
	}

	if next.Status != previous.Status && !previous.Status.CanTransitionTo(next.Status) {
		s.mu.Unlock()
		s.logger.Warn("rejected status transition",
			slog.String("from", previous.Status.String()),
			slog.String("to", next.Status.String()))
		return previous.Clone(), fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, previous.Status, next.Status)
	}

	if sameSnapshot(next, previous) {
		s.mu.Unlock()
		return next.Clone(), nil
	}

	s.snap = next
	s.mu.Unlock()

	if next.Status != previous.Status {
		s.logger.Debug("status changed",
			slog.String("from", previous.Status.String()),
			slog.String("to", next.Status.String()),
			slog.String("session_id", next.SessionID))
	}

	s.bus.Publish(domain.NewStateChangedEvent(next.Clone(), previous.Status))
	return next.Clone(), nil
}

// sameSnapshot compares two snapshots, treating error infos with the same message as equal.
func sameSnapshot(a, b domain.Snapshot) bool {
	aErr, bErr := a.Error, b.Error
	a.Error, b.Error = nil, nil
	if a != b || (aErr == nil) != (bErr == nil) {
		return false
	}
	return aErr == nil || aErr.Message == bErr.Message
}

// SetStatus moves the snapshot to status.
func (s *SnapshotStore) SetStatus(status domain.Status) error {
	_, err := s.Update(func(snap *domain.Snapshot) {
		snap.Status = status
	})
	return err
}

// Subscribe calls listener with every new snapshot until the returned function is called.
func (s *SnapshotStore) Subscribe(listener func(domain.Snapshot)) func() {
	id := s.bus.Subscribe(domain.EventStateChanged, func(event domain.Event) {
		if changed, ok := event.(domain.StateChangedEvent); ok {
			listener(changed.Snapshot.Clone())
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.bus.Unsubscribe(id)
		})
	}
}
