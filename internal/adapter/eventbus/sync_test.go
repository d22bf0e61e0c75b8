package eventbus

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tejashwikalptaru/mantra/internal/domain"
)

func stateEvent(status domain.Status) domain.StateChangedEvent {
	return domain.NewStateChangedEvent(domain.Snapshot{Status: status, Mix: domain.DefaultMix}, domain.StatusIdle)
}

// TestNewSyncEventBus tests event bus creation.
func TestNewSyncEventBus(t *testing.T) {
	bus := NewSyncEventBus()

	if bus == nil {
		t.Fatal("NewSyncEventBus returned nil")
	}

	if bus.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", bus.SubscriberCount())
	}

	if bus.closed {
		t.Error("New event bus should not be closed")
	}
}

// TestPublishSubscribe tests basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var received domain.Event
	var callCount int

	subID := bus.Subscribe(domain.EventStateChanged, func(event domain.Event) {
		received = event
		callCount++
	})

	if !strings.HasPrefix(string(subID), "sub-") {
		t.Fatalf("Unexpected subscription ID %q", subID)
	}

	bus.Publish(stateEvent(domain.StatusPlaying))

	if callCount != 1 {
		t.Errorf("Expected handler to be called once, got %d", callCount)
	}

	if received == nil {
		t.Fatal("Handler did not receive event")
	}

	changed := received.(domain.StateChangedEvent)
	if changed.Snapshot.Status != domain.StatusPlaying {
		t.Errorf("Expected status playing, got %s", changed.Snapshot.Status)
	}
}

// TestSubscriptionIDsAreUnique tests that every subscription gets its own ID.
func TestSubscriptionIDsAreUnique(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	handler := func(event domain.Event) {}
	seen := make(map[domain.SubscriptionID]bool)
	for i := 0; i < 50; i++ {
		id := bus.Subscribe(domain.EventStateChanged, handler)
		if seen[id] {
			t.Fatalf("Duplicate subscription ID %q", id)
		}
		seen[id] = true
	}

	all := bus.SubscribeAll(handler)
	if !strings.HasPrefix(string(all), "sub-all-") {
		t.Errorf("Unexpected wildcard subscription ID %q", all)
	}
}

// TestDeliveryOrder tests that handlers run in subscription order, wildcard last.
func TestDeliveryOrder(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var order []string
	bus.SubscribeAll(func(event domain.Event) { order = append(order, "all") })
	bus.Subscribe(domain.EventStateChanged, func(event domain.Event) { order = append(order, "first") })
	second := bus.Subscribe(domain.EventStateChanged, func(event domain.Event) { order = append(order, "second") })
	bus.Subscribe(domain.EventStateChanged, func(event domain.Event) { order = append(order, "third") })

	bus.Publish(stateEvent(domain.StatusReady))

	want := []string{"first", "second", "third", "all"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("Expected order %v, got %v", want, order)
	}

	// Removing a handler keeps the others in order
	order = nil
	bus.Unsubscribe(second)
	bus.Publish(stateEvent(domain.StatusReady))

	want = []string{"first", "third", "all"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("Expected order %v after unsubscribe, got %v", want, order)
	}
}

// TestUnsubscribe tests unsubscribing handlers.
func TestUnsubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var callCount int32
	subID := bus.Subscribe(domain.EventStateChanged, func(event domain.Event) {
		atomic.AddInt32(&callCount, 1)
	})

	bus.Publish(stateEvent(domain.StatusPlaying))
	bus.Unsubscribe(subID)
	bus.Publish(stateEvent(domain.StatusPaused))

	if atomic.LoadInt32(&callCount) != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}

	// Unknown IDs are a no-op
	bus.Unsubscribe("invalid-id")
	bus.Unsubscribe("")
}

// TestUnsubscribeFromHandler tests that a handler may remove itself while being called.
func TestUnsubscribeFromHandler(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var callCount int32
	var subID domain.SubscriptionID
	subID = bus.Subscribe(domain.EventStateChanged, func(event domain.Event) {
		atomic.AddInt32(&callCount, 1)
		bus.Unsubscribe(subID)
	})

	bus.Publish(stateEvent(domain.StatusPlaying))
	bus.Publish(stateEvent(domain.StatusPaused))

	if atomic.LoadInt32(&callCount) != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

// TestSubscribeAll tests wildcard subscriptions.
func TestSubscribeAll(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var received []domain.EventType
	bus.SubscribeAll(func(event domain.Event) {
		received = append(received, event.Type())
	})

	bus.Publish(stateEvent(domain.StatusPlaying))
	bus.Publish(domain.NewTrackDegradedEvent("s1", domain.RoleBackground, errors.New("boom")))
	bus.Publish(domain.NewPrerollFailedEvent(domain.ErrPrerollUnavailable))

	if len(received) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(received))
	}
	if received[1] != domain.EventTrackDegraded {
		t.Errorf("Expected %s, got %s", domain.EventTrackDegraded, received[1])
	}
}

// TestHasSubscribers tests the HasSubscribers method.
func TestHasSubscribers(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	if bus.HasSubscribers(domain.EventStateChanged) {
		t.Error("Expected no subscribers initially")
	}

	bus.Subscribe(domain.EventStateChanged, func(event domain.Event) {})

	if !bus.HasSubscribers(domain.EventStateChanged) {
		t.Error("Expected subscribers after subscription")
	}
	if bus.HasSubscribers(domain.EventTrackDegraded) {
		t.Error("Expected no subscribers for different event type")
	}

	bus.SubscribeAll(func(event domain.Event) {})
	if !bus.HasSubscribers(domain.EventTrackDegraded) {
		t.Error("Expected wildcard subscriber to count for every type")
	}
}

// TestHandlerPanic tests that panicking handlers don't crash the bus.
func TestHandlerPanic(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var callCount int32
	bus.Subscribe(domain.EventStateChanged, func(event domain.Event) {
		panic("test panic")
	})
	bus.Subscribe(domain.EventStateChanged, func(event domain.Event) {
		atomic.AddInt32(&callCount, 1)
	})

	bus.Publish(stateEvent(domain.StatusPlaying))

	if atomic.LoadInt32(&callCount) != 1 {
		t.Errorf("Expected normal handler to be called despite panic, got %d calls", callCount)
	}
}

// TestClose tests closing the event bus.
func TestClose(t *testing.T) {
	bus := NewSyncEventBus()

	var callCount int32
	handler := func(event domain.Event) { atomic.AddInt32(&callCount, 1) }
	bus.Subscribe(domain.EventStateChanged, handler)
	bus.SubscribeAll(handler)

	if err := bus.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}

	if bus.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}

	bus.Publish(stateEvent(domain.StatusPlaying))
	if atomic.LoadInt32(&callCount) != 0 {
		t.Errorf("Expected no delivery after close, got %d", callCount)
	}

	if err := bus.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

// TestConcurrentPublishAndSubscribe tests concurrent use (race condition test).
func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var eventCount int32
	handler := func(event domain.Event) {
		atomic.AddInt32(&eventCount, 1)
	}
	bus.Subscribe(domain.EventStateChanged, handler)

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	wg.Add(workers * 2)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				bus.Publish(stateEvent(domain.StatusPlaying))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				id := bus.Subscribe(domain.EventCommandCompleted, handler)
				bus.Unsubscribe(id)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&eventCount); got != workers*perWorker {
		t.Errorf("Expected %d events, got %d", workers*perWorker, got)
	}
	if bus.SubscriberCount() != 1 {
		t.Errorf("Expected 1 remaining subscriber, got %d", bus.SubscriberCount())
	}
}

// TestNilEventAndHandler tests the nil guards.
func TestNilEventAndHandler(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var callCount int32
	bus.Subscribe(domain.EventStateChanged, func(event domain.Event) {
		atomic.AddInt32(&callCount, 1)
	})

	bus.Publish(nil)
	if atomic.LoadInt32(&callCount) != 0 {
		t.Errorf("Handler should not be called for nil event, got %d calls", callCount)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when subscribing with nil handler")
		}
	}()
	bus.Subscribe(domain.EventStateChanged, nil)
}
