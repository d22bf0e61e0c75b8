package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/mantra/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/mantra/internal/adapter/clock"
	"github.com/tejashwikalptaru/mantra/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/logger"
)

const prerollURI = "preroll_atmosphere"

// stubResolver resolves every identifier to itself.
// Main assets can be held back with a gate to keep a load in flight.
type stubResolver struct {
	mu       sync.Mutex
	gate     chan struct{}
	failures map[string]error
	calls    []string
}

func newStubResolver() *stubResolver {
	return &stubResolver{failures: make(map[string]error)}
}

func (r *stubResolver) Resolve(ctx context.Context, identifier string, kind domain.AssetKind) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, identifier)
	gate := r.gate
	err := r.failures[identifier]
	r.mu.Unlock()

	if gate != nil && kind != domain.AssetPreroll {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return identifier, nil
}

func (r *stubResolver) hold() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	return r.gate
}

func (r *stubResolver) fail(identifier string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[identifier] = err
}

func (r *stubResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// warnRecorder is a slog handler that keeps the messages of warnings and errors
// and passes every record on to next.
type warnRecorder struct {
	next slog.Handler

	mu       *sync.Mutex
	messages *[]string
}

func newWarnRecorder(next slog.Handler) *warnRecorder {
	return &warnRecorder{next: next, mu: &sync.Mutex{}, messages: new([]string)}
}

func (h *warnRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *warnRecorder) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		h.mu.Lock()
		*h.messages = append(*h.messages, r.Message)
		h.mu.Unlock()
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *warnRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	return &clone
}

func (h *warnRecorder) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

func (h *warnRecorder) warnings() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), *h.messages...)
}

// testEnv wires an engine to the mock player, a fake clock and a real event bus,
// and records every snapshot the engine publishes.
type testEnv struct {
	engine   *AudioEngine
	player   *mock.Player
	resolver *stubResolver
	bus      *eventbus.SyncEventBus
	clock    *clock.Fake
	logs     *warnRecorder

	mu          sync.Mutex
	snapshots   []domain.Snapshot
	transitions [][2]domain.Status
	times       map[domain.Status]time.Time
}

func newTestEnv(t *testing.T, platform domain.Platform) *testEnv {
	t.Helper()

	player := mock.NewPlayer()
	require.NoError(t, player.Initialize(44100))

	env := &testEnv{
		player:   player,
		resolver: newStubResolver(),
		bus:      eventbus.NewSyncEventBus(),
		clock:    clock.NewFake(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)),
		times:    make(map[domain.Status]time.Time),
		logs:     newWarnRecorder(logger.NewTestLogger().Handler()),
	}

	env.engine = NewAudioEngine(slog.New(env.logs), player, env.resolver, env.bus, env.clock,
		DefaultEngineConfig(platform))

	env.bus.Subscribe(domain.EventStateChanged, func(event domain.Event) {
		changed := event.(domain.StateChangedEvent)
		env.mu.Lock()
		defer env.mu.Unlock()
		env.snapshots = append(env.snapshots, changed.Snapshot)
		if changed.Previous != changed.Snapshot.Status {
			env.transitions = append(env.transitions, [2]domain.Status{changed.Previous, changed.Snapshot.Status})
			if _, seen := env.times[changed.Snapshot.Status]; !seen {
				env.times[changed.Snapshot.Status] = env.clock.Now()
			}
		}
	})

	return env
}

func (env *testEnv) close(t *testing.T) {
	t.Helper()
	require.NoError(t, env.engine.Shutdown())
	require.NoError(t, env.player.Shutdown())
	_ = env.bus.Close()
}

// statuses returns the distinct statuses entered, in order.
func (env *testEnv) statuses() []domain.Status {
	env.mu.Lock()
	defer env.mu.Unlock()

	out := make([]domain.Status, 0, len(env.transitions))
	for _, tr := range env.transitions {
		out = append(out, tr[1])
	}
	return out
}

func (env *testEnv) allTransitions() [][2]domain.Status {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([][2]domain.Status(nil), env.transitions...)
}

func (env *testEnv) allSnapshots() []domain.Snapshot {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]domain.Snapshot(nil), env.snapshots...)
}

func (env *testEnv) enteredAt(status domain.Status) (time.Time, bool) {
	env.mu.Lock()
	defer env.mu.Unlock()
	at, ok := env.times[status]
	return at, ok
}

func (env *testEnv) waitForStatus(t *testing.T, status domain.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return env.engine.GetState().Status == status
	}, 2*time.Second, 5*time.Millisecond, "status never became %s (now %s)", status, env.engine.GetState().Status)
}

func testBundle(id string) domain.Bundle {
	return domain.Bundle{
		SessionID:       id,
		AffirmationsURL: id + "/affirmations.mp3",
		Binaural: &domain.ToneLayer{
			URLByPlatform: domain.PlatformURLs{IOS: id + "/binaural.m4a", Android: id + "/binaural.mp3"},
			Loop:          true,
			Hz:            10,
		},
		Background: domain.BackgroundLayer{
			URLByPlatform: domain.PlatformURLs{IOS: id + "/background.m4a", Android: id + "/background.mp3"},
			Loop:          true,
		},
		Mix: domain.Mix{Affirmations: 0.9, Binaural: 0.5, Background: 0.4},
	}
}

func affirmationsURI(id string) string { return id + "/affirmations.mp3" }
func binauralURI(id string) string     { return id + "/binaural.mp3" }
func backgroundURI(id string) string   { return id + "/background.mp3" }
