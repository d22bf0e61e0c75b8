// Package mock provides a mock implementation of the PlatformPlayer interface.
// This is used for testing the session engine without a real audio device.
package mock

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// DefaultDuration is the simulated length of every track without an explicit duration.
const DefaultDuration = 3 * time.Minute

// Player is a mock implementation of the PlatformPlayer interface.
// It simulates tracks in memory without producing audio.
//
// Status listeners receive a loaded update asynchronously after registration,
// the way a real backend reports duration once decoding has started.
//
// Thread-safety: This implementation is thread-safe.
type Player struct {
	// Dependencies
	logger *slog.Logger

	// Configuration
	initialized bool
	sampleRate  int

	// Track state
	tracks     map[domain.TrackHandle]*mockTrack
	nextHandle domain.TrackHandle
	created    []string
	released   []string
	mu         sync.Mutex

	// emitters tracks in-flight asynchronous status deliveries
	emitters sync.WaitGroup

	// Behavior configuration (for testing error scenarios)
	failInitialize bool
	failCreate     map[string]error
	failPlay       map[string]error
	durations      map[string]time.Duration
	silent         bool
}

// mockTrack represents a created track in the mock player.
type mockTrack struct {
	handle    domain.TrackHandle
	uri       string
	duration  time.Duration
	position  time.Duration
	volume    float64
	loop      bool
	playing   bool
	playCount int
	seeks     []time.Duration
	volumes   []float64
	listeners map[int]domain.StatusListener
	nextID    int
}

// NewPlayer creates a new mock player.
func NewPlayer() *Player {
	return &Player{
		tracks:     make(map[domain.TrackHandle]*mockTrack),
		nextHandle: 1,
		failCreate: make(map[string]error),
		failPlay:   make(map[string]error),
		durations:  make(map[string]time.Duration),
	}
}

// SetLogger sets the logger for this player.
// This should be called after construction before using the player.
func (m *Player) SetLogger(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// SetFailInitialize configures the mock to fail initialization (for testing).
func (m *Player) SetFailInitialize(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failInitialize = fail
}

// SetFailCreate makes Create fail with err for uri. A nil err clears the failure.
func (m *Player) SetFailCreate(uri string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	setFailure(m.failCreate, uri, err)
}

// SetFailPlay makes Play fail with err for tracks created from uri. A nil err clears the failure.
func (m *Player) SetFailPlay(uri string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	setFailure(m.failPlay, uri, err)
}

func setFailure(failures map[string]error, uri string, err error) {
	if err == nil {
		delete(failures, uri)
		return
	}
	failures[uri] = err
}

// SetDuration sets the simulated duration for tracks created from uri afterwards.
func (m *Player) SetDuration(uri string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[uri] = d
}

// SetSilent stops the automatic loaded update on AddStatusListener.
func (m *Player) SetSilent(silent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.silent = silent
}

// Initialize initializes the mock player.
func (m *Player) Initialize(sampleRate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failInitialize {
		return domain.NewPlayerError("initialize", "", "mock initialization failed", nil)
	}

	if m.initialized {
		return domain.ErrAlreadyInitialized
	}

	m.initialized = true
	m.sampleRate = sampleRate

	return nil
}

// Shutdown releases every track and waits for pending status deliveries.
func (m *Player) Shutdown() error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return domain.ErrNotInitialized
	}

	m.initialized = false
	m.tracks = make(map[domain.TrackHandle]*mockTrack)
	m.mu.Unlock()

	m.emitters.Wait()
	return nil
}

// IsInitialized returns true if the player is initialized.
func (m *Player) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Create registers a simulated track for uri.
func (m *Player) Create(uri string) (domain.TrackHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return domain.InvalidTrackHandle, domain.ErrNotInitialized
	}

	if uri == "" {
		return domain.InvalidTrackHandle, domain.ErrFileNotFound
	}

	if err := m.failCreate[uri]; err != nil {
		return domain.InvalidTrackHandle, domain.NewPlayerError("create", uri, "mock create failed", err)
	}

	duration, ok := m.durations[uri]
	if !ok {
		duration = DefaultDuration
	}

	handle := m.nextHandle
	m.nextHandle++

	m.tracks[handle] = &mockTrack{
		handle:    handle,
		uri:       uri,
		duration:  duration,
		volume:    1.0,
		listeners: make(map[int]domain.StatusListener),
	}
	m.created = append(m.created, uri)

	return handle, nil
}

// Release frees a simulated track.
func (m *Player) Release(handle domain.TrackHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.track(handle)
	if err != nil {
		return err
	}

	delete(m.tracks, handle)
	m.released = append(m.released, track.uri)
	return nil
}

// Play starts or resumes playback.
func (m *Player) Play(handle domain.TrackHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.track(handle)
	if err != nil {
		return err
	}

	if failure := m.failPlay[track.uri]; failure != nil {
		return domain.NewPlayerError("play", track.uri, "mock play failed", failure)
	}

	track.playing = true
	track.playCount++
	return nil
}

// Pause pauses playback.
func (m *Player) Pause(handle domain.TrackHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.track(handle)
	if err != nil {
		return err
	}

	track.playing = false
	return nil
}

// SeekTo records the request and moves the position, clamped to the duration.
func (m *Player) SeekTo(handle domain.TrackHandle, position time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.track(handle)
	if err != nil {
		return err
	}

	if position < 0 {
		return domain.ErrInvalidPosition
	}

	track.seeks = append(track.seeks, position)
	track.position = min(position, track.duration)
	return nil
}

// SetVolume sets the playback volume.
func (m *Player) SetVolume(handle domain.TrackHandle, volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.track(handle)
	if err != nil {
		return err
	}

	if volume < 0.0 || volume > 1.0 {
		return domain.ErrInvalidVolume
	}

	track.volume = volume
	track.volumes = append(track.volumes, volume)
	return nil
}

// Volume returns the current volume.
func (m *Player) Volume(handle domain.TrackHandle) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.track(handle)
	if err != nil {
		return 0, err
	}
	return track.volume, nil
}

// SetLoop enables or disables looping.
func (m *Player) SetLoop(handle domain.TrackHandle, loop bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.track(handle)
	if err != nil {
		return err
	}

	track.loop = loop
	return nil
}

// Duration returns the simulated track length.
func (m *Player) Duration(handle domain.TrackHandle) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.track(handle)
	if err != nil {
		return 0, err
	}
	return track.duration, nil
}

// CurrentTime returns the simulated position.
func (m *Player) CurrentTime(handle domain.TrackHandle) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.track(handle)
	if err != nil {
		return 0, err
	}
	return track.position, nil
}

// AddStatusListener registers fn and schedules an asynchronous loaded update.
func (m *Player) AddStatusListener(handle domain.TrackHandle, fn domain.StatusListener) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("status listener cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	track, err := m.track(handle)
	if err != nil {
		return nil, err
	}

	id := track.nextID
	track.nextID++
	track.listeners[id] = fn

	if !m.silent {
		status := track.status()
		m.emitters.Add(1)
		go func() {
			defer m.emitters.Done()
			if m.listenerActive(handle, id) {
				fn(status)
			}
		}()
	}

	remove := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t, ok := m.tracks[handle]; ok {
			delete(t.listeners, id)
		}
	}
	return remove, nil
}

func (m *Player) listenerActive(handle domain.TrackHandle, id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	track, ok := m.tracks[handle]
	if !ok {
		return false
	}
	_, ok = track.listeners[id]
	return ok
}

// track looks up handle. Callers hold m.mu.
func (m *Player) track(handle domain.TrackHandle) (*mockTrack, error) {
	if !m.initialized {
		return nil, domain.ErrNotInitialized
	}

	track, exists := m.tracks[handle]
	if !exists {
		return nil, domain.ErrInvalidTrackHandle
	}
	return track, nil
}

func (t *mockTrack) status() domain.PlayerStatus {
	return domain.PlayerStatus{
		IsLoaded:    true,
		Playing:     t.playing,
		Duration:    t.duration,
		CurrentTime: t.position,
	}
}

// Verify that Player implements the PlatformPlayer interface
var _ ports.PlatformPlayer = (*Player)(nil)
