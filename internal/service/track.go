package service

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// Track is one playable layer: a platform handle plus the state the engine keeps about it.
// A Track is created for a single session and never reused after Release.
//
// Thread-safety: This type is thread-safe.
type Track struct {
	player ports.PlatformPlayer
	handle domain.TrackHandle
	role   domain.TrackRole
	uri    string
	loop   bool

	mu          sync.Mutex
	volume      float64
	unsubscribe func()
	released    bool

	// durationMs is learned from status updates and read by Seek
	durationMs atomic.Int64
}

// newTrack creates a paused track for uri and applies the loop flag.
func newTrack(player ports.PlatformPlayer, role domain.TrackRole, uri string, loop bool) (*Track, error) {
	handle, err := player.Create(uri)
	if err != nil {
		return nil, err
	}

	if err := player.SetLoop(handle, loop); err != nil {
		_ = player.Release(handle)
		return nil, fmt.Errorf("set loop: %w", err)
	}

	return &Track{
		player: player,
		handle: handle,
		role:   role,
		uri:    uri,
		loop:   loop,
		volume: 1.0,
	}, nil
}

// Role returns the layer this track plays.
func (t *Track) Role() domain.TrackRole { return t.role }

// URI returns the resolved URI the track was created from.
func (t *Track) URI() string { return t.uri }

// Loop reports whether the track loops.
func (t *Track) Loop() bool { return t.loop }

// Play starts or resumes the track.
func (t *Track) Play() error {
	return t.player.Play(t.handle)
}

// Pause pauses the track.
func (t *Track) Pause() error {
	return t.player.Pause(t.handle)
}

// SeekTo moves the track to position.
func (t *Track) SeekTo(position time.Duration) error {
	return t.player.SeekTo(t.handle, position)
}

// CurrentTime returns the elapsed position within the track.
func (t *Track) CurrentTime() (time.Duration, error) {
	return t.player.CurrentTime(t.handle)
}

// SetVolume clamps v to [0,1] and applies it.
func (t *Track) SetVolume(v float64) error {
	v = min(max(v, 0), 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.player.SetVolume(t.handle, v); err != nil {
		return err
	}
	t.volume = v
	return nil
}

// Volume returns the last volume applied.
func (t *Track) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume
}

// Duration returns the track length, or 0 until the player has reported it.
func (t *Track) Duration() time.Duration {
	if ms := t.durationMs.Load(); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 0
}

// Listen registers fn for the track's status updates and records the reported duration.
// Only one listener is kept; calling Listen again replaces it.
func (t *Track) Listen(fn domain.StatusListener) error {
	unsubscribe, err := t.player.AddStatusListener(t.handle, func(status domain.PlayerStatus) {
		if t.isReleased() {
			return
		}
		if status.IsLoaded && status.Duration > 0 {
			t.durationMs.Store(status.Duration.Milliseconds())
		}
		if fn != nil {
			fn(status)
		}
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	previous := t.unsubscribe
	t.unsubscribe = unsubscribe
	t.mu.Unlock()

	if previous != nil {
		previous()
	}
	return nil
}

// Release detaches the listener and frees the platform handle. Further calls are no-ops.
func (t *Track) Release() error {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return nil
	}
	t.released = true
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return t.player.Release(t.handle)
}

func (t *Track) isReleased() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}
