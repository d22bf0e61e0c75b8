package mock

import (
	"time"

	"github.com/tejashwikalptaru/mantra/internal/domain"
)

// TrackState is a point-in-time copy of a simulated track, for assertions.
type TrackState struct {
	Handle    domain.TrackHandle
	URI       string
	Duration  time.Duration
	Position  time.Duration
	Volume    float64
	Loop      bool
	Playing   bool
	PlayCount int
	Seeks     []time.Duration
	Volumes   []float64
}

// Track returns the state of the live track created from uri.
// If several live tracks share uri, the most recent one is returned.
func (m *Player) Track(uri string) (TrackState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *mockTrack
	for _, track := range m.tracks {
		if track.uri == uri && (found == nil || track.handle > found.handle) {
			found = track
		}
	}
	if found == nil {
		return TrackState{}, false
	}

	return TrackState{
		Handle:    found.handle,
		URI:       found.uri,
		Duration:  found.duration,
		Position:  found.position,
		Volume:    found.volume,
		Loop:      found.loop,
		Playing:   found.playing,
		PlayCount: found.playCount,
		Seeks:     append([]time.Duration(nil), found.seeks...),
		Volumes:   append([]float64(nil), found.volumes...),
	}, true
}

// LiveTracks returns the number of created and not yet released tracks.
func (m *Player) LiveTracks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks)
}

// Created returns the URIs passed to successful Create calls, in order.
func (m *Player) Created() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.created...)
}

// Released returns the URIs of released tracks, in order.
func (m *Player) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}

// SetPosition moves the simulated playhead of the live track created from uri.
// Looping tracks wrap at their duration; others stop at the end.
func (m *Player) SetPosition(uri string, position time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, track := range m.tracks {
		if track.uri != uri {
			continue
		}
		switch {
		case track.loop && track.duration > 0:
			track.position = position % track.duration
		default:
			track.position = min(position, track.duration)
		}
		return true
	}
	return false
}

// EmitStatus synchronously delivers status to every listener of the live track created from uri.
func (m *Player) EmitStatus(uri string, status domain.PlayerStatus) {
	m.mu.Lock()
	var listeners []domain.StatusListener
	for _, track := range m.tracks {
		if track.uri != uri {
			continue
		}
		for _, fn := range track.listeners {
			listeners = append(listeners, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
}

// WaitForStatus blocks until every scheduled asynchronous status update was delivered.
func (m *Player) WaitForStatus() {
	m.emitters.Wait()
}
