// Package ports define interfaces for dependency inversion.
// These interfaces allow the session engine to remain independent of audio backends and asset sources.
package ports

import (
	"context"
	"time"

	"github.com/tejashwikalptaru/mantra/internal/domain"
)

// PlatformPlayer is the per-track transport primitive the session engine drives.
// This abstracts the underlying audio backend and allows for testing with mocks.
//
// Implementations must be thread-safe: the engine starts several tracks concurrently.
type PlatformPlayer interface {
	// Lifecycle methods

	// Initialize prepares the backend for output at the given sample rate.
	//
	// Returns an error if initialization fails.
	Initialize(sampleRate int) error

	// Shutdown releases every track and the backend itself.
	Shutdown() error

	// IsInitialized returns true if the backend has been successfully initialized.
	IsInitialized() bool

	// Track lifecycle

	// Create prepares a track for the given local URI and returns its handle.
	// The track is paused at position zero, volume 1.0, not looping.
	Create(uri string) (domain.TrackHandle, error)

	// Release stops the track and frees its resources. The handle becomes invalid.
	Release(handle domain.TrackHandle) error

	// Transport

	// Play starts or resumes the track.
	Play(handle domain.TrackHandle) error

	// Pause pauses the track, preserving its position.
	Pause(handle domain.TrackHandle) error

	// SeekTo moves the track to position.
	SeekTo(handle domain.TrackHandle, position time.Duration) error

	// Gain and looping

	// SetVolume sets the track gain from 0.0 (silent) to 1.0 (full).
	SetVolume(handle domain.TrackHandle, volume float64) error

	// Volume returns the current track gain.
	Volume(handle domain.TrackHandle) (float64, error)

	// SetLoop enables or disables looping at the end of the track.
	SetLoop(handle domain.TrackHandle, loop bool) error

	// State queries

	// Duration returns the track length, or 0 while it is not known yet.
	Duration(handle domain.TrackHandle) (time.Duration, error)

	// CurrentTime returns the elapsed position within the track.
	CurrentTime(handle domain.TrackHandle) (time.Duration, error)

	// AddStatusListener registers fn for asynchronous status updates of the track.
	// Duration is reported through these updates once the track is loaded.
	//
	// Returns a function that removes the listener.
	AddStatusListener(handle domain.TrackHandle, fn domain.StatusListener) (func(), error)
}

// AssetResolver maps logical identifiers and remote URLs to playable local URIs.
type AssetResolver interface {
	// Resolve returns a URI the platform player can open.
	// Returns an error wrapping domain.ErrAssetNotFound if nothing matches.
	Resolve(ctx context.Context, identifier string, kind domain.AssetKind) (string, error)
}

// BundleProvider supplies playback bundles by session id.
type BundleProvider interface {
	// Bundle returns the bundle for sessionID.
	// Returns an error wrapping domain.ErrBundleNotFound if the session is unknown.
	Bundle(ctx context.Context, sessionID string) (*domain.Bundle, error)
}
