// Package domain contains core business models and logic with no external dependencies.
// This package defines the fundamental entities of the Mantra session engine.
package domain

import (
	"math"
	"time"
)

// Status is the lifecycle state of the session engine.
type Status string

const (
	// StatusIdle indicates nothing is playing and no pre-roll is active
	StatusIdle Status = "idle"

	// StatusPreroll indicates the atmosphere track is masking a pending load
	StatusPreroll Status = "preroll"

	// StatusLoading indicates a bundle is being resolved and its tracks created
	StatusLoading Status = "loading"

	// StatusReady indicates main tracks are loaded and can be started
	StatusReady Status = "ready"

	// StatusPlaying indicates the main tracks are playing
	StatusPlaying Status = "playing"

	// StatusPaused indicates the main tracks are paused
	StatusPaused Status = "paused"

	// StatusStopping is the transient state observed while stop() runs
	StatusStopping Status = "stopping"

	// StatusError indicates the last command failed
	StatusError Status = "error"
)

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is one of the enumerated statuses.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// transitions lists the allowed edges of the session state machine.
// Every status may also move to StatusError.
var transitions = map[Status][]Status{
	StatusIdle:     {StatusPreroll, StatusLoading, StatusReady, StatusPlaying},
	StatusPreroll:  {StatusPlaying, StatusPaused, StatusStopping, StatusIdle},
	StatusLoading:  {StatusPreroll, StatusReady},
	StatusReady:    {StatusPlaying, StatusStopping, StatusIdle},
	StatusPlaying:  {StatusPaused, StatusStopping, StatusIdle},
	StatusPaused:   {StatusPlaying, StatusPreroll, StatusStopping, StatusIdle},
	StatusStopping: {StatusIdle},
	StatusError:    {StatusLoading, StatusPreroll, StatusReady, StatusPlaying, StatusStopping, StatusIdle},
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
// Staying in the same status is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next || next == StatusError {
		return next.IsValid() && s.IsValid()
	}
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// HasPosition reports whether positionMs/durationMs are meaningful in this status.
func (s Status) HasPosition() bool {
	switch s {
	case StatusPreroll, StatusReady, StatusPlaying, StatusPaused:
		return true
	default:
		return false
	}
}

// Mix holds the per-layer gains, each in [0,1].
type Mix struct {
	Affirmations float64 `json:"affirmations" yaml:"affirmations"`
	Binaural     float64 `json:"binaural" yaml:"binaural"`
	Background   float64 `json:"background" yaml:"background"`
}

// DefaultMix is the mix the engine starts with before any bundle is loaded.
var DefaultMix = Mix{Affirmations: 1.0, Binaural: 0.6, Background: 0.6}

// mixTolerance is how far a mix may drift from DefaultMix and still count as untouched.
const mixTolerance = 0.01

// Clamp returns m with every gain limited to [0,1]. NaN becomes 0.
func (m Mix) Clamp() Mix {
	return Mix{
		Affirmations: clampUnit(m.Affirmations),
		Binaural:     clampUnit(m.Binaural),
		Background:   clampUnit(m.Background),
	}
}

// IsValid reports whether every gain is inside [0,1].
func (m Mix) IsValid() bool {
	return m == m.Clamp()
}

// IsDefault reports whether m is within 0.01 of DefaultMix on every layer,
// meaning the user has not adjusted it.
func (m Mix) IsDefault() bool {
	return math.Abs(m.Affirmations-DefaultMix.Affirmations) <= mixTolerance &&
		math.Abs(m.Binaural-DefaultMix.Binaural) <= mixTolerance &&
		math.Abs(m.Background-DefaultMix.Background) <= mixTolerance
}

// Gain returns the gain for a track role. The pre-roll has no mix entry and returns 0.
func (m Mix) Gain(role TrackRole) float64 {
	switch role {
	case RoleAffirmations:
		return m.Affirmations
	case RoleBinaural:
		return m.Binaural
	case RoleBackground:
		return m.Background
	default:
		return 0
	}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ErrorInfo describes the failure recorded in a snapshot.
type ErrorInfo struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Snapshot is the immutable, broadcast representation of engine state.
// This is the central state object the engine manages.
type Snapshot struct {
	// Status is the current lifecycle status
	Status Status `json:"status"`

	// SessionID is the loaded bundle's session (empty if none)
	SessionID string `json:"sessionId,omitempty"`

	// PositionMs is the master track position
	PositionMs int64 `json:"positionMs"`

	// DurationMs is the master track length (0 until the player reports it)
	DurationMs int64 `json:"durationMs"`

	// Mix is the current set of layer gains
	Mix Mix `json:"mix"`

	// Error is set while Status is StatusError
	Error *ErrorInfo `json:"error,omitempty"`
}

// Position returns PositionMs as a duration.
func (s Snapshot) Position() time.Duration {
	return time.Duration(s.PositionMs) * time.Millisecond
}

// Duration returns DurationMs as a duration.
func (s Snapshot) Duration() time.Duration {
	return time.Duration(s.DurationMs) * time.Millisecond
}

// Clone returns a copy that shares nothing mutable with s.
func (s Snapshot) Clone() Snapshot {
	if s.Error != nil {
		info := *s.Error
		s.Error = &info
	}
	return s
}

// Platform selects which per-platform asset URL a bundle resolves to.
type Platform string

const (
	// PlatformIOS selects the ios asset variants
	PlatformIOS Platform = "ios"

	// PlatformAndroid selects the android asset variants
	PlatformAndroid Platform = "android"
)

// ParsePlatform converts a config value into a Platform.
func ParsePlatform(value string) (Platform, bool) {
	switch Platform(value) {
	case PlatformIOS:
		return PlatformIOS, true
	case PlatformAndroid:
		return PlatformAndroid, true
	default:
		return "", false
	}
}

// PlatformURLs holds one asset URL per platform.
type PlatformURLs struct {
	IOS     string `json:"ios" yaml:"ios"`
	Android string `json:"android" yaml:"android"`
}

// For returns the URL for platform p.
func (u PlatformURLs) For(p Platform) string {
	if p == PlatformIOS {
		return u.IOS
	}
	return u.Android
}

// ToneLayer is a binaural-beat or solfeggio layer of a bundle.
type ToneLayer struct {
	URLByPlatform PlatformURLs `json:"urlByPlatform" yaml:"urlByPlatform"`
	Loop          bool         `json:"loop" yaml:"loop"`
	Hz            float64      `json:"hz" yaml:"hz"`
}

// BackgroundLayer is the ambient layer of a bundle.
type BackgroundLayer struct {
	URLByPlatform PlatformURLs `json:"urlByPlatform" yaml:"urlByPlatform"`
	Loop          bool         `json:"loop" yaml:"loop"`
}

// Bundle is everything needed to play one session.
// Bundles are supplied by a BundleProvider and never modified by the engine.
type Bundle struct {
	SessionID       string          `json:"sessionId" yaml:"sessionId"`
	AffirmationsURL string          `json:"affirmationsUrl" yaml:"affirmationsUrl"`
	Binaural        *ToneLayer      `json:"binaural,omitempty" yaml:"binaural,omitempty"`
	Solfeggio       *ToneLayer      `json:"solfeggio,omitempty" yaml:"solfeggio,omitempty"`
	Background      BackgroundLayer `json:"background" yaml:"background"`
	Mix             Mix             `json:"mix" yaml:"mix"`
}

// Tone returns the bundle's tone layer and the asset kind it represents.
// Exactly one of Binaural and Solfeggio is set on a valid bundle.
func (b Bundle) Tone() (*ToneLayer, AssetKind) {
	if b.Binaural != nil {
		return b.Binaural, AssetBinaural
	}
	return b.Solfeggio, AssetSolfeggio
}

// Validate checks the structural rules of a bundle.
func (b Bundle) Validate() error {
	if b.SessionID == "" {
		return NewValidationError("sessionId", b.SessionID, "must not be empty")
	}
	if b.AffirmationsURL == "" {
		return NewValidationError("affirmationsUrl", b.AffirmationsURL, "must not be empty")
	}
	if (b.Binaural == nil) == (b.Solfeggio == nil) {
		return NewValidationError("binaural/solfeggio", nil, "exactly one tone layer is required")
	}
	if !b.Mix.IsValid() {
		return NewValidationError("mix", b.Mix, "gains must be within [0,1]")
	}
	return nil
}

// TrackRole identifies which layer a track plays.
type TrackRole string

const (
	// RoleAffirmations is the spoken master track
	RoleAffirmations TrackRole = "affirmations"

	// RoleBinaural is the binaural or solfeggio tone track
	RoleBinaural TrackRole = "binaural"

	// RoleBackground is the ambient background track
	RoleBackground TrackRole = "background"

	// RolePreroll is the transient atmosphere track
	RolePreroll TrackRole = "preroll"
)

// AssetKind tells the asset resolver what an identifier refers to.
type AssetKind string

const (
	AssetAffirmations AssetKind = "affirmations"
	AssetBinaural     AssetKind = "binaural"
	AssetSolfeggio    AssetKind = "solfeggio"
	AssetBackground   AssetKind = "background"
	AssetPreroll      AssetKind = "preroll"
)

// TrackHandle represents a handle to a track in the platform player.
// This is an opaque identifier used by the player to reference created tracks.
type TrackHandle int64

const (
	// InvalidTrackHandle represents an invalid or uninitialized track handle
	InvalidTrackHandle TrackHandle = 0
)

// PlayerStatus is the payload of a platform player status update.
type PlayerStatus struct {
	IsLoaded      bool
	Playing       bool
	Duration      time.Duration
	CurrentTime   time.Duration
	DidJustFinish bool
}

// StatusListener receives platform player status updates.
type StatusListener func(status PlayerStatus)
