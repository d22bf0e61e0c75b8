// Package domain defines domain-specific errors.
// These errors represent business logic failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
)

// Common errors that services can return.
var (
	// ErrInvalidTrackHandle is returned when an invalid track handle is used.
	ErrInvalidTrackHandle = errors.New("invalid track handle")

	// ErrInvalidVolume is returned when the volume is out of valid range (0.0-1.0).
	ErrInvalidVolume = errors.New("invalid volume: must be between 0.0 and 1.0")

	// ErrInvalidPosition is returned when seeking to an invalid position.
	ErrInvalidPosition = errors.New("invalid playback position")

	// ErrNotInitialized is returned when an operation is attempted on an uninitialized component.
	ErrNotInitialized = errors.New("component not initialized")

	// ErrAlreadyInitialized is returned when attempting to initialize an already initialized component.
	ErrAlreadyInitialized = errors.New("component already initialized")

	// ErrUnsupportedFormat is returned when an audio file format is not supported.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrFileNotFound is returned when a file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrAssetNotFound is returned when an identifier cannot be resolved to a playable URI.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrInvalidBundle is returned when a bundle fails validation.
	ErrInvalidBundle = errors.New("invalid bundle")

	// ErrBundleNotFound is returned when the bundle provider has no bundle for a session.
	ErrBundleNotFound = errors.New("bundle not found")

	// ErrNoBundle is returned when playback is requested before any bundle was loaded.
	ErrNoBundle = errors.New("no bundle loaded")

	// ErrNoTracksLoaded is returned when a transport operation needs the main tracks.
	ErrNoTracksLoaded = errors.New("no tracks loaded")

	// ErrPrerollUnavailable is returned when the pre-roll asset is missing or cannot start.
	ErrPrerollUnavailable = errors.New("pre-roll unavailable")

	// ErrEngineClosed is returned when a command is submitted after shutdown.
	ErrEngineClosed = errors.New("engine closed")

	// ErrInvalidTransition is returned when a status change is not an edge of the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// PlayerError represents an error from the platform player.
// This wraps low-level audio library errors with additional context.
type PlayerError struct {
	Op      string // Operation that failed (e.g., "create", "play", "seek")
	URI     string // Track URI (if applicable)
	Message string // Error message
	Err     error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *PlayerError) Error() string {
	if e.URI != "" {
		return fmt.Sprintf("player %s failed for '%s': %s", e.Op, e.URI, e.Message)
	}
	return fmt.Sprintf("player %s failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *PlayerError) Unwrap() error {
	return e.Err
}

// NewPlayerError creates a new PlayerError.
func NewPlayerError(op, uri, message string, err error) *PlayerError {
	return &PlayerError{
		Op:      op,
		URI:     uri,
		Message: message,
		Err:     err,
	}
}

// TrackError is a failure of one session layer.
// Critical errors abort the command; non-critical ones degrade playback.
type TrackError struct {
	Role     TrackRole
	Op       string
	Critical bool
	Err      error
}

// Error implements the error interface.
func (e *TrackError) Error() string {
	return fmt.Sprintf("%s track %s failed: %v", e.Role, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TrackError) Unwrap() error {
	return e.Err
}

// NewTrackError creates a new TrackError.
func NewTrackError(role TrackRole, op string, critical bool, err error) *TrackError {
	return &TrackError{Role: role, Op: op, Critical: critical, Err: err}
}

// BundleLoadError represents a failed bundle load.
type BundleLoadError struct {
	SessionID string
	Step      string // "validate", "resolve", "create"
	Role      TrackRole
	Err       error
}

// Error implements the error interface.
func (e *BundleLoadError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("load of session %q failed at %s (%s): %v", e.SessionID, e.Step, e.Role, e.Err)
	}
	return fmt.Sprintf("load of session %q failed at %s: %v", e.SessionID, e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *BundleLoadError) Unwrap() error {
	return e.Err
}

// NewBundleLoadError creates a new BundleLoadError.
func NewBundleLoadError(sessionID, step string, role TrackRole, err error) *BundleLoadError {
	return &BundleLoadError{SessionID: sessionID, Step: step, Role: role, Err: err}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string      // Field that failed validation
	Value   interface{} // Value that failed validation
	Message string      // Error message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap makes every validation error match ErrInvalidBundle.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidBundle
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ServiceError is a failure of an application-level session operation, such as loading
// a session by id. It names the session so callers can report which one failed.
type ServiceError struct {
	Service   string
	Op        string
	SessionID string
	Err       error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %q: %v", e.Service, e.Op, e.SessionID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op, sessionID string, err error) *ServiceError {
	return &ServiceError{
		Service:   service,
		Op:        op,
		SessionID: sessionID,
		Err:       err,
	}
}

// ErrorDetails extracts structured details from the typed errors of this package.
// It returns nil for plain errors.
func ErrorDetails(err error) map[string]any {
	var trackErr *TrackError
	if errors.As(err, &trackErr) {
		return map[string]any{"role": string(trackErr.Role), "op": trackErr.Op, "critical": trackErr.Critical}
	}
	var loadErr *BundleLoadError
	if errors.As(err, &loadErr) {
		details := map[string]any{"sessionId": loadErr.SessionID, "step": loadErr.Step}
		if loadErr.Role != "" {
			details["role"] = string(loadErr.Role)
		}
		return details
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return map[string]any{"field": validationErr.Field}
	}
	var playerErr *PlayerError
	if errors.As(err, &playerErr) {
		return map[string]any{"op": playerErr.Op, "uri": playerErr.URI}
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return map[string]any{"service": serviceErr.Service, "op": serviceErr.Op, "sessionId": serviceErr.SessionID}
	}
	return nil
}
