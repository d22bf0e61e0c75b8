// Package service provides the session audio engine and the components it is built from.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// EngineConfig holds the engine settings chosen by the application.
type EngineConfig struct {
	// Platform selects the per-platform asset URLs of a bundle
	Platform domain.Platform

	// PrerollAsset is the identifier resolved for the pre-roll atmosphere
	PrerollAsset string

	// Timing holds the fade and polling constants
	Timing Timing

	// CommandTimeout bounds every queued command (zero means no deadline)
	CommandTimeout time.Duration
}

// DefaultEngineConfig returns the production engine settings for platform.
func DefaultEngineConfig(platform domain.Platform) EngineConfig {
	return EngineConfig{
		Platform:     platform,
		PrerollAsset: "preroll_atmosphere",
		Timing:       DefaultTiming(),
	}
}

// AudioEngine plays a session: an affirmations master track, a binaural or solfeggio tone
// and a background layer, plus a pre-roll atmosphere that masks load latency.
//
// Every mutating operation runs on a CommandQueue. The pre-roll start on Play is the one
// exception: it runs on the caller's goroutine so the atmosphere is audible while a load
// is still in flight.
//
// Methods return errors only when a command could not be submitted or the caller's context
// ended while waiting. A failing command moves the snapshot to StatusError instead.
type AudioEngine struct {
	// Dependencies (injected)
	logger   *slog.Logger
	player   ports.PlatformPlayer
	resolver ports.AssetResolver
	bus      ports.EventBus
	clock    ports.Clock
	cfg      EngineConfig

	// Components
	store  *SnapshotStore
	queue  *CommandQueue
	fader  *Fader
	poller *PositionPoller

	// mu guards the fields below. It is never held across a fade or a player start.
	mu              sync.Mutex
	staged          *domain.Bundle
	tracks          *trackSet
	preroll         *Track
	prerollStarting bool
	loadsPending    int
	closed          bool

	// ctx scopes background fades; cancelled on Shutdown
	ctx          context.Context
	cancel       context.CancelFunc
	background   sync.WaitGroup
	shutdownOnce sync.Once
}

// trackSet is the three main tracks of one loaded bundle.
type trackSet struct {
	sessionID    string
	toneKind     domain.AssetKind
	affirmations *Track
	tone         *Track
	background   *Track
}

// all returns the tracks in start order, master first.
func (s *trackSet) all() []*Track {
	return []*Track{s.affirmations, s.tone, s.background}
}

// NewAudioEngine creates an engine in StatusIdle with the default mix.
func NewAudioEngine(
	logger *slog.Logger,
	player ports.PlatformPlayer,
	resolver ports.AssetResolver,
	bus ports.EventBus,
	clock ports.Clock,
	cfg EngineConfig,
) *AudioEngine {
	if cfg.Timing == (Timing{}) {
		cfg.Timing = DefaultTiming()
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &AudioEngine{
		logger:   logger,
		player:   player,
		resolver: resolver,
		bus:      bus,
		clock:    clock,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}

	e.store = NewSnapshotStore(logger.With(slog.String("component", "snapshot")), bus,
		domain.Snapshot{Status: domain.StatusIdle, Mix: domain.DefaultMix})
	e.fader = NewFader(logger.With(slog.String("component", "fader")), clock, cfg.Timing.FadeSteps)
	e.poller = NewPositionPoller(logger.With(slog.String("component", "poller")), clock, cfg.Timing.PollInterval, e.reportPosition)
	e.queue = NewCommandQueue(logger.With(slog.String("component", "queue")), bus, e.handleCommandError, cfg.CommandTimeout)

	logger.Debug("audio engine initialized",
		slog.String("platform", string(cfg.Platform)),
		slog.String("preroll_asset", cfg.PrerollAsset))

	return e
}

// Load replaces the current session with bundle and waits for the load to finish.
func (e *AudioEngine) Load(ctx context.Context, bundle domain.Bundle) error {
	e.mu.Lock()
	e.loadsPending++
	e.mu.Unlock()

	return e.submit(ctx, "load", e.loadCommand(bundle), e.loadDone)
}

// Play starts the session. With nothing loaded yet it starts the pre-roll immediately,
// queues a load of the staged bundle if needed and lets the load trigger the crossfade.
func (e *AudioEngine) Play(ctx context.Context) error {
	if e.isClosed() {
		return domain.ErrEngineClosed
	}

	e.startPreroll(ctx)
	e.loadStagedIfNeeded()

	return e.submit(ctx, "play", e.play, nil)
}

// Pause pauses playback from playing or preroll. Other statuses are left untouched.
func (e *AudioEngine) Pause(ctx context.Context) error {
	return e.submit(ctx, "pause", e.pause, nil)
}

// Stop returns to idle with the position reset. The loaded bundle is kept.
func (e *AudioEngine) Stop(ctx context.Context) error {
	return e.submit(ctx, "stop", e.stop, nil)
}

// Seek moves the session to position. Negative positions seek to the start.
func (e *AudioEngine) Seek(ctx context.Context, position time.Duration) error {
	positionMs := max(position.Milliseconds(), 0)
	return e.submit(ctx, "seek", func(ctx context.Context) error {
		return e.seek(ctx, positionMs)
	}, nil)
}

// SetMix applies new layer gains without a fade. Values are clamped to [0,1].
func (e *AudioEngine) SetMix(ctx context.Context, mix domain.Mix) error {
	mix = mix.Clamp()
	return e.submit(ctx, "set_mix", func(ctx context.Context) error {
		return e.setMix(mix)
	}, nil)
}

// Subscribe calls listener with every snapshot change until the returned function is called.
// Listeners run synchronously and must not call mutating engine methods.
func (e *AudioEngine) Subscribe(listener func(domain.Snapshot)) func() {
	return e.store.Subscribe(listener)
}

// GetState returns the current snapshot.
func (e *AudioEngine) GetState() domain.Snapshot {
	return e.store.Get()
}

// Shutdown finishes the queued commands, stops the poller and background fades,
// and releases every track. It is safe to call more than once.
func (e *AudioEngine) Shutdown() error {
	var err error
	e.shutdownOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.queue.Close()
		e.cancel()
		e.background.Wait()
		e.poller.Stop()

		e.mu.Lock()
		preroll, tracks := e.preroll, e.tracks
		e.preroll, e.tracks = nil, nil
		e.mu.Unlock()

		var errs []error
		if preroll != nil {
			errs = append(errs, preroll.Release())
		}
		if tracks != nil {
			errs = append(errs, e.releaseTracks(tracks))
		}
		err = errors.Join(errs...)

		e.logger.Debug("audio engine shut down")
	})
	return err
}

// submit queues fn and waits for it. after, if set, runs when the command could not be queued
// or once it has finished.
func (e *AudioEngine) submit(ctx context.Context, name string, fn CommandFunc, after func()) error {
	command := fn
	if after != nil {
		command = func(ctx context.Context) error {
			defer after()
			return fn(ctx)
		}
	}

	done, err := e.queue.Enqueue(name, command)
	if err != nil {
		if after != nil {
			after()
		}
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleCommandError records a failed command in the snapshot.
func (e *AudioEngine) handleCommandError(name string, err error) {
	info := &domain.ErrorInfo{Message: err.Error()}
	// Details stays a nil interface for plain errors so it is omitted from JSON
	if details := domain.ErrorDetails(err); details != nil {
		info.Details = details
	}

	if _, updateErr := e.store.Update(func(snap *domain.Snapshot) {
		snap.Status = domain.StatusError
		snap.Error = info
	}); updateErr != nil {
		e.logger.Error("failed to record command error",
			slog.String("command", name),
			slog.Any("error", updateErr))
	}
}

// reportPosition is the poller callback. Positions only land while playing.
func (e *AudioEngine) reportPosition(positionMs int64) {
	_, _ = e.store.Update(func(snap *domain.Snapshot) {
		if snap.Status == domain.StatusPlaying {
			snap.PositionMs = positionMs
		}
	})
}

func (e *AudioEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// currentTracks returns the loaded main tracks and the pre-roll, either of which may be nil.
func (e *AudioEngine) currentTracks() (*trackSet, *Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracks, e.preroll
}

// pauseTracks pauses every main track, logging failures.
func (e *AudioEngine) pauseTracks(tracks *trackSet) {
	for _, track := range tracks.all() {
		if err := track.Pause(); err != nil {
			e.logger.Warn("failed to pause track",
				slog.String("role", string(track.Role())),
				slog.Any("error", err))
		}
	}
}

// releaseTracks frees every main track.
func (e *AudioEngine) releaseTracks(tracks *trackSet) error {
	var errs []error
	for _, track := range tracks.all() {
		if err := track.Release(); err != nil {
			errs = append(errs, domain.NewTrackError(track.Role(), "release", false, err))
		}
	}
	return errors.Join(errs...)
}
