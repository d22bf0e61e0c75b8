package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tejashwikalptaru/mantra/internal/domain"
)

// prerollEligibleLocked reports whether Play may start the pre-roll: nothing is playing
// it yet and no main tracks are loaded. Callers hold e.mu.
func (e *AudioEngine) prerollEligibleLocked() bool {
	if e.closed || e.preroll != nil || e.tracks != nil {
		return false
	}

	switch e.store.Get().Status {
	case domain.StatusIdle, domain.StatusLoading, domain.StatusError, domain.StatusPaused:
		return true
	default:
		return false
	}
}

// startPreroll starts the atmosphere track and fades it in, without going through the queue.
// Failures are logged and published; playback goes on without the pre-roll.
func (e *AudioEngine) startPreroll(ctx context.Context) {
	e.mu.Lock()
	if e.prerollStarting || !e.prerollEligibleLocked() {
		e.mu.Unlock()
		return
	}
	e.prerollStarting = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.prerollStarting = false
		e.mu.Unlock()
	}()

	track, err := e.createPreroll(ctx)
	if err != nil {
		e.logger.Warn("pre-roll unavailable", slog.Any("error", err))
		e.bus.Publish(domain.NewPrerollFailedEvent(err))
		return
	}

	// Main tracks may have loaded while the player was starting
	e.mu.Lock()
	if !e.prerollEligibleLocked() {
		e.mu.Unlock()
		e.logger.Debug("pre-roll no longer needed")
		e.releasePreroll(track)
		return
	}

	e.preroll = track
	if _, err := e.store.Update(func(snap *domain.Snapshot) {
		snap.Status = domain.StatusPreroll
	}); err != nil {
		e.preroll = nil
		e.mu.Unlock()
		e.releasePreroll(track)
		return
	}
	// Claimed before e.mu is released so Stop, Pause or a crossfade always find the fade-in
	fadeIn := e.fader.Start(e.ctx, e.cfg.Timing.PrerollFadeIn,
		Ramp{Track: track, From: 0, To: e.cfg.Timing.PrerollVolume})
	e.background.Add(1)
	e.mu.Unlock()

	e.logger.Debug("pre-roll started", slog.String("uri", track.URI()))

	go func() {
		defer e.background.Done()
		if err := fadeIn(); err != nil && !isCancelled(err) {
			e.logger.Warn("pre-roll fade-in failed", slog.Any("error", err))
		}
	}()
}

// createPreroll resolves the pre-roll asset and starts it silent and looping.
func (e *AudioEngine) createPreroll(ctx context.Context) (*Track, error) {
	if e.cfg.PrerollAsset == "" {
		return nil, fmt.Errorf("%w: no asset configured", domain.ErrPrerollUnavailable)
	}

	uri, err := e.resolver.Resolve(ctx, e.cfg.PrerollAsset, domain.AssetPreroll)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPrerollUnavailable, err)
	}

	track, err := newTrack(e.player, domain.RolePreroll, uri, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPrerollUnavailable, err)
	}

	if err := track.SetVolume(0); err != nil {
		e.releasePreroll(track)
		return nil, fmt.Errorf("%w: %w", domain.ErrPrerollUnavailable, err)
	}

	if err := track.Play(); err != nil {
		e.releasePreroll(track)
		return nil, fmt.Errorf("%w: %w", domain.ErrPrerollUnavailable, err)
	}

	return track, nil
}

// detachPreroll takes the pre-roll away from the engine; the caller owns it afterwards.
func (e *AudioEngine) detachPreroll() *Track {
	e.mu.Lock()
	defer e.mu.Unlock()

	track := e.preroll
	e.preroll = nil
	return track
}

// fadeOutPreroll fades a detached pre-roll from its current level to silence and releases it.
func (e *AudioEngine) fadeOutPreroll(ctx context.Context, track *Track, d time.Duration) {
	if err := e.fader.Fade(ctx, track, FromCurrent, 0, d); err != nil && !isCancelled(err) {
		e.logger.Warn("pre-roll fade-out failed", slog.Any("error", err))
	}
	e.releasePreroll(track)
}

// abandonPreroll stops a pre-roll that was masking a load which will not complete.
func (e *AudioEngine) abandonPreroll(ctx context.Context, reason string) {
	track := e.detachPreroll()
	if track == nil {
		return
	}

	e.logger.Debug("abandoning pre-roll", slog.String("reason", reason))
	e.fadeOutPreroll(ctx, track, e.cfg.Timing.PrerollFadeOutOnStop)
}

func (e *AudioEngine) releasePreroll(track *Track) {
	e.fader.Cancel(track)
	if err := track.Release(); err != nil {
		e.logger.Warn("failed to release pre-roll", slog.Any("error", err))
	}
}
