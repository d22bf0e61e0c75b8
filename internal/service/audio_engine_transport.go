package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tejashwikalptaru/mantra/internal/domain"
)

// play branches on the current status: crossfade from the pre-roll, start the loaded
// tracks, or keep waiting in preroll for a load.
func (e *AudioEngine) play(ctx context.Context) error {
	snap := e.store.Get()
	if snap.Status == domain.StatusPlaying {
		e.logger.Debug("play ignored, already playing")
		return nil
	}

	e.mu.Lock()
	tracks, preroll, staged := e.tracks, e.preroll, e.staged
	e.mu.Unlock()

	switch {
	case tracks != nil && preroll != nil:
		return e.crossfadeToMain(ctx, tracks, snap.PositionMs)
	case tracks != nil:
		return e.startMain(tracks, snap.PositionMs)
	case preroll != nil:
		e.logger.Debug("play waiting in preroll for tracks")
		return nil
	case staged == nil:
		return domain.ErrNoBundle
	case snap.Status == domain.StatusError:
		// Keep the error of the load that left nothing to play
		e.logger.Debug("play ignored, staged bundle failed to load", slog.String("session_id", staged.SessionID))
		return nil
	default:
		return domain.ErrNoTracksLoaded
	}
}

// autoPlay is the crossfade queued by a load that completed under the pre-roll.
// It does nothing if a command in between already left preroll.
func (e *AudioEngine) autoPlay(ctx context.Context) error {
	_, preroll := e.currentTracks()
	if preroll == nil || e.store.Get().Status != domain.StatusPreroll {
		e.logger.Debug("automatic crossfade skipped")
		return nil
	}
	return e.play(ctx)
}

// startMain starts the main tracks at their current level, then polls and reports playing.
func (e *AudioEngine) startMain(tracks *trackSet, positionMs int64) error {
	if _, err := e.startTracks(tracks); err != nil {
		return err
	}

	e.poller.Start(tracks.affirmations, positionMs)
	if err := e.store.SetStatus(domain.StatusPlaying); err != nil {
		e.poller.Stop()
		e.pauseTracks(tracks)
		return err
	}

	e.logger.Info("session playing", slog.String("session_id", tracks.sessionID))
	return nil
}

// crossfadeToMain starts the main tracks silent and crossfades from the pre-roll to the mix.
// The status only becomes playing once the crossfade window has elapsed.
func (e *AudioEngine) crossfadeToMain(ctx context.Context, tracks *trackSet, positionMs int64) error {
	for _, track := range tracks.all() {
		if err := track.SetVolume(0); err != nil {
			e.logger.Warn("failed to silence track before crossfade",
				slog.String("role", string(track.Role())),
				slog.Any("error", err))
		}
	}

	started, err := e.startTracks(tracks)
	if err != nil {
		e.abandonPreroll(ctx, "main tracks failed to start")
		return err
	}

	preroll := e.detachPreroll()
	mix := e.store.Get().Mix

	in := make([]Ramp, 0, len(started))
	for _, track := range started {
		in = append(in, Ramp{Track: track, From: 0, To: mix.Gain(track.Role())})
	}

	if preroll != nil {
		out := Ramp{Track: preroll, From: FromCurrent, To: 0}
		if err := e.fader.Crossfade(ctx, out, in, e.cfg.Timing.Crossfade); err != nil {
			e.logger.Warn("crossfade interrupted, applying mix", slog.Any("error", err))
			e.applyRampTargets(in)
		}
		e.releasePreroll(preroll)
	} else {
		e.applyRampTargets(in)
	}

	e.poller.Start(tracks.affirmations, positionMs)
	if err := e.store.SetStatus(domain.StatusPlaying); err != nil {
		e.poller.Stop()
		e.pauseTracks(tracks)
		return err
	}

	e.logger.Info("session playing after crossfade", slog.String("session_id", tracks.sessionID))
	return nil
}

// applyRampTargets jumps every ramp to its end level.
func (e *AudioEngine) applyRampTargets(ramps []Ramp) {
	for _, r := range ramps {
		if err := r.Track.SetVolume(r.To); err != nil {
			e.logger.Warn("failed to set track volume",
				slog.String("role", string(r.Track.Role())),
				slog.Any("error", err))
		}
	}
}

// startTracks plays every main track in parallel and waits for all of them.
// A master failure is critical: the other tracks are paused again and a TrackError returned.
// Tone and background failures are degraded: logged, published, and left out of the result.
func (e *AudioEngine) startTracks(tracks *trackSet) ([]*Track, error) {
	all := tracks.all()
	errs := make([]error, len(all))

	var group errgroup.Group
	for i, track := range all {
		group.Go(func() error {
			errs[i] = track.Play()
			return nil
		})
	}
	_ = group.Wait()

	var critical error
	started := make([]*Track, 0, len(all))
	for i, track := range all {
		switch {
		case errs[i] == nil:
			started = append(started, track)
		case track == tracks.affirmations:
			critical = domain.NewTrackError(track.Role(), "play", true, errs[i])
		default:
			e.logger.Warn("track failed to start, continuing degraded",
				slog.String("session_id", tracks.sessionID),
				slog.String("role", string(track.Role())),
				slog.Any("error", errs[i]))
			e.bus.Publish(domain.NewTrackDegradedEvent(tracks.sessionID, track.Role(),
				domain.NewTrackError(track.Role(), "play", false, errs[i])))
		}
	}

	if critical != nil {
		for _, track := range started {
			_ = track.Pause()
		}
		return nil, critical
	}
	return started, nil
}

// pause pauses from playing or preroll; a pre-roll fades out and is released.
func (e *AudioEngine) pause(ctx context.Context) error {
	status := e.store.Get().Status
	if status != domain.StatusPlaying && status != domain.StatusPreroll {
		e.logger.Debug("pause ignored", slog.String("status", status.String()))
		return nil
	}

	tracks, _ := e.currentTracks()
	if tracks != nil {
		e.pauseTracks(tracks)
	}

	if status == domain.StatusPreroll {
		if preroll := e.detachPreroll(); preroll != nil {
			e.fadeOutPreroll(ctx, preroll, e.cfg.Timing.PrerollFadeOutOnPause)
		}
	}

	e.poller.Stop()
	return e.store.SetStatus(domain.StatusPaused)
}

// stop passes through stopping to idle, rewinding the main tracks but keeping them loaded.
func (e *AudioEngine) stop(ctx context.Context) error {
	if status := e.store.Get().Status; status == domain.StatusIdle {
		e.logger.Debug("stop ignored, already idle")
		return nil
	}

	if err := e.store.SetStatus(domain.StatusStopping); err != nil {
		return err
	}

	if preroll := e.detachPreroll(); preroll != nil {
		e.fadeOutPreroll(ctx, preroll, e.cfg.Timing.PrerollFadeOutOnStop)
	}

	tracks, _ := e.currentTracks()
	if tracks != nil {
		e.pauseTracks(tracks)
		for _, track := range tracks.all() {
			if err := track.SeekTo(0); err != nil {
				e.logger.Warn("failed to rewind track",
					slog.String("role", string(track.Role())),
					slog.Any("error", err))
			}
		}
	}

	e.poller.Stop()

	_, err := e.store.Update(func(snap *domain.Snapshot) {
		snap.Status = domain.StatusIdle
		snap.PositionMs = 0
	})
	return err
}

// seek moves the master to positionMs and the other layers to the same phase of their loop.
func (e *AudioEngine) seek(_ context.Context, positionMs int64) error {
	tracks, _ := e.currentTracks()
	if tracks == nil {
		e.logger.Debug("seek ignored, no tracks loaded")
		return nil
	}

	polling := e.poller.Stop()

	if err := tracks.affirmations.SeekTo(msToDuration(positionMs)); err != nil {
		if polling {
			e.poller.Start(tracks.affirmations, e.store.Get().PositionMs)
		}
		return domain.NewTrackError(domain.RoleAffirmations, "seek", true, err)
	}

	for _, track := range []*Track{tracks.tone, tracks.background} {
		target := positionMs
		if durationMs := track.Duration().Milliseconds(); durationMs > 0 {
			target = positionMs % durationMs
		}
		if err := track.SeekTo(msToDuration(target)); err != nil {
			e.logger.Warn("failed to seek track",
				slog.String("role", string(track.Role())),
				slog.Any("error", err))
		}
	}

	if _, err := e.store.Update(func(snap *domain.Snapshot) {
		snap.PositionMs = positionMs
	}); err != nil {
		return err
	}

	if polling {
		e.poller.Start(tracks.affirmations, positionMs)
	}
	return nil
}

// setMix applies mix to the loaded tracks and the snapshot.
func (e *AudioEngine) setMix(mix domain.Mix) error {
	tracks, _ := e.currentTracks()
	if tracks != nil {
		for _, track := range tracks.all() {
			if err := track.SetVolume(mix.Gain(track.Role())); err != nil {
				e.logger.Warn("failed to apply mix",
					slog.String("role", string(track.Role())),
					slog.Any("error", err))
			}
		}
	}

	_, err := e.store.Update(func(snap *domain.Snapshot) {
		snap.Mix = mix
	})
	return err
}
