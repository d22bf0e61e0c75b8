package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tejashwikalptaru/mantra/internal/domain"
)

// trackSpec describes one main track of a bundle before it is resolved.
type trackSpec struct {
	role       domain.TrackRole
	kind       domain.AssetKind
	identifier string
	loop       bool
}

// loadCommand returns the queued body of Load for bundle.
func (e *AudioEngine) loadCommand(bundle domain.Bundle) CommandFunc {
	return func(ctx context.Context) error {
		return e.load(ctx, &bundle)
	}
}

func (e *AudioEngine) loadDone() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadsPending--
}

// loadStagedIfNeeded queues a load of the staged bundle when it has no tracks and
// no load is pending, which happens after a failed load.
func (e *AudioEngine) loadStagedIfNeeded() {
	e.mu.Lock()
	staged := e.staged
	needed := staged != nil && e.tracks == nil && e.loadsPending == 0
	if needed {
		e.loadsPending++
	}
	e.mu.Unlock()

	if !needed {
		return
	}

	e.logger.Debug("loading staged bundle before play", slog.String("session_id", staged.SessionID))
	command := e.loadCommand(*staged)
	if _, err := e.queue.Enqueue("load", func(ctx context.Context) error {
		defer e.loadDone()
		return command(ctx)
	}); err != nil {
		e.loadDone()
	}
}

// load tears down the current session, creates the tracks of bundle and applies the mix.
func (e *AudioEngine) load(ctx context.Context, bundle *domain.Bundle) error {
	log := e.logger.With(slog.String("session_id", bundle.SessionID))

	if err := bundle.Validate(); err != nil {
		return domain.NewBundleLoadError(bundle.SessionID, "validate", "", err)
	}

	if err := e.teardownForLoad(log); err != nil {
		return domain.NewBundleLoadError(bundle.SessionID, "teardown", "", err)
	}

	// Stage the bundle; a running pre-roll keeps the preroll status
	e.mu.Lock()
	e.staged = bundle
	_, err := e.store.Update(func(snap *domain.Snapshot) {
		if e.preroll != nil {
			snap.Status = domain.StatusPreroll
		} else {
			snap.Status = domain.StatusLoading
		}
		snap.SessionID = bundle.SessionID
		snap.PositionMs = 0
		snap.DurationMs = 0
	})
	e.mu.Unlock()
	if err != nil {
		return domain.NewBundleLoadError(bundle.SessionID, "stage", "", err)
	}

	e.poller.Stop()

	// Release tracks that survived teardown, e.g. after a failed play
	e.mu.Lock()
	old := e.tracks
	e.tracks = nil
	e.mu.Unlock()
	if old != nil {
		if err := e.releaseTracks(old); err != nil {
			log.Warn("failed to release previous tracks", slog.Any("error", err))
		}
	}

	tracks, err := e.createTracks(ctx, log, bundle)
	if err != nil {
		e.abandonPreroll(ctx, "load failed")
		return err
	}

	// Keep a mix the user adjusted; otherwise take the bundle's
	mix := e.store.Get().Mix
	if mix.IsDefault() {
		mix = bundle.Mix.Clamp()
	}
	for _, track := range tracks.all() {
		if err := track.SetVolume(mix.Gain(track.Role())); err != nil {
			_ = e.releaseTracks(tracks)
			e.abandonPreroll(ctx, "load failed")
			return domain.NewBundleLoadError(bundle.SessionID, "volume", track.Role(), err)
		}
	}

	if err := e.listen(tracks); err != nil {
		_ = e.releaseTracks(tracks)
		e.abandonPreroll(ctx, "load failed")
		return err
	}

	e.mu.Lock()
	e.tracks = tracks
	prerollActive := e.preroll != nil
	_, err = e.store.Update(func(snap *domain.Snapshot) {
		if prerollActive {
			snap.Status = domain.StatusPreroll
		} else {
			snap.Status = domain.StatusReady
		}
		snap.Mix = mix
	})
	e.mu.Unlock()
	if err != nil {
		return domain.NewBundleLoadError(bundle.SessionID, "ready", "", err)
	}

	log.Info("bundle loaded",
		slog.String("tone", string(tracks.toneKind)),
		slog.Bool("preroll_active", prerollActive))
	e.bus.Publish(domain.NewBundleLoadedEvent(bundle.SessionID, tracks.toneKind, mix))

	// The pre-roll was masking this load: hand over to the main tracks
	if prerollActive {
		if _, err := e.queue.Enqueue("crossfade", e.autoPlay); err != nil {
			log.Debug("automatic crossfade not queued", slog.Any("error", err))
		}
	}

	return nil
}

// teardownForLoad stops the session a new load supersedes and moves the snapshot to idle.
// The pre-roll is left running.
func (e *AudioEngine) teardownForLoad(log *slog.Logger) error {
	status := e.store.Get().Status

	e.mu.Lock()
	current := e.tracks
	e.mu.Unlock()

	switch {
	case status == domain.StatusPaused:
	case current != nil && (status == domain.StatusReady || status == domain.StatusPlaying || status == domain.StatusPreroll):
	default:
		return nil
	}

	log.Debug("tearing down current session", slog.String("status", status.String()))

	e.poller.Stop()

	if current != nil {
		e.pauseTracks(current)

		e.mu.Lock()
		e.tracks = nil
		e.mu.Unlock()

		if err := e.releaseTracks(current); err != nil {
			log.Warn("failed to release superseded tracks", slog.Any("error", err))
		}
	}

	_, err := e.store.Update(func(snap *domain.Snapshot) {
		snap.Status = domain.StatusIdle
		snap.PositionMs = 0
		snap.DurationMs = 0
	})
	return err
}

// createTracks resolves the bundle's assets for the configured platform and creates the
// three main tracks. Created tracks are released if a later one fails.
func (e *AudioEngine) createTracks(ctx context.Context, log *slog.Logger, bundle *domain.Bundle) (*trackSet, error) {
	tone, toneKind := bundle.Tone()
	specs := []trackSpec{
		// The master always loops, whatever the bundle says about its layers
		{role: domain.RoleAffirmations, kind: domain.AssetAffirmations, identifier: bundle.AffirmationsURL, loop: true},
		{role: domain.RoleBinaural, kind: toneKind, identifier: tone.URLByPlatform.For(e.cfg.Platform), loop: tone.Loop},
		{role: domain.RoleBackground, kind: domain.AssetBackground, identifier: bundle.Background.URLByPlatform.For(e.cfg.Platform), loop: bundle.Background.Loop},
	}
	log.Debug("affirmations track forced to loop", slog.Bool("tone_loop", tone.Loop), slog.Bool("background_loop", bundle.Background.Loop))

	uris := make([]string, len(specs))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		group.Go(func() error {
			if spec.identifier == "" {
				return domain.NewBundleLoadError(bundle.SessionID, "resolve", spec.role,
					fmt.Errorf("%w: no %s url for platform %s", domain.ErrAssetNotFound, spec.kind, e.cfg.Platform))
			}
			uri, err := e.resolver.Resolve(groupCtx, spec.identifier, spec.kind)
			if err != nil {
				return domain.NewBundleLoadError(bundle.SessionID, "resolve", spec.role, err)
			}
			uris[i] = uri
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	created := make([]*Track, 0, len(specs))
	for i, spec := range specs {
		track, err := newTrack(e.player, spec.role, uris[i], spec.loop)
		if err != nil {
			for _, t := range created {
				if releaseErr := t.Release(); releaseErr != nil {
					log.Warn("failed to release partial track", slog.Any("error", releaseErr))
				}
			}
			return nil, domain.NewBundleLoadError(bundle.SessionID, "create", spec.role, err)
		}
		created = append(created, track)
	}

	return &trackSet{
		sessionID:    bundle.SessionID,
		toneKind:     toneKind,
		affirmations: created[0],
		tone:         created[1],
		background:   created[2],
	}, nil
}

// listen subscribes to the status stream of every main track. The master's duration
// goes to the snapshot; other layers that finish without looping are reported.
func (e *AudioEngine) listen(tracks *trackSet) error {
	for _, track := range tracks.all() {
		var err error
		if track == tracks.affirmations {
			err = track.Listen(func(status domain.PlayerStatus) {
				if status.IsLoaded && status.Duration > 0 {
					e.reportDuration(tracks, status.Duration.Milliseconds())
				}
			})
		} else {
			err = track.Listen(func(status domain.PlayerStatus) {
				if status.DidJustFinish && !track.Loop() {
					e.logger.Info("track finished",
						slog.String("session_id", tracks.sessionID),
						slog.String("role", string(track.Role())))
					e.bus.Publish(domain.NewTrackFinishedEvent(tracks.sessionID, track.Role()))
				}
			})
		}
		if err != nil {
			return domain.NewBundleLoadError(tracks.sessionID, "listen", track.Role(), err)
		}
	}
	return nil
}

// reportDuration stores the master duration while its session is the current one.
// Released tracks stop reporting, so a stale set never gets here.
func (e *AudioEngine) reportDuration(tracks *trackSet, durationMs int64) {
	_, _ = e.store.Update(func(snap *domain.Snapshot) {
		if snap.SessionID == tracks.sessionID {
			snap.DurationMs = durationMs
		}
	})
}
