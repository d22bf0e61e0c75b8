package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// FromCurrent as a Ramp's From starts the ramp at the track's level once the fade owns it.
const FromCurrent = -1.0

// Ramp is one volume line driven by a fade.
type Ramp struct {
	Track *Track
	From  float64
	To    float64
}

// Fader runs linear volume ramps on tracks.
//
// Every ramp of a single Run advances on the same tick, so a crossfade's outgoing and
// incoming sides land on their targets together. A track belongs to at most one fade:
// starting a fade on a track cancels the fade it was in and waits for it to return.
type Fader struct {
	logger *slog.Logger
	clock  ports.Clock
	steps  int

	mu     sync.Mutex
	active map[*Track]*fade
}

// fade is one in-flight Run.
type fade struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFader creates a fader taking steps ticks per ramp.
func NewFader(logger *slog.Logger, clock ports.Clock, steps int) *Fader {
	if steps < 1 {
		steps = 1
	}
	return &Fader{
		logger: logger,
		clock:  clock,
		steps:  steps,
		active: make(map[*Track]*fade),
	}
}

// Fade ramps a single track from one volume to another over d.
func (f *Fader) Fade(ctx context.Context, track *Track, from, to float64, d time.Duration) error {
	return f.Run(ctx, d, Ramp{Track: track, From: from, To: to})
}

// Crossfade ramps out and every incoming ramp together over d.
func (f *Fader) Crossfade(ctx context.Context, out Ramp, in []Ramp, d time.Duration) error {
	return f.Run(ctx, d, append([]Ramp{out}, in...)...)
}

// Run drives every ramp from From to To in equal steps over d.
//
// It returns ctx.Err() if the fade was cancelled, either by ctx or by a newer fade on one
// of its tracks. Volume errors do not stop the ramp; the first one is returned at the end.
func (f *Fader) Run(ctx context.Context, d time.Duration, ramps ...Ramp) error {
	return f.Start(ctx, d, ramps...)()
}

// Start claims the ramps' tracks now and returns the function that drives them.
// Cancel and newer fades see the claim before the returned function runs.
// The returned function must be called exactly once.
func (f *Fader) Start(ctx context.Context, d time.Duration, ramps ...Ramp) func() error {
	if len(ramps) == 0 {
		return func() error { return nil }
	}
	ramps = append([]Ramp(nil), ramps...)

	ctx, cancel := context.WithCancel(ctx)
	current := &fade{cancel: cancel, done: make(chan struct{})}
	f.claim(ramps, current)

	return func() error {
		defer close(current.done)
		defer cancel()
		defer f.release(ramps, current)
		return f.drive(ctx, d, ramps)
	}
}

func (f *Fader) drive(ctx context.Context, d time.Duration, ramps []Ramp) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for i := range ramps {
		if ramps[i].From < 0 {
			ramps[i].From = ramps[i].Track.Volume()
		}
	}

	var volumeErr error
	apply := func(progress float64) {
		for _, r := range ramps {
			v := r.From + (r.To-r.From)*progress
			if err := r.Track.SetVolume(v); err != nil && volumeErr == nil {
				volumeErr = fmt.Errorf("fade %s: %w", r.Track.Role(), err)
			}
		}
	}

	apply(0)

	interval := d / time.Duration(f.steps)
	for step := 1; step <= f.steps; step++ {
		if err := f.clock.Sleep(ctx, interval); err != nil {
			return err
		}
		apply(float64(step) / float64(f.steps))
	}

	return volumeErr
}

// claim registers current as the owner of every ramp's track,
// cancelling and waiting for the fades it displaces.
func (f *Fader) claim(ramps []Ramp, current *fade) {
	f.mu.Lock()
	var displaced []*fade
	for _, r := range ramps {
		if previous, ok := f.active[r.Track]; ok && previous != current {
			displaced = append(displaced, previous)
		}
		f.active[r.Track] = current
	}
	f.mu.Unlock()

	for _, previous := range displaced {
		previous.cancel()
		<-previous.done
	}
}

func (f *Fader) release(ramps []Ramp, current *fade) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range ramps {
		if f.active[r.Track] == current {
			delete(f.active, r.Track)
		}
	}
}

// Cancel stops any fade driving track and waits for it to return.
func (f *Fader) Cancel(track *Track) {
	f.mu.Lock()
	current, ok := f.active[track]
	f.mu.Unlock()

	if ok {
		current.cancel()
		<-current.done
	}
}

// isCancelled reports whether err only says a fade was superseded or shut down.
func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
