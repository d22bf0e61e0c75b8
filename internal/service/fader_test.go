package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/mantra/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/mantra/internal/adapter/clock"
	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/logger"
	"github.com/tejashwikalptaru/mantra/internal/ports"
	"github.com/tejashwikalptaru/mantra/internal/testutil"
)

// blockingClock sleeps until the context is done, reporting each sleep on started.
type blockingClock struct {
	*clock.Fake
	started chan struct{}
}

func (c *blockingClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case c.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

var _ ports.Clock = (*blockingClock)(nil)

func newFaderTrack(t *testing.T, player *mock.Player, uri string) *Track {
	t.Helper()
	track, err := newTrack(player, domain.RoleBackground, uri, true)
	require.NoError(t, err)
	return track
}

func newFaderPlayer(t *testing.T) *mock.Player {
	t.Helper()
	player := mock.NewPlayer()
	require.NoError(t, player.Initialize(44100))
	t.Cleanup(func() { _ = player.Shutdown() })
	return player
}

func TestFader_Fade(t *testing.T) {
	player := newFaderPlayer(t)
	fake := clock.NewFake(time.Unix(0, 0))
	fader := NewFader(logger.NewTestLogger(), fake, 20)
	track := newFaderTrack(t, player, "bg.mp3")

	require.NoError(t, fader.Fade(context.Background(), track, 0, 0.5, 400*time.Millisecond))

	state, _ := player.Track("bg.mp3")
	require.Len(t, state.Volumes, 21)
	assert.Equal(t, 0.0, state.Volumes[0])
	assert.InDelta(t, 0.25, state.Volumes[10], 1e-9)
	assert.InDelta(t, 0.5, state.Volume, 1e-9)

	sleeps := fake.Sleeps()
	require.Len(t, sleeps, 20)
	for _, d := range sleeps {
		assert.Equal(t, 20*time.Millisecond, d)
	}
	assert.InDelta(t, 0.5, track.Volume(), 1e-9)
}

func TestFader_CrossfadeLandsTogether(t *testing.T) {
	player := newFaderPlayer(t)
	fader := NewFader(logger.NewTestLogger(), clock.NewFake(time.Unix(0, 0)), 20)
	out := newFaderTrack(t, player, "preroll.mp3")
	in1 := newFaderTrack(t, player, "aff.mp3")
	in2 := newFaderTrack(t, player, "bg.mp3")

	err := fader.Crossfade(context.Background(),
		Ramp{Track: out, From: 0.1, To: 0},
		[]Ramp{{Track: in1, From: 0, To: 0.9}, {Track: in2, From: 0, To: 0.4}},
		1750*time.Millisecond)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, out.Volume(), 1e-9)
	assert.InDelta(t, 0.9, in1.Volume(), 1e-9)
	assert.InDelta(t, 0.4, in2.Volume(), 1e-9)

	for _, uri := range []string{"preroll.mp3", "aff.mp3", "bg.mp3"} {
		state, _ := player.Track(uri)
		assert.Len(t, state.Volumes, 21, uri)
	}
}

func TestFader_ZeroDurationJumps(t *testing.T) {
	player := newFaderPlayer(t)
	fader := NewFader(logger.NewTestLogger(), clock.NewFake(time.Unix(0, 0)), 0)
	track := newFaderTrack(t, player, "bg.mp3")

	require.NoError(t, fader.Fade(context.Background(), track, 1, 0.2, 0))
	assert.InDelta(t, 0.2, track.Volume(), 1e-9)
	assert.NoError(t, fader.Run(context.Background(), time.Second))
}

func TestFader_CancelledContext(t *testing.T) {
	player := newFaderPlayer(t)
	fader := NewFader(logger.NewTestLogger(), clock.NewFake(time.Unix(0, 0)), 20)
	track := newFaderTrack(t, player, "bg.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fader.Fade(ctx, track, 0, 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, isCancelled(err))

	state, _ := player.Track("bg.mp3")
	assert.Empty(t, state.Volumes, "a cancelled fade never touches the volume")
}

func TestFader_NewFadeSupersedesOld(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	player := newFaderPlayer(t)
	blocking := &blockingClock{Fake: clock.NewFake(time.Unix(0, 0)), started: make(chan struct{}, 1)}
	fader := NewFader(logger.NewTestLogger(), blocking, 20)
	track := newFaderTrack(t, player, "bg.mp3")

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = fader.Fade(context.Background(), track, 0, 1, time.Second)
	}()
	<-blocking.started

	// The second fade takes the track; the first returns cancelled
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fader.Fade(ctx, track, 1, 0, time.Second) }()

	wg.Wait()
	assert.ErrorIs(t, firstErr, context.Canceled)

	<-blocking.started
	fader.Cancel(track)
	assert.ErrorIs(t, <-done, context.Canceled)
	cancel()

	// Cancel without a fade is a no-op
	fader.Cancel(track)
}

func TestFader_VolumeErrorReportedAtEnd(t *testing.T) {
	player := newFaderPlayer(t)
	fake := clock.NewFake(time.Unix(0, 0))
	fader := NewFader(logger.NewTestLogger(), fake, 20)
	good := newFaderTrack(t, player, "aff.mp3")
	bad := newFaderTrack(t, player, "bg.mp3")
	require.NoError(t, bad.Release())

	err := fader.Run(context.Background(), time.Second,
		Ramp{Track: good, From: 0, To: 1},
		Ramp{Track: bad, From: 0, To: 1})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidTrackHandle))
	assert.Len(t, fake.Sleeps(), 20, "the ramp runs to completion")
	assert.InDelta(t, 1.0, good.Volume(), 1e-9)
}

func TestFader_StartClaimsBeforeRunning(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	player := newFaderPlayer(t)
	blocking := &blockingClock{Fake: clock.NewFake(time.Unix(0, 0)), started: make(chan struct{}, 1)}
	fader := NewFader(logger.NewTestLogger(), blocking, 20)
	track := newFaderTrack(t, player, "preroll.mp3")

	run := fader.Start(context.Background(), time.Second, Ramp{Track: track, From: 0, To: 0.1})

	// Cancel must see the fade even though nothing has driven it yet
	cancelled := make(chan struct{})
	go func() {
		fader.Cancel(track)
		close(cancelled)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- run() }()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not stop a started fade")
	}
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestFader_FromCurrent(t *testing.T) {
	player := newFaderPlayer(t)
	fader := NewFader(logger.NewTestLogger(), clock.NewFake(time.Unix(0, 0)), 20)
	track := newFaderTrack(t, player, "preroll.mp3")
	require.NoError(t, track.SetVolume(0.08))

	require.NoError(t, fader.Fade(context.Background(), track, FromCurrent, 0, 250*time.Millisecond))

	state, ok := player.Track("preroll.mp3")
	require.True(t, ok)
	require.Len(t, state.Volumes, 22)
	assert.InDelta(t, 0.08, state.Volumes[1], 1e-9, "the ramp starts where the track was")
	assert.InDelta(t, 0.0, state.Volumes[21], 1e-9)
}
