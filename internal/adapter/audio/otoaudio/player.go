// Package otoaudio provides a PlatformPlayer backed by ebitengine/oto and go-mp3.
package otoaudio

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// monitorInterval is how often each track reports its status.
const monitorInterval = 250 * time.Millisecond

// oto allows a single context per process.
var (
	contextOnce sync.Once
	otoContext  *oto.Context
	contextRate int
	contextErr  error
)

func sharedContext(sampleRate int) (*oto.Context, error) {
	contextOnce.Do(func() {
		var ready chan struct{}
		otoContext, ready, contextErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
		})
		if contextErr == nil {
			<-ready
			contextRate = sampleRate
		}
	})
	if contextErr != nil {
		return nil, contextErr
	}
	if contextRate != sampleRate {
		return nil, fmt.Errorf("audio context already running at %d Hz", contextRate)
	}
	return otoContext, nil
}

// Player plays local MP3 files through the system audio device.
//
// Every track decodes its own file and owns an oto player; looping happens inside the
// decoded stream so playback never gaps. A monitor goroutine per track delivers status
// updates to listeners.
//
// Thread-safety: This implementation is thread-safe.
type Player struct {
	logger *slog.Logger

	mu          sync.Mutex
	ctx         *oto.Context
	sampleRate  int
	initialized bool
	tracks      map[domain.TrackHandle]*track
	nextHandle  domain.TrackHandle
}

// track is one decoded file and its oto player.
type track struct {
	uri    string
	file   *os.File
	stream *loopStream
	player *oto.Player

	mu        sync.Mutex
	loop      bool
	paused    bool
	finished  bool
	listeners map[int]domain.StatusListener
	nextID    int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewPlayer creates an uninitialized player.
func NewPlayer(logger *slog.Logger) *Player {
	return &Player{
		logger:     logger,
		tracks:     make(map[domain.TrackHandle]*track),
		nextHandle: 1,
	}
}

// Initialize opens the audio device at sampleRate.
func (p *Player) Initialize(sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return domain.ErrAlreadyInitialized
	}

	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return domain.NewPlayerError("initialize", "", "failed to open audio device", err)
	}

	p.ctx = ctx
	p.sampleRate = sampleRate
	p.initialized = true

	p.logger.Info("audio device ready", slog.Int("sample_rate", sampleRate))
	return nil
}

// Shutdown releases every track. The device itself stays open for the process.
func (p *Player) Shutdown() error {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return domain.ErrNotInitialized
	}
	tracks := p.tracks
	p.tracks = make(map[domain.TrackHandle]*track)
	p.initialized = false
	p.mu.Unlock()

	for handle, t := range tracks {
		if err := t.close(); err != nil {
			p.logger.Warn("failed to close track during shutdown",
				slog.Int64("handle", int64(handle)),
				slog.Any("error", err))
		}
	}
	return nil
}

// IsInitialized returns true if the device is open.
func (p *Player) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// Create opens and decodes uri. Accepts plain paths and file:// URIs.
func (p *Player) Create(uri string) (domain.TrackHandle, error) {
	p.mu.Lock()
	ctx, sampleRate, initialized := p.ctx, p.sampleRate, p.initialized
	p.mu.Unlock()

	if !initialized {
		return domain.InvalidTrackHandle, domain.ErrNotInitialized
	}

	path := strings.TrimPrefix(uri, "file://")
	if path == "" {
		return domain.InvalidTrackHandle, domain.ErrFileNotFound
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.InvalidTrackHandle, domain.ErrFileNotFound
		}
		return domain.InvalidTrackHandle, domain.NewPlayerError("create", uri, "failed to open file", err)
	}

	if _, err := checkContainer(file); err != nil {
		_ = file.Close()
		return domain.InvalidTrackHandle, domain.NewPlayerError("create", uri, "unsupported container", err)
	}

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		_ = file.Close()
		return domain.InvalidTrackHandle, domain.NewPlayerError("create", uri, "not an mp3 stream", domain.ErrUnsupportedFormat)
	}
	if decoder.SampleRate() != sampleRate {
		_ = file.Close()
		return domain.InvalidTrackHandle, domain.NewPlayerError("create", uri,
			fmt.Sprintf("sample rate %d does not match the device rate %d", decoder.SampleRate(), sampleRate),
			domain.ErrUnsupportedFormat)
	}

	stream := newLoopStream(decoder)
	player := ctx.NewPlayer(stream)
	player.SetVolume(1.0)

	t := &track{
		uri:       uri,
		file:      file,
		stream:    stream,
		player:    player,
		paused:    true,
		listeners: make(map[int]domain.StatusListener),
		stop:      make(chan struct{}),
	}

	p.mu.Lock()
	handle := p.nextHandle
	p.nextHandle++
	p.tracks[handle] = t
	p.mu.Unlock()

	t.wg.Add(1)
	go p.monitor(t)

	p.logger.Debug("track created", slog.String("uri", uri), slog.Int64("handle", int64(handle)))
	return handle, nil
}

// Release stops the track and frees its file.
func (p *Player) Release(handle domain.TrackHandle) error {
	p.mu.Lock()
	t, ok := p.tracks[handle]
	if ok {
		delete(p.tracks, handle)
	}
	initialized := p.initialized
	p.mu.Unlock()

	if !initialized {
		return domain.ErrNotInitialized
	}
	if !ok {
		return domain.ErrInvalidTrackHandle
	}
	return t.close()
}

// Play starts or resumes the track.
func (p *Player) Play(handle domain.TrackHandle) error {
	t, err := p.track(handle)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.paused = false
	t.finished = false
	t.mu.Unlock()

	t.player.Play()
	if err := t.player.Err(); err != nil {
		return domain.NewPlayerError("play", t.uri, "playback failed", err)
	}
	return nil
}

// Pause pauses the track.
func (p *Player) Pause(handle domain.TrackHandle) error {
	t, err := p.track(handle)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()

	t.player.Pause()
	return nil
}

// SeekTo moves the track to position, wrapping it for looping tracks.
func (p *Player) SeekTo(handle domain.TrackHandle, position time.Duration) error {
	if position < 0 {
		return domain.ErrInvalidPosition
	}

	t, err := p.track(handle)
	if err != nil {
		return err
	}

	offset := durationToBytes(position, p.rate())
	if length := t.stream.length; length > 0 && offset > length {
		t.mu.Lock()
		loop := t.loop
		t.mu.Unlock()
		if loop {
			offset %= length
		} else {
			offset = length
		}
	}

	if _, err := t.player.Seek(offset, io.SeekStart); err != nil {
		return domain.NewPlayerError("seek", t.uri, "seek failed", err)
	}
	return nil
}

// SetVolume sets the track gain.
func (p *Player) SetVolume(handle domain.TrackHandle, volume float64) error {
	if volume < 0 || volume > 1 {
		return domain.ErrInvalidVolume
	}

	t, err := p.track(handle)
	if err != nil {
		return err
	}

	t.player.SetVolume(volume)
	return nil
}

// Volume returns the track gain.
func (p *Player) Volume(handle domain.TrackHandle) (float64, error) {
	t, err := p.track(handle)
	if err != nil {
		return 0, err
	}
	return t.player.Volume(), nil
}

// SetLoop enables or disables looping at the end of the track.
func (p *Player) SetLoop(handle domain.TrackHandle, loop bool) error {
	t, err := p.track(handle)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.loop = loop
	t.mu.Unlock()

	t.stream.setLoop(loop)
	return nil
}

// Duration returns the decoded length of the track.
func (p *Player) Duration(handle domain.TrackHandle) (time.Duration, error) {
	t, err := p.track(handle)
	if err != nil {
		return 0, err
	}
	return bytesToDuration(t.stream.length, p.rate()), nil
}

// CurrentTime returns the audible position within the track.
func (p *Player) CurrentTime(handle domain.TrackHandle) (time.Duration, error) {
	t, err := p.track(handle)
	if err != nil {
		return 0, err
	}
	return p.currentTime(t), nil
}

// AddStatusListener registers fn. The first update is delivered right away with the duration.
func (p *Player) AddStatusListener(handle domain.TrackHandle, fn domain.StatusListener) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("status listener cannot be nil")
	}

	t, err := p.track(handle)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	// The monitor delivers on its next tick; report the loaded state now
	status := p.status(t, false)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn(status)
	}()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}, nil
}

// monitor reports the track status every monitorInterval until the track is closed.
func (p *Player) monitor(t *track) {
	defer t.wg.Done()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}

		_, ended := t.stream.position()
		t.mu.Lock()
		justFinished := ended && !t.paused && !t.finished && !t.player.IsPlaying()
		if justFinished {
			t.finished = true
		}
		listeners := make([]domain.StatusListener, 0, len(t.listeners))
		for _, fn := range t.listeners {
			listeners = append(listeners, fn)
		}
		t.mu.Unlock()

		if len(listeners) == 0 {
			continue
		}

		status := p.status(t, justFinished)
		for _, fn := range listeners {
			fn(status)
		}
	}
}

func (p *Player) status(t *track, justFinished bool) domain.PlayerStatus {
	rate := p.rate()
	return domain.PlayerStatus{
		IsLoaded:      true,
		Playing:       t.player.IsPlaying(),
		Duration:      bytesToDuration(t.stream.length, rate),
		CurrentTime:   p.currentTime(t),
		DidJustFinish: justFinished,
	}
}

func (p *Player) currentTime(t *track) time.Duration {
	read, _ := t.stream.position()

	t.mu.Lock()
	loop := t.loop
	t.mu.Unlock()

	return bytesToDuration(playedBytes(read, t.player.BufferedSize(), t.stream.length, loop), p.rate())
}

func (p *Player) rate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampleRate
}

func (p *Player) track(handle domain.TrackHandle) (*track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil, domain.ErrNotInitialized
	}
	t, ok := p.tracks[handle]
	if !ok {
		return nil, domain.ErrInvalidTrackHandle
	}
	return t, nil
}

// close stops the monitor and frees the oto player and the file.
func (t *track) close() error {
	close(t.stop)
	t.player.Pause()
	t.wg.Wait()

	t.mu.Lock()
	t.listeners = make(map[int]domain.StatusListener)
	t.mu.Unlock()

	t.player.Close()
	return t.file.Close()
}

// Verify that Player implements the PlatformPlayer interface
var _ ports.PlatformPlayer = (*Player)(nil)
