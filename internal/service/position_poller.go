package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// PositionSource is the track the poller samples.
type PositionSource interface {
	CurrentTime() (time.Duration, error)
	Duration() time.Duration
}

// PositionPoller samples the master track on a fixed interval and reports a session position.
//
// The master loops, so its raw time wraps at the end of the track. The poller counts the
// wraps and reports base + raw, which keeps the position growing for as long as it runs.
type PositionPoller struct {
	logger   *slog.Logger
	clock    ports.Clock
	interval time.Duration
	report   func(positionMs int64)

	mu      sync.Mutex
	source  PositionSource
	baseMs  int64 // length of the loops completed before lastMs
	lastMs  int64 // last raw sample
	floorMs int64 // highest position reported in this run
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewPositionPoller creates a stopped poller that calls report on every sample.
func NewPositionPoller(logger *slog.Logger, clock ports.Clock, interval time.Duration, report func(positionMs int64)) *PositionPoller {
	return &PositionPoller{
		logger:   logger,
		clock:    clock,
		interval: interval,
		report:   report,
	}
}

// Start begins sampling source, continuing from positionMs.
// A running poller is stopped first.
func (p *PositionPoller) Start(source PositionSource, positionMs int64) {
	p.Stop()

	p.mu.Lock()
	p.source = source
	p.rebaseLocked(positionMs)
	p.running = true
	p.stop = make(chan struct{})
	stop := p.stop
	ticker := p.clock.NewTicker(p.interval)
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				p.sample()
			}
		}
	}()
}

// Stop halts sampling and waits for the sampling goroutine to exit.
// It reports whether the poller was running.
func (p *PositionPoller) Stop() bool {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return false
	}
	p.running = false
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	return true
}

// Running reports whether the poller is sampling.
func (p *PositionPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// rebaseLocked aligns the loop accumulator with a session position.
func (p *PositionPoller) rebaseLocked(positionMs int64) {
	positionMs = max(positionMs, 0)
	p.baseMs, p.lastMs = 0, positionMs
	if p.source != nil {
		if loopMs := p.source.Duration().Milliseconds(); loopMs > 0 {
			p.baseMs = positionMs - positionMs%loopMs
			p.lastMs = positionMs % loopMs
		}
	}
	p.floorMs = positionMs
}

func (p *PositionPoller) sample() {
	p.mu.Lock()
	source := p.source
	p.mu.Unlock()

	if source == nil {
		return
	}

	current, err := source.CurrentTime()
	if err != nil {
		p.logger.Debug("position sample failed", slog.Any("error", err))
		return
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}

	rawMs := current.Milliseconds()
	loopMs := source.Duration().Milliseconds()
	// A drop of more than half a loop is a wrap rather than jitter
	if loopMs > 0 && p.lastMs-rawMs > loopMs/2 {
		p.baseMs += loopMs
	}
	p.lastMs = rawMs

	position := max(p.baseMs+rawMs, p.floorMs)
	p.floorMs = position
	p.mu.Unlock()

	p.report(position)
}
