package clock

import (
	"context"
	"sync"
	"time"

	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// Fake is a manual clock for tests.
// Sleep advances virtual time and returns immediately; tickers only fire on Tick.
//
// Thread-safety: This implementation is thread-safe.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	tickers []*FakeTicker
}

// NewFake creates a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the virtual time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep records d, advances virtual time and returns without blocking.
// It still honours a cancelled context.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	if d > 0 {
		f.now = f.now.Add(d)
	}
	f.mu.Unlock()

	return nil
}

// Sleeps returns every duration passed to Sleep so far.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

// Advance moves virtual time forward without firing tickers.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// NewTicker creates a ticker that fires only when Tick is called.
func (f *Fake) NewTicker(d time.Duration) ports.Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	ticker := &FakeTicker{clock: f, period: d, c: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, ticker)
	return ticker
}

// Tick advances virtual time by each live ticker's period and fires it once.
// A ticker whose previous tick was not consumed yet drops the new one,
// the same way time.Ticker does.
func (f *Fake) Tick() {
	f.mu.Lock()
	live := make([]*FakeTicker, 0, len(f.tickers))
	for _, ticker := range f.tickers {
		if !ticker.isStopped() {
			live = append(live, ticker)
		}
	}
	f.tickers = live
	f.mu.Unlock()

	for _, ticker := range live {
		f.Advance(ticker.period)
		select {
		case ticker.c <- f.Now():
		default:
		}
	}
}

// ActiveTickers returns the number of tickers not stopped yet.
func (f *Fake) ActiveTickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, ticker := range f.tickers {
		if !ticker.isStopped() {
			count++
		}
	}
	return count
}

// FakeTicker is the ticker handed out by Fake.
type FakeTicker struct {
	clock   *Fake
	period  time.Duration
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

// C returns the tick channel.
func (t *FakeTicker) C() <-chan time.Time {
	return t.c
}

// Stop stops the ticker. It does not close C.
func (t *FakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *FakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

var _ ports.Clock = (*Fake)(nil)
