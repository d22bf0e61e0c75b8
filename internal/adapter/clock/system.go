// Package clock provides implementations of the Clock port.
package clock

import (
	"context"
	"time"

	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// System is the wall clock.
type System struct{}

// NewSystem creates the wall clock.
func NewSystem() System {
	return System{}
}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is done.
func (System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewTicker wraps time.NewTicker.
func (System) NewTicker(d time.Duration) ports.Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }

func (s systemTicker) Stop() { s.t.Stop() }

var _ ports.Clock = System{}
