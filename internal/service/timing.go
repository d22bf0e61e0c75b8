package service

import "time"

// Timing holds the fade and polling constants of the engine.
type Timing struct {
	// PrerollVolume is the level the pre-roll fades in to
	PrerollVolume float64

	// PrerollFadeIn is the pre-roll fade-in length
	PrerollFadeIn time.Duration

	// PrerollFadeOutOnPause is the pre-roll fade-out length when paused from preroll
	PrerollFadeOutOnPause time.Duration

	// PrerollFadeOutOnStop is the pre-roll fade-out length on stop
	PrerollFadeOutOnStop time.Duration

	// Crossfade is the pre-roll to main tracks transition length
	Crossfade time.Duration

	// FadeSteps is the number of volume steps in every linear ramp
	FadeSteps int

	// PollInterval is how often the master position is sampled
	PollInterval time.Duration
}

// DefaultTiming returns the production constants.
func DefaultTiming() Timing {
	return Timing{
		PrerollVolume:         0.10,
		PrerollFadeIn:         250 * time.Millisecond,
		PrerollFadeOutOnPause: 400 * time.Millisecond,
		PrerollFadeOutOnStop:  250 * time.Millisecond,
		Crossfade:             1750 * time.Millisecond,
		FadeSteps:             20,
		PollInterval:          250 * time.Millisecond,
	}
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
