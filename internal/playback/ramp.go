package playback

import (
	"context"
	"math"
	"time"
)

// Clock suspends the caller. Sleep returns early with the context error
// when ctx is cancelled.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Volume is anything whose level a ramp can move.
type Volume interface {
	Volume() float64
	SetVolume(v float64)
}

// Ramp moves a volume toward Target by at most Step per Tick. Once the
// remaining distance is within Snap the level jumps to Target.
type Ramp struct {
	Target float64
	Step   float64
	Snap   float64
	Tick   time.Duration
}

// FadeTo is the ramp used for ducking and raising background music.
func FadeTo(target float64) Ramp {
	return Ramp{Target: target, Step: 0.03, Snap: 0.02, Tick: 150 * time.Millisecond}
}

// FadeOut is the ramp used when a music track is replaced.
func FadeOut() Ramp {
	return Ramp{Target: 0, Step: 0.05, Tick: 200 * time.Millisecond}
}

// Next returns the level after one tick and whether the target was reached.
func (r Ramp) Next(current float64) (float64, bool) {
	diff := r.Target - current
	if dist := math.Abs(diff); dist <= r.Snap || dist <= r.Step {
		return r.Target, true
	}
	if diff > 0 {
		return current + r.Step, false
	}
	return current - r.Step, false
}

// Run applies the ramp one tick at a time until the target is reached or
// ctx is cancelled.
func (r Ramp) Run(ctx context.Context, clock Clock, v Volume) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, done := r.Next(v.Volume())
		v.SetVolume(next)
		if done {
			return nil
		}
		if err := clock.Sleep(ctx, r.Tick); err != nil {
			return err
		}
	}
}
