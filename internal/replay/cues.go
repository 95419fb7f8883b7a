package replay

import (
	"context"
	"math"
	"time"

	"novelnest/internal/playback"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

type Cue int

const (
	Success Cue = iota
	Failure
)

func (c Cue) String() string {
	if c == Success {
		return "success"
	}
	return "failure"
}

type tone struct {
	from, to float64
	length   time.Duration
	wave     func(phase float64) float64
}

var tones = map[Cue]tone{
	Success: {from: 523, to: 1046, length: 500 * time.Millisecond, wave: sine},
	Failure: {from: 150, to: 100, length: 300 * time.Millisecond, wave: sawtooth},
}

func sine(phase float64) float64 { return math.Sin(2 * math.Pi * phase) }

func sawtooth(phase float64) float64 { return 2 * (phase - math.Floor(phase+0.5)) }

const cueGain = 0.3

// sweep renders a tone gliding exponentially from one frequency to another
// with a linear fade to silence.
func sweep(sr beep.SampleRate, t tone) beep.Streamer {
	total := sr.N(t.length)
	i := 0
	phase := 0.0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if i >= total {
			return 0, false
		}
		n := 0
		for ; n < len(samples) && i < total; n, i = n+1, i+1 {
			pos := float64(i) / float64(total)
			v := t.wave(phase) * cueGain * (1 - pos)
			samples[n] = [2]float64{v, v}
			freq := t.from * math.Pow(t.to/t.from, pos)
			phase += freq / float64(sr)
			phase -= math.Floor(phase)
		}
		return n, true
	})
}

// ToneCues plays synthesised cues on the system speaker.
type ToneCues struct{}

func (ToneCues) Play(ctx context.Context, c Cue) error {
	if err := playback.InitSpeaker(); err != nil {
		return err
	}
	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: sweep(playback.OutputRate, tones[c])}
	speaker.Play(beep.Seq(ctrl, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		return ctx.Err()
	}
}
