package playback

import (
	"math"
	"math/rand"
	"time"

	"github.com/faiface/beep"
)

const (
	reverbLength = 1500 * time.Millisecond
	reverbTaps   = 192
	reverbDecay  = 5.0
)

type tap struct {
	delay int
	gain  float64
}

// impulse samples an exponentially decaying noise response at sparse
// random delays.
func impulse(sr beep.SampleRate, length time.Duration, taps int, rnd *rand.Rand) []tap {
	total := sr.N(length)
	if total < 2 || taps <= 0 {
		return nil
	}
	norm := 1 / math.Sqrt(float64(taps))
	out := make([]tap, taps)
	for i := range out {
		d := 1 + rnd.Intn(total-1)
		decay := math.Exp(-reverbDecay * float64(d) / float64(total))
		out[i] = tap{delay: d, gain: (rnd.Float64()*2 - 1) * decay * norm}
	}
	return out
}

// reverb mixes the dry signal with a wet copy convolved with the impulse.
// After the source drains it keeps streaming silence through the impulse
// so the tail rings out.
type reverb struct {
	src     beep.Streamer
	taps    []tap
	wet     float64
	ring    [][2]float64
	pos     int
	tail    int
	drained bool
}

func newReverb(src beep.Streamer, sr beep.SampleRate, wet float64, rnd *rand.Rand) *reverb {
	taps := impulse(sr, reverbLength, reverbTaps, rnd)
	size := sr.N(reverbLength) + 1
	return &reverb{
		src:  src,
		taps: taps,
		wet:  wet,
		ring: make([][2]float64, size),
		tail: size,
	}
}

func (r *reverb) Stream(samples [][2]float64) (int, bool) {
	n := 0
	if !r.drained {
		var ok bool
		n, ok = r.src.Stream(samples)
		if !ok || n < len(samples) {
			r.drained = true
		}
	}
	if r.drained && n < len(samples) && r.wet > 0 {
		extra := min(len(samples)-n, r.tail)
		for i := n; i < n+extra; i++ {
			samples[i] = [2]float64{}
		}
		n += extra
		r.tail -= extra
	}
	if n == 0 {
		return 0, false
	}

	for i := 0; i < n; i++ {
		in := samples[i]
		r.ring[r.pos] = in
		var acc [2]float64
		for _, t := range r.taps {
			p := r.pos - t.delay
			if p < 0 {
				p += len(r.ring)
			}
			acc[0] += r.ring[p][0] * t.gain
			acc[1] += r.ring[p][1] * t.gain
		}
		samples[i] = [2]float64{in[0] + r.wet*acc[0], in[1] + r.wet*acc[1]}
		r.pos = (r.pos + 1) % len(r.ring)
	}
	return n, true
}

func (r *reverb) Err() error {
	return r.src.Err()
}
