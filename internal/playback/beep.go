package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"novelnest/internal/domain/story"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/sirupsen/logrus"
)

// BaseRate is the narration speed before the user's multiplier.
const BaseRate = 1.2

const OutputRate = beep.SampleRate(44100)

var (
	speakerOnce sync.Once
	speakerErr  error
)

// InitSpeaker opens the audio device once per process.
func InitSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(OutputRate, OutputRate.N(time.Second/10))
	})
	return speakerErr
}

// Opener is implemented by Resolver.
type Opener interface {
	Open(ctx context.Context, ref story.AssetRef) (io.ReadCloser, error)
}

// BeepPlayer plays narration with reverb and loops music on the system
// speaker.
type BeepPlayer struct {
	opener Opener
	speed  float64
	wet    float64
}

func NewBeepPlayer(opener Opener, speed, wet float64) *BeepPlayer {
	if speed <= 0 {
		speed = 1
	}
	return &BeepPlayer{opener: opener, speed: speed, wet: wet}
}

type memFile struct{ *bytes.Reader }

func (memFile) Close() error { return nil }

// decode buffers the whole clip so decoders can seek when looping.
func decode(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, beep.Format{}, err
	}
	src := memFile{bytes.NewReader(data)}
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return wav.Decode(src)
	}
	return mp3.Decode(src)
}

// Play blocks until the clip ends or ctx is cancelled. The decoder is
// closed on every path.
func (p *BeepPlayer) Play(ctx context.Context, ref story.AssetRef) error {
	if err := InitSpeaker(); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	rc, err := p.opener.Open(ctx, ref)
	if err != nil {
		return err
	}
	streamer, format, err := decode(rc)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}
	defer streamer.Close()

	ratio := float64(format.SampleRate) / float64(OutputRate) * BaseRate * p.speed
	var s beep.Streamer = beep.ResampleRatio(4, ratio, streamer)
	if p.wet > 0 {
		s = newReverb(s, OutputRate, p.wet, rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: s}
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

// Loop starts a looping background track and returns its handle.
func (p *BeepPlayer) Loop(ctx context.Context, ref story.AssetRef) (Track, error) {
	if err := InitSpeaker(); err != nil {
		return nil, fmt.Errorf("speaker init: %w", err)
	}
	rc, err := p.opener.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	streamer, format, err := decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode music: %w", err)
	}

	t := &beepTrack{streamer: streamer, level: 1}
	t.volume = &effects.Volume{
		Streamer: beep.Resample(4, format.SampleRate, OutputRate, beep.Loop(-1, streamer)),
		Base:     2,
	}
	t.ctrl = &beep.Ctrl{Streamer: t.volume}
	speaker.Play(t.ctrl)

	logrus.WithField("music", ref.String()).Debug("Music started")
	return t, nil
}

type beepTrack struct {
	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	level    float64
	closed   bool
}

func (t *beepTrack) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

// SetVolume takes a linear level in [0, 1].
func (t *beepTrack) SetVolume(v float64) {
	v = math.Max(0, math.Min(1, v))
	t.mu.Lock()
	t.level = v
	t.mu.Unlock()

	speaker.Lock()
	t.volume.Silent = v == 0
	if v > 0 {
		t.volume.Volume = math.Log2(v)
	}
	speaker.Unlock()
}

func (t *beepTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	speaker.Lock()
	t.ctrl.Streamer = nil
	speaker.Unlock()
	return t.streamer.Close()
}
