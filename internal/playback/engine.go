package playback

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"novelnest/internal/domain/story"

	"github.com/sirupsen/logrus"
)

const (
	ImageHold      = 5 * time.Second
	DuckLevel      = 0.05
	NarrationPause = time.Second
	OptionGap      = 200 * time.Millisecond
	EndFade        = 1500 * time.Millisecond
	LetterDelay    = 200 * time.Millisecond

	partMinWait    = 2 * time.Second
	partWaitPerRun = 50 * time.Millisecond
	textOnlyWait   = 4 * time.Second
)

// EndTitle is revealed one letter at a time when a story runs out of scenes.
const EndTitle = "CONTINUARÁ..."

// ErrSuperseded is returned by Render when a newer render or Stop took over.
var ErrSuperseded = errors.New("render superseded")

// AudioPlayer plays a clip to completion. It must return promptly once ctx
// is cancelled.
type AudioPlayer interface {
	Play(ctx context.Context, ref story.AssetRef) error
}

// Track is a looping background track.
type Track interface {
	Volume
	Close() error
}

type MusicPlayer interface {
	Loop(ctx context.Context, ref story.AssetRef) (Track, error)
}

type Options struct {
	Speed float64
	// MusicLevel is the full background-music volume.
	MusicLevel float64
	Clock      Clock
}

// Engine sequences scenes onto a Stage. Only the most recent Render may
// produce effects; every suspension re-checks the generation it started
// under.
type Engine struct {
	stage Stage
	voice AudioPlayer
	music MusicPlayer
	clock Clock

	speed      float64
	musicLevel float64

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc

	track       Track
	trackRef    story.AssetRef
	musicTarget float64
	rampCancel  context.CancelFunc
	rampDone    chan struct{}
}

func NewEngine(stage Stage, voice AudioPlayer, music MusicPlayer, opts Options) *Engine {
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.MusicLevel <= 0 {
		opts.MusicLevel = 1
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Engine{
		stage:      stage,
		voice:      voice,
		music:      music,
		clock:      opts.Clock,
		speed:       opts.Speed,
		musicLevel:  opts.MusicLevel,
		musicTarget: opts.MusicLevel,
	}
}

// begin takes ownership of effects for a new render.
func (e *Engine) begin(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel
	return ctx, e.generation
}

// Stop invalidates the active render and stops its audio.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

type render struct {
	e   *Engine
	ctx context.Context
	gen uint64
}

func (r render) live() bool {
	return r.ctx.Err() == nil && r.e.Generation() == r.gen
}

// effect applies f only while this render is current. The check and f run
// under the engine lock, so a Stop or a newer Render cannot land in between.
func (r render) effect(f func()) error {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	if r.ctx.Err() != nil || r.e.generation != r.gen {
		return ErrSuperseded
	}
	f()
	return nil
}

func (r render) wait(d time.Duration) error {
	if err := r.e.clock.Sleep(r.ctx, d); err != nil || !r.live() {
		return ErrSuperseded
	}
	return nil
}

// play treats a playback failure as completion.
func (r render) play(ref story.AssetRef) error {
	if err := r.e.voice.Play(r.ctx, ref); err != nil && r.live() {
		logrus.WithError(err).WithField("audio", truncateRef(ref)).Warn("Audio playback failed")
	}
	if !r.live() {
		return ErrSuperseded
	}
	return nil
}

// Render presents a scene: image, ducked music, narration, then options or
// the end screen. In replay mode options come from the recording.
func (e *Engine) Render(ctx context.Context, scene story.Scene, replay bool) error {
	rctx, gen := e.begin(ctx)
	r := render{e: e, ctx: rctx, gen: gen}

	if !scene.Image.IsZero() {
		if err := r.effect(func() { e.stage.ShowImage(scene.Image) }); err != nil {
			return err
		}
		if err := r.wait(ImageHold); err != nil {
			return err
		}
	}

	if err := r.effect(func() { e.fadeMusic(DuckLevel) }); err != nil {
		return err
	}
	if err := r.wait(NarrationPause); err != nil {
		return err
	}

	if err := r.narrate(scene.Narration()); err != nil {
		return err
	}

	opts := scene.Options
	if replay {
		// a recording stops at the first scene without a choice
		opts = nil
		if scene.SelectedOption != "" {
			opts = story.ReplayOptions(scene)
		}
	}
	if len(opts) == 0 {
		return r.end()
	}
	return r.options(opts)
}

func (r render) narrate(n story.Narration) error {
	st := r.e.stage
	switch n := n.(type) {
	case story.PartsNarration:
		for _, p := range n.Parts {
			if err := r.effect(func() { st.AppendText(p.Text) }); err != nil {
				return err
			}
			if !p.Audio.IsZero() {
				if err := r.play(p.Audio); err != nil {
					return err
				}
				continue
			}
			if err := r.wait(r.e.partWait(p.Text)); err != nil {
				return err
			}
		}
	case story.CombinedNarration:
		err := r.effect(func() {
			for _, s := range n.Segments {
				st.AppendText(s)
			}
		})
		if err != nil {
			return err
		}
		return r.play(n.Audio)
	case story.TextNarration:
		for _, s := range n.Segments {
			if err := r.effect(func() { st.AppendText(s) }); err != nil {
				return err
			}
			if err := r.wait(r.e.scaled(textOnlyWait)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r render) options(opts []story.Option) error {
	for i, o := range opts {
		if err := r.effect(func() { r.e.stage.ShowOption(i, o) }); err != nil {
			return err
		}
		if !o.Audio.IsZero() {
			if err := r.play(o.Audio); err != nil {
				return err
			}
		}
		if err := r.wait(OptionGap); err != nil {
			return err
		}
	}
	return nil
}

func (r render) end() error {
	st := r.e.stage
	if err := r.effect(st.FadeOut); err != nil {
		return err
	}
	if err := r.wait(EndFade); err != nil {
		return err
	}
	if err := r.effect(func() { r.e.fadeMusic(r.e.musicLevel) }); err != nil {
		return err
	}

	var shown []rune
	for _, c := range EndTitle {
		shown = append(shown, c)
		if err := r.effect(func() { st.RevealTitle(string(shown)) }); err != nil {
			return err
		}
		if err := r.wait(LetterDelay); err != nil {
			return err
		}
	}
	return r.effect(st.ShowEnd)
}

func (e *Engine) partWait(text string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(text)) * partWaitPerRun
	return e.scaled(max(partMinWait, d))
}

func (e *Engine) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) / e.speed)
}

// PlayMusic starts the story's track. The same track is never restarted;
// a different one replaces the current track, which fades out.
func (e *Engine) PlayMusic(ctx context.Context, ref story.AssetRef) error {
	if ref.IsZero() || e.music == nil {
		return nil
	}
	e.mu.Lock()
	if e.track != nil && e.trackRef == ref {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	t, err := e.music.Loop(ctx, ref)
	if err != nil {
		return err
	}
	e.mu.Lock()
	// joins at whatever level the scene last asked for
	t.SetVolume(e.musicTarget)
	old := e.track
	e.track, e.trackRef = t, ref
	if e.rampCancel != nil {
		e.rampCancel()
		e.rampCancel = nil
	}
	e.mu.Unlock()

	if old != nil {
		go func() {
			_ = FadeOut().Run(context.Background(), e.clock, old)
			old.Close()
		}()
	}
	return nil
}

// fadeMusic ramps the current track in the background, replacing any
// ramp already running. Callers hold e.mu.
func (e *Engine) fadeMusic(target float64) {
	e.musicTarget = target
	if e.track == nil {
		return
	}
	if e.rampCancel != nil {
		e.rampCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.rampCancel = cancel

	// ramps on a track never overlap
	prev, done := e.rampDone, make(chan struct{})
	e.rampDone = done
	t := e.track
	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		_ = FadeTo(target).Run(ctx, e.clock, t)
	}()
}

// Close stops everything including the background track.
func (e *Engine) Close() error {
	e.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rampCancel != nil {
		e.rampCancel()
		e.rampCancel = nil
	}
	if e.track == nil {
		return nil
	}
	err := e.track.Close()
	e.track, e.trackRef = nil, ""
	return err
}

func truncateRef(ref story.AssetRef) string {
	s := ref.String()
	if len(s) > 48 {
		return s[:48] + "..."
	}
	return s
}
