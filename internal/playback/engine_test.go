package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"novelnest/internal/domain/story"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder logs every observable effect in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeStage struct{ rec *recorder }

func (s fakeStage) ShowImage(ref story.AssetRef)       { s.rec.add("image %s", ref) }
func (s fakeStage) AppendText(text string)             { s.rec.add("text %s", text) }
func (s fakeStage) ShowOption(i int, opt story.Option) { s.rec.add("option %d %s", i, opt.Text) }
func (s fakeStage) FadeOut()                           { s.rec.add("fade") }
func (s fakeStage) RevealTitle(partial string)         { s.rec.add("title %s", partial) }
func (s fakeStage) ShowEnd()                           { s.rec.add("end") }

// instantClock records requested waits without sleeping.
type instantClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (c *instantClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	return nil
}

func (c *instantClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

type fakeVoice struct {
	rec     *recorder
	block   story.AssetRef
	started chan struct{}
	fail    story.AssetRef
}

func (v *fakeVoice) Play(ctx context.Context, ref story.AssetRef) error {
	if ref == v.block {
		v.rec.add("play %s", ref)
		close(v.started)
		<-ctx.Done()
		v.rec.add("stopped %s", ref)
		return ctx.Err()
	}
	if ref == v.fail {
		return errors.New("device gone")
	}
	v.rec.add("play %s", ref)
	return nil
}

type fakeTrack struct {
	mu     sync.Mutex
	level  float64
	closed bool
}

func (t *fakeTrack) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

func (t *fakeTrack) SetVolume(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.level = v
}

func (t *fakeTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTrack) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeMusic struct {
	mu     sync.Mutex
	tracks []*fakeTrack
}

func (m *fakeMusic) Loop(ctx context.Context, ref story.AssetRef) (Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &fakeTrack{}
	m.tracks = append(m.tracks, t)
	return t, nil
}

func (m *fakeMusic) started() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks)
}

func newTestEngine(voice *fakeVoice, music MusicPlayer, clock Clock) (*Engine, *recorder) {
	rec := voice.rec
	return NewEngine(fakeStage{rec: rec}, voice, music, Options{Speed: 1, Clock: clock}), rec
}

func partsScene() story.Scene {
	return story.Scene{
		SceneText: story.Segments{"uno", "dos"},
		Image:     "/stories/s/assets/scene_1.jpg",
		Narrative: &story.Narrative{Parts: []story.NarrationPart{
			{Text: "uno", Audio: "/a/1.mp3"},
			{Text: "dos"},
		}},
		Options: []story.Option{
			{Text: "norte", Audio: "/a/o0.mp3"},
			{Text: "sur"},
			{Text: "esperar", Audio: "/a/o2.mp3"},
		},
	}
}

func TestRenderOrder(t *testing.T) {
	clock := &instantClock{}
	voice := &fakeVoice{rec: &recorder{}}
	e, rec := newTestEngine(voice, nil, clock)

	require.NoError(t, e.Render(context.Background(), partsScene(), false))

	assert.Equal(t, []string{
		"image /stories/s/assets/scene_1.jpg",
		"text uno",
		"play /a/1.mp3",
		"text dos",
		"option 0 norte",
		"play /a/o0.mp3",
		"option 1 sur",
		"option 2 esperar",
		"play /a/o2.mp3",
	}, rec.list())

	assert.Equal(t, []time.Duration{
		ImageHold,
		NarrationPause,
		2 * time.Second, // "dos" has no audio
		OptionGap, OptionGap, OptionGap,
	}, clock.recorded())
}

func TestRenderPacingScalesWithSpeed(t *testing.T) {
	clock := &instantClock{}
	rec := &recorder{}
	e := NewEngine(fakeStage{rec: rec}, &fakeVoice{rec: rec}, nil, Options{Speed: 2, Clock: clock})

	long := "una frase bastante larga que supera los cuarenta caracteres de largo"
	scene := story.Scene{
		Narrative: &story.Narrative{Parts: []story.NarrationPart{{Text: long}}},
		Options:   []story.Option{{Text: "a"}},
	}
	require.NoError(t, e.Render(context.Background(), scene, false))

	waits := clock.recorded()
	require.GreaterOrEqual(t, len(waits), 2)
	want := time.Duration(len([]rune(long))) * 50 * time.Millisecond / 2
	assert.Equal(t, want, waits[1])
}

func TestRenderLegacyShapes(t *testing.T) {
	t.Run("combined audio", func(t *testing.T) {
		clock := &instantClock{}
		voice := &fakeVoice{rec: &recorder{}}
		e, rec := newTestEngine(voice, nil, clock)

		scene := story.Scene{
			SceneText: story.Segments{"a", "b"},
			Narrative: &story.Narrative{Audio: "/a/all.mp3"},
			Options:   []story.Option{{Text: "x"}},
		}
		require.NoError(t, e.Render(context.Background(), scene, false))
		assert.Equal(t, []string{"text a", "text b", "play /a/all.mp3", "option 0 x"}, rec.list())
	})

	t.Run("text only", func(t *testing.T) {
		clock := &instantClock{}
		voice := &fakeVoice{rec: &recorder{}}
		e, rec := newTestEngine(voice, nil, clock)

		scene := story.Scene{SceneText: story.Segments{"a", "b"}, Options: []story.Option{{Text: "x"}}}
		require.NoError(t, e.Render(context.Background(), scene, false))
		assert.Equal(t, []string{"text a", "text b", "option 0 x"}, rec.list())
		assert.Equal(t, []time.Duration{NarrationPause, 4 * time.Second, 4 * time.Second, OptionGap}, clock.recorded())
	})
}

func TestPlaybackFailureIsCompletion(t *testing.T) {
	voice := &fakeVoice{rec: &recorder{}, fail: "/a/broken.mp3"}
	e, rec := newTestEngine(voice, nil, &instantClock{})

	scene := story.Scene{
		Narrative: &story.Narrative{Parts: []story.NarrationPart{
			{Text: "uno", Audio: "/a/broken.mp3"},
			{Text: "dos", Audio: "/a/2.mp3"},
		}},
		Options: []story.Option{{Text: "x"}},
	}
	require.NoError(t, e.Render(context.Background(), scene, false))
	assert.Equal(t, []string{"text uno", "text dos", "play /a/2.mp3", "option 0 x"}, rec.list())
}

func TestEndScreen(t *testing.T) {
	clock := &instantClock{}
	voice := &fakeVoice{rec: &recorder{}}
	music := &fakeMusic{}
	e, rec := newTestEngine(voice, music, clock)
	require.NoError(t, e.PlayMusic(context.Background(), "/stories/s/assets/music_1.mp3"))

	scene := story.Scene{SceneText: story.Segments{"fin"}}
	require.NoError(t, e.Render(context.Background(), scene, false))

	events := rec.list()
	assert.Equal(t, "fade", events[1])
	assert.Equal(t, "title C", events[2])
	assert.Equal(t, "title "+EndTitle, events[len(events)-2])
	assert.Equal(t, "end", events[len(events)-1])
	assert.Len(t, events, 3+len([]rune(EndTitle)))

	track := music.tracks[0]
	assert.Eventually(t, func() bool { return track.Volume() == 1 }, time.Second, time.Millisecond)
}

func TestMusicDuckedDuringNarration(t *testing.T) {
	music := &fakeMusic{}
	e, _ := newTestEngine(&fakeVoice{rec: &recorder{}}, music, &instantClock{})
	require.NoError(t, e.PlayMusic(context.Background(), "/m.mp3"))

	require.NoError(t, e.Render(context.Background(), partsScene(), false))
	track := music.tracks[0]
	assert.Eventually(t, func() bool { return track.Volume() == DuckLevel }, time.Second, time.Millisecond)
}

func TestMusicNotRestarted(t *testing.T) {
	music := &fakeMusic{}
	e, _ := newTestEngine(&fakeVoice{rec: &recorder{}}, music, &instantClock{})
	ctx := context.Background()

	require.NoError(t, e.PlayMusic(ctx, "/m1.mp3"))
	require.NoError(t, e.PlayMusic(ctx, "/m1.mp3"))
	assert.Equal(t, 1, music.started())

	require.NoError(t, e.PlayMusic(ctx, "/m2.mp3"))
	assert.Equal(t, 2, music.started())
	old := music.tracks[0]
	assert.Eventually(t, old.isClosed, time.Second, time.Millisecond)
	assert.Equal(t, 0.0, old.Volume())

	require.NoError(t, e.Close())
	assert.True(t, music.tracks[1].isClosed())
}

func TestMusicJoinsAtCurrentLevel(t *testing.T) {
	music := &fakeMusic{}
	e, _ := newTestEngine(&fakeVoice{rec: &recorder{}}, music, &instantClock{})
	ctx := context.Background()

	require.NoError(t, e.Render(ctx, partsScene(), false))
	require.NoError(t, e.PlayMusic(ctx, "/m1.mp3"))
	assert.Equal(t, DuckLevel, music.tracks[0].Volume())

	// the end screen restores full volume, so a late track joins at full
	require.NoError(t, e.Render(ctx, story.Scene{SceneText: story.Segments{"fin"}}, false))
	require.NoError(t, e.PlayMusic(ctx, "/m2.mp3"))
	assert.Equal(t, 1.0, music.tracks[1].Volume())
}

// stopOnTextStage calls Stop from another goroutine while the first text
// effect is being applied and notes whether Stop got through before the
// effect ended.
type stopOnTextStage struct {
	fakeStage
	e       *Engine
	once    sync.Once
	shown   atomic.Bool
	stopped chan struct{}
}

func (s *stopOnTextStage) AppendText(text string) {
	s.fakeStage.AppendText(text)
	s.once.Do(func() {
		s.shown.Store(true)
		go func() {
			s.e.Stop()
			close(s.stopped)
		}()
		select {
		case <-s.stopped:
			s.rec.add("stopped mid effect")
		case <-time.After(20 * time.Millisecond):
		}
	})
}

// stopClock passes waits through until text is on stage, then holds them
// until Stop has gone through.
type stopClock struct{ stage *stopOnTextStage }

func (c stopClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.stage.shown.Load() {
		<-c.stage.stopped
	}
	return ctx.Err()
}

func TestStopWaitsForStageEffect(t *testing.T) {
	rec := &recorder{}
	stage := &stopOnTextStage{fakeStage: fakeStage{rec: rec}, stopped: make(chan struct{})}
	e := NewEngine(stage, &fakeVoice{rec: rec}, nil, Options{Clock: stopClock{stage: stage}})
	stage.e = e

	scene := story.Scene{
		Narrative: &story.Narrative{Parts: []story.NarrationPart{{Text: "uno"}, {Text: "dos"}}},
		Options:   []story.Option{{Text: "x"}},
	}
	err := e.Render(context.Background(), scene, false)
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, []string{"text uno"}, rec.list())
}

func TestNewRenderSupersedesOld(t *testing.T) {
	rec := &recorder{}
	voice := &fakeVoice{rec: rec, block: "/a/long.mp3", started: make(chan struct{})}
	e := NewEngine(fakeStage{rec: rec}, voice, nil, Options{Clock: &instantClock{}})

	first := story.Scene{
		Narrative: &story.Narrative{Parts: []story.NarrationPart{
			{Text: "viejo uno", Audio: "/a/long.mp3"},
			{Text: "viejo dos"},
		}},
		Options: []story.Option{{Text: "viejo"}},
	}
	errs := make(chan error, 1)
	go func() { errs <- e.Render(context.Background(), first, false) }()
	<-voice.started

	second := story.Scene{SceneText: story.Segments{"nuevo"}, Options: []story.Option{{Text: "nueva"}}}
	require.NoError(t, e.Render(context.Background(), second, false))
	assert.ErrorIs(t, <-errs, ErrSuperseded)

	events := rec.list()
	assert.Contains(t, events, "stopped /a/long.mp3")
	assert.NotContains(t, events, "text viejo dos")
	assert.NotContains(t, events, "option 0 viejo")
	assert.Contains(t, events, "option 0 nueva")
}

func TestStopEndsRender(t *testing.T) {
	rec := &recorder{}
	voice := &fakeVoice{rec: rec, block: "/a/long.mp3", started: make(chan struct{})}
	e := NewEngine(fakeStage{rec: rec}, voice, nil, Options{Clock: &instantClock{}})

	scene := story.Scene{
		Narrative: &story.Narrative{Parts: []story.NarrationPart{{Text: "uno", Audio: "/a/long.mp3"}}},
		Options:   []story.Option{{Text: "x"}},
	}
	errs := make(chan error, 1)
	go func() { errs <- e.Render(context.Background(), scene, false) }()
	<-voice.started

	e.Stop()
	assert.ErrorIs(t, <-errs, ErrSuperseded)
	assert.NotContains(t, rec.list(), "option 0 x")
}

func TestReplayKeepsOptionCount(t *testing.T) {
	rec := &recorder{}
	e := NewEngine(fakeStage{rec: rec}, &fakeVoice{rec: rec}, nil, Options{Clock: &instantClock{}})

	scene := partsScene()
	scene.SelectedOption = "trepar al árbol"
	scene.SelectedOptionAudio = "/a/custom.mp3"
	require.NoError(t, e.Render(context.Background(), scene, true))

	var options []string
	for _, ev := range rec.list() {
		if len(ev) > 7 && ev[:7] == "option " {
			options = append(options, ev)
		}
	}
	assert.Equal(t, []string{"option 0 norte", "option 1 sur", "option 2 trepar al árbol"}, options)
	assert.Contains(t, rec.list(), "play /a/custom.mp3")
}
