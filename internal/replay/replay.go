package replay

import (
	"context"
	"errors"
	"strings"

	"novelnest/internal/domain/story"

	"github.com/sirupsen/logrus"
)

var ErrEmptyStory = errors.New("story has no scenes")

type Outcome int

const (
	Advanced Outcome = iota
	Mismatch
	Ended
)

func (o Outcome) String() string {
	switch o {
	case Advanced:
		return "advanced"
	case Mismatch:
		return "mismatch"
	default:
		return "ended"
	}
}

// Renderer is satisfied by *playback.Engine.
type Renderer interface {
	Render(ctx context.Context, scene story.Scene, replay bool) error
}

type CuePlayer interface {
	Play(ctx context.Context, c Cue) error
}

// Engine walks a recorded story. A choice advances only when it matches
// the recorded one; the first scene without a recorded choice is the end.
type Engine struct {
	story    *story.Story
	index    int
	renderer Renderer
	cues     CuePlayer
}

func New(st *story.Story, renderer Renderer, cues CuePlayer) (*Engine, error) {
	if st == nil || len(st.Scenes) == 0 {
		return nil, ErrEmptyStory
	}
	return &Engine{story: st, renderer: renderer, cues: cues}, nil
}

func (e *Engine) Index() int { return e.index }

func (e *Engine) Current() story.Scene { return e.story.Scenes[e.index] }

// Ended reports whether the current scene closes the recording.
func (e *Engine) Ended() bool {
	return e.Current().SelectedOption == ""
}

// Start renders the current scene.
func (e *Engine) Start(ctx context.Context) error {
	return e.renderer.Render(ctx, e.Current(), true)
}

// Choose checks the player's text against the recorded choice.
func (e *Engine) Choose(ctx context.Context, text string) (Outcome, error) {
	if e.Ended() {
		return Ended, nil
	}

	want := e.Current().SelectedOption
	if strings.TrimSpace(text) != want {
		e.cue(ctx, Failure)
		return Mismatch, nil
	}

	e.cue(ctx, Success)
	if e.index+1 >= len(e.story.Scenes) {
		// the recorded choice has no scene after it
		return Ended, nil
	}
	e.index++
	return Advanced, e.Start(ctx)
}

func (e *Engine) cue(ctx context.Context, c Cue) {
	if e.cues == nil {
		return
	}
	if err := e.cues.Play(ctx, c); err != nil {
		logrus.WithError(err).WithField("cue", c.String()).Debug("Cue playback failed")
	}
}
