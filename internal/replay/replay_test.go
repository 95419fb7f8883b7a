package replay

import (
	"context"
	"math"
	"testing"

	"novelnest/internal/domain/story"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	rendered []story.Scene
}

func (r *fakeRenderer) Render(ctx context.Context, scene story.Scene, replay bool) error {
	r.rendered = append(r.rendered, scene)
	return nil
}

type fakeCues struct {
	played []Cue
}

func (c *fakeCues) Play(ctx context.Context, cue Cue) error {
	c.played = append(c.played, cue)
	return nil
}

func recorded() *story.Story {
	return &story.Story{
		ID: "s1",
		Scenes: []story.Scene{
			{SceneText: story.Segments{"A"}, Options: []story.Option{{Text: "ir al norte"}, {Text: "ir al sur"}, {Text: "quedarse"}}, SelectedOption: "ir al norte"},
			{SceneText: story.Segments{"B"}, Options: []story.Option{{Text: "x"}, {Text: "y"}, {Text: "z"}}},
		},
	}
}

func TestReplayScenario(t *testing.T) {
	r := &fakeRenderer{}
	cues := &fakeCues{}
	e, err := New(recorded(), r, cues)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	assert.False(t, e.Ended())

	out, err := e.Choose(ctx, "ir al sur")
	require.NoError(t, err)
	assert.Equal(t, Mismatch, out)
	assert.Equal(t, 0, e.Index())

	out, err = e.Choose(ctx, "ir al norte")
	require.NoError(t, err)
	assert.Equal(t, Advanced, out)
	assert.Equal(t, 1, e.Index())
	assert.True(t, e.Ended())

	for _, input := range []string{"x", "ir al norte", ""} {
		out, err = e.Choose(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, Ended, out)
		assert.Equal(t, 1, e.Index())
	}

	assert.Equal(t, []Cue{Failure, Success}, cues.played)
	require.Len(t, r.rendered, 2)
	assert.Equal(t, story.Segments{"B"}, r.rendered[1].SceneText)
}

func TestReplayCustomChoice(t *testing.T) {
	st := recorded()
	st.Scenes[0].SelectedOption = "trepar al árbol"
	e, err := New(st, &fakeRenderer{}, nil)
	require.NoError(t, err)

	out, err := e.Choose(context.Background(), "  trepar al árbol ")
	require.NoError(t, err)
	assert.Equal(t, Advanced, out)
}

func TestReplayChoiceOnLastScene(t *testing.T) {
	st := &story.Story{Scenes: []story.Scene{{SelectedOption: "seguir"}}}
	e, err := New(st, &fakeRenderer{}, nil)
	require.NoError(t, err)

	out, err := e.Choose(context.Background(), "seguir")
	require.NoError(t, err)
	assert.Equal(t, Ended, out)
	assert.Equal(t, 0, e.Index())
}

func TestReplayEmptyStory(t *testing.T) {
	_, err := New(&story.Story{}, &fakeRenderer{}, nil)
	assert.ErrorIs(t, err, ErrEmptyStory)
}

func TestSweep(t *testing.T) {
	sr := beep.SampleRate(8000)
	for cue, tn := range tones {
		var samples [][2]float64
		buf := make([][2]float64, 300)
		s := sweep(sr, tn)
		for {
			n, ok := s.Stream(buf)
			samples = append(samples, buf[:n]...)
			if !ok {
				break
			}
		}
		assert.Len(t, samples, sr.N(tn.length), cue.String())
		for _, v := range samples {
			assert.LessOrEqual(t, math.Abs(v[0]), cueGain+1e-9)
		}
	}
}
