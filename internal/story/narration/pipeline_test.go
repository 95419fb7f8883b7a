package narration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"novelnest/internal/domain/story"
	"novelnest/internal/story/speech"
	"novelnest/internal/story/tts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyEngine struct {
	*tts.MockTTSEngine
	failOn string
}

func (f *flakyEngine) Synthesize(ctx context.Context, text string) (*tts.Audio, error) {
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("provider unavailable")
	}
	return f.MockTTSEngine.Synthesize(ctx, text)
}

type memSaver struct {
	mu     sync.Mutex
	labels []string
}

func (m *memSaver) SaveAsset(ctx context.Context, storyID string, data []byte, ext, label string) (story.AssetRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels = append(m.labels, label)
	return story.AssetRef(fmt.Sprintf("/stories/%s/assets/%s.%s", storyID, label, ext)), nil
}

func newTestPipeline(failOn string) (*Pipeline, *flakyEngine, *memSaver) {
	engine := &flakyEngine{MockTTSEngine: tts.NewMockTTSEngine(tts.Config{}), failOn: failOn}
	saver := &memSaver{}
	p := New(engine, speech.ForLanguage("es"), saver, time.Millisecond)
	p.now = func() time.Time { return time.UnixMilli(42) }
	return p, engine, saver
}

func TestSynthesizeKeepsOrderAndToleratesFailures(t *testing.T) {
	p, engine, _ := newTestPipeline("roto")

	segments := []string{"Entras en el bosque.", "Un puente roto.", "Hay 3 caminos."}
	parts := p.Synthesize(context.Background(), segments, "s1")

	require.Len(t, parts, 3)
	for i, part := range parts {
		assert.Equal(t, segments[i], part.Text)
	}
	assert.Equal(t, story.AssetRef("/stories/s1/assets/narrative_part_42_0.mp3"), parts[0].Audio)
	assert.True(t, parts[1].Audio.IsZero())
	assert.Equal(t, story.AssetRef("/stories/s1/assets/narrative_part_42_2.mp3"), parts[2].Audio)

	// text reaching the engine is sanitized
	assert.Equal(t, []string{"Entras en el bosque.", "Hay tres caminos."}, engine.Spoken())
}

func TestSynthesizeEmptySegmentHasNoAudio(t *testing.T) {
	p, _, saver := newTestPipeline("")

	parts := p.Synthesize(context.Background(), []string{"123$%", "##"}, "s1")
	require.Len(t, parts, 2)
	assert.False(t, parts[0].Audio.IsZero())
	assert.True(t, parts[1].Audio.IsZero())
	assert.Len(t, saver.labels, 1)
}

func TestSynthesizeCancelledContext(t *testing.T) {
	p, _, _ := newTestPipeline("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	parts := p.Synthesize(ctx, []string{"uno", "dos"}, "s1")
	require.Len(t, parts, 2)
	assert.True(t, parts[0].Audio.IsZero())
	assert.True(t, parts[1].Audio.IsZero())
}

func TestSynthesizeOptions(t *testing.T) {
	p, _, saver := newTestPipeline("puerta")

	opts := []story.Option{
		{Text: "Seguir el río"},
		{Text: "Abrir la puerta"},
		{Text: "Huir"},
		{Text: "Esperar", Audio: "/stories/s1/assets/existing.mp3"},
	}
	got := p.SynthesizeOptions(context.Background(), opts, "s1")

	require.Len(t, got, 4)
	assert.Equal(t, story.AssetRef("/stories/s1/assets/option_0.mp3"), got[0].Audio)
	assert.True(t, got[1].Audio.IsZero())
	assert.Equal(t, story.AssetRef("/stories/s1/assets/option_2.mp3"), got[2].Audio)
	assert.Equal(t, story.AssetRef("/stories/s1/assets/existing.mp3"), got[3].Audio)
	assert.Equal(t, []string{"option_0", "option_2"}, saver.labels)
	assert.True(t, opts[0].Audio.IsZero(), "input options are not mutated")
}

func TestSelectedOptionAudio(t *testing.T) {
	p, _, saver := newTestPipeline("")
	prev := story.Scene{Options: []story.Option{
		{Text: "ir al norte", Audio: "/stories/s1/assets/option_0.mp3"},
		{Text: "ir al sur"},
	}}

	ref := p.SelectedOptionAudio(context.Background(), prev, "ir al norte", "s1")
	assert.Equal(t, story.AssetRef("/stories/s1/assets/option_0.mp3"), ref)
	assert.Empty(t, saver.labels)

	ref = p.SelectedOptionAudio(context.Background(), prev, "trepar al árbol", "s1")
	assert.Equal(t, story.AssetRef("/stories/s1/assets/selected_option.mp3"), ref)
}

func TestSelectedOptionAudioFailure(t *testing.T) {
	p, _, _ := newTestPipeline("árbol")
	ref := p.SelectedOptionAudio(context.Background(), story.Scene{}, "trepar al árbol", "s1")
	assert.True(t, ref.IsZero())
}
