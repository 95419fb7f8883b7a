package narration

import (
	"context"
	"fmt"
	"time"

	"novelnest/internal/domain/story"
	"novelnest/internal/story/speech"
	"novelnest/internal/story/tts"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultDelay spaces consecutive synthesis calls.
const DefaultDelay = 100 * time.Millisecond

// AssetSaver persists synthesized audio for a story.
type AssetSaver interface {
	SaveAsset(ctx context.Context, storyID string, data []byte, ext, label string) (story.AssetRef, error)
}

// Pipeline turns narration text into stored speech, one segment at a time.
type Pipeline struct {
	engine    tts.Engine
	sanitizer *speech.Sanitizer
	store     AssetSaver
	limiter   *rate.Limiter
	now       func() time.Time
}

func New(engine tts.Engine, sanitizer *speech.Sanitizer, store AssetSaver, delay time.Duration) *Pipeline {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Pipeline{
		engine:    engine,
		sanitizer: sanitizer,
		store:     store,
		limiter:   rate.NewLimiter(rate.Every(delay), 1),
		now:       time.Now,
	}
}

// speak synthesizes and stores one text. Callers treat any error as missing audio.
func (p *Pipeline) speak(ctx context.Context, storyID, text, label string) (story.AssetRef, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	clean := p.sanitizer.Sanitize(text)
	if clean == "" {
		return "", tts.ErrEmptyText
	}

	audio, err := p.engine.Synthesize(ctx, clean)
	if err != nil {
		return "", fmt.Errorf("synthesizing %s: %w", label, err)
	}
	return p.store.SaveAsset(ctx, storyID, audio.Data, audio.Format, label)
}

// Synthesize produces one narration part per segment, in order. A segment
// whose audio could not be produced keeps its text with no audio.
func (p *Pipeline) Synthesize(ctx context.Context, segments []string, storyID string) []story.NarrationPart {
	parts := make([]story.NarrationPart, 0, len(segments))
	stamp := p.now().UnixMilli()

	for i, text := range segments {
		part := story.NarrationPart{Text: text}

		ref, err := p.speak(ctx, storyID, text, fmt.Sprintf("narrative_part_%d_%d", stamp, i))
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"story":   storyID,
				"segment": i,
			}).Warn("Narration segment left without audio")
		} else {
			part.Audio = ref
		}
		parts = append(parts, part)
	}

	logrus.WithFields(logrus.Fields{
		"story":    storyID,
		"segments": len(segments),
	}).Debug("Narration synthesized")
	return parts
}

// SynthesizeOptions attaches spoken audio to each option that lacks it.
func (p *Pipeline) SynthesizeOptions(ctx context.Context, options []story.Option, storyID string) []story.Option {
	out := make([]story.Option, len(options))
	for i, opt := range options {
		out[i] = opt
		if !opt.Audio.IsZero() {
			continue
		}
		ref, err := p.speak(ctx, storyID, opt.Text, fmt.Sprintf("option_%d", i))
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"story":  storyID,
				"option": i,
			}).Warn("Option left without audio")
			continue
		}
		out[i].Audio = ref
	}
	return out
}

// SelectedOptionAudio returns audio for the choice made on prev: the matching
// option's audio when there is one, otherwise freshly synthesized speech for
// free-text input. Returns an empty reference when nothing could be produced.
func (p *Pipeline) SelectedOptionAudio(ctx context.Context, prev story.Scene, choice, storyID string) story.AssetRef {
	if opt, ok := prev.FindOption(choice); ok && !opt.Audio.IsZero() {
		return opt.Audio
	}

	ref, err := p.speak(ctx, storyID, choice, "selected_option")
	if err != nil {
		logrus.WithError(err).WithField("story", storyID).Warn("Selected option left without audio")
		return ""
	}
	return ref
}
