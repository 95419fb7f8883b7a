package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"novelnest/internal/domain/story"
	"novelnest/internal/story/assets"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// HistoryTurns bounds the conversation history sent with each prompt.
const HistoryTurns = 6

var ErrMalformedScene = errors.New("malformed scene")

const systemPrompt = `You are the game master of a visual novel.
Write immersive story beats and the choices that follow them.
Answer with valid JSON only. Story text and options are written in Spanish.
Describe characters and places concretely so every image can be drawn consistently without earlier context.
Fit tone, language and content to the setting the player gave. Be descriptive and educational but brief.
Use exactly this structure:
{
  "title": "story title in Spanish",
  "scene_text": ["first beat", "second beat", "third beat"],
  "scene_image_prompt": "self-contained English description of the scene for an image model, repeating the look of characters and places",
  "scene_music_style": "specific English music style tags",
  "scene_music_title": "short music title",
  "options": [{"text": "first action"}, {"text": "second action"}, {"text": "third action"}]
}
Split scene_text into 2 to 4 short dramatic sentences.`

const uploadHint = `
(The attached images are the visual reference for this scene. Write a detailed scene_image_prompt that keeps their style and the look of their characters while showing what happens now in the story.)`

// TextGenerator produces the model's raw answer for a multimodal prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, parts []Part) (string, error)
}

// Narrator gives scenes their spoken audio.
type Narrator interface {
	Synthesize(ctx context.Context, segments []string, storyID string) []story.NarrationPart
	SynthesizeOptions(ctx context.Context, options []story.Option, storyID string) []story.Option
	SelectedOptionAudio(ctx context.Context, prev story.Scene, choice, storyID string) story.AssetRef
}

// Store is the persistence scene generation needs.
type Store interface {
	SaveAsset(ctx context.Context, storyID string, data []byte, ext, label string) (story.AssetRef, error)
	SaveStory(ctx context.Context, st *story.Story) error
	LoadStory(ctx context.Context, storyID string) (*story.Story, error)
}

// Generator creates scenes from the model and gives them image and audio.
type Generator struct {
	text     TextGenerator
	images   ImageGenerator
	narrator Narrator
	store    Store
	now      func() time.Time
}

func New(text TextGenerator, images ImageGenerator, narrator Narrator, store Store) *Generator {
	return &Generator{
		text:     text,
		images:   images,
		narrator: narrator,
		store:    store,
		now:      time.Now,
	}
}

// ParseScene reads the model's JSON answer, tolerating markdown fences.
func ParseScene(raw string) (story.Scene, error) {
	clean := strings.ReplaceAll(raw, "```json", "")
	clean = strings.TrimSpace(strings.ReplaceAll(clean, "```", ""))

	var scene story.Scene
	if err := json.Unmarshal([]byte(clean), &scene); err != nil {
		return story.Scene{}, fmt.Errorf("%w: %v", ErrMalformedScene, err)
	}
	if len(scene.SceneText) == 0 {
		return story.Scene{}, fmt.Errorf("%w: no scene text", ErrMalformedScene)
	}
	if len(scene.Options) < story.OptionCount {
		return story.Scene{}, fmt.Errorf("%w: %d options", ErrMalformedScene, len(scene.Options))
	}
	scene.Options = scene.Options[:story.OptionCount]
	for i := range scene.Options {
		scene.Options[i].Audio = ""
	}

	// fields the model must not control
	scene.Narrative = nil
	scene.Image = ""
	scene.Music = ""
	scene.SelectedOption = ""
	scene.SelectedOptionAudio = ""
	return scene, nil
}

type upload struct {
	ref   story.AssetRef
	image Image
}

// saveUploads stores the player's images and returns them as prompt parts.
func (g *Generator) saveUploads(ctx context.Context, storyID string, dataURLs []string, label string) ([]Part, *upload, error) {
	var parts []Part
	var first *upload
	for i, raw := range dataURLs {
		img, err := DecodeDataURL(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("image %d: %w", i, err)
		}
		ref, err := g.store.SaveAsset(ctx, storyID, img.Data, extensionFor(img.MimeType), fmt.Sprintf("%s_%d", label, i))
		if err != nil {
			return nil, nil, err
		}
		if first == nil {
			first = &upload{ref: ref, image: *img}
		}
		parts = append(parts, Part{Image: img})
	}
	if len(parts) > 0 {
		parts = append(parts, Part{Text: uploadHint})
	}
	return parts, first, nil
}

// compose generates the scene and then its image and audio concurrently.
func (g *Generator) compose(ctx context.Context, storyID string, parts []Part, first *upload) (story.Scene, error) {
	raw, err := g.text.GenerateText(ctx, parts)
	if err != nil {
		return story.Scene{}, fmt.Errorf("generating scene: %w", err)
	}
	scene, err := ParseScene(raw)
	if err != nil {
		return story.Scene{}, err
	}

	var (
		image   SceneImage
		narr    []story.NarrationPart
		options []story.Option
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		image = resolveImage(egCtx, g.images, scene.ImagePrompt, first)
		return nil
	})
	eg.Go(func() error {
		narr = g.narrator.Synthesize(egCtx, scene.SceneText, storyID)
		options = g.narrator.SynthesizeOptions(egCtx, scene.Options, storyID)
		return egCtx.Err()
	})
	if err := eg.Wait(); err != nil {
		return story.Scene{}, err
	}

	switch img := image.(type) {
	case GeneratedImage:
		ref, err := g.store.SaveAsset(ctx, storyID, img.Image.Data, extensionFor(img.Image.MimeType), "scene")
		if err != nil {
			logrus.WithError(err).WithField("story", storyID).Error("Error saving scene image")
			if first != nil {
				scene.Image = first.ref
			}
		} else {
			scene.Image = ref
		}
	case UploadedImage:
		scene.Image = img.Ref
	case NoImage:
		logrus.WithField("story", storyID).Warn("Scene has no image")
	}

	scene.Narrative = &story.Narrative{Parts: narr}
	scene.Options = options
	return scene, nil
}

// Start creates a story from a setting and generates its first scene.
// Nothing is persisted unless the scene text was generated.
func (g *Generator) Start(ctx context.Context, setting string, images []string) (*story.Story, error) {
	now := g.now()
	storyID := assets.NewStoryID(setting, now)
	log := logrus.WithField("story", storyID)

	uploads, first, err := g.saveUploads(ctx, storyID, images, "uploaded_scene")
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("%s\n\nStart a new story with this setting: %q.\nGenerate the first scene.", systemPrompt, setting)
	parts := append([]Part{{Text: prompt}}, uploads...)
	log.WithField("images", len(images)).Info("Generating first scene")

	scene, err := g.compose(ctx, storyID, parts, first)
	if err != nil {
		return nil, err
	}

	title := scene.Title
	if title == "" {
		title = setting
	}
	st := &story.Story{
		ID:        storyID,
		Title:     title,
		Setting:   setting,
		CreatedAt: now.UTC(),
	}
	st.Append(scene)
	if err := g.store.SaveStory(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func historyText(history []story.Turn) string {
	if len(history) > HistoryTurns {
		history = history[len(history)-HistoryTurns:]
	}
	lines := make([]string, 0, len(history))
	for _, h := range history {
		lines = append(lines, h.Role+": "+h.Text)
	}
	return strings.Join(lines, "\n")
}

// Next continues a story after the player's choice. The choice is recorded
// on the previous scene in the same save that appends the new one.
func (g *Generator) Next(ctx context.Context, storyID string, history []story.Turn, choice string, images []string) (story.Scene, error) {
	st, err := g.store.LoadStory(ctx, storyID)
	if err != nil {
		return story.Scene{}, err
	}
	prev := st.LastScene()
	if prev != nil && prev.SelectedOption != "" {
		return story.Scene{}, story.ErrAlreadyAdvanced
	}

	setting := st.Setting
	if setting == "" {
		setting = "Unknown"
	}
	prompt := fmt.Sprintf("%s\n\nOriginal setting: %q\n\nStory history:\n%s\n\nThe player chose: %q.\nContinue the story from this choice.",
		systemPrompt, setting, historyText(history), choice)

	uploads, first, err := g.saveUploads(ctx, storyID, images, "uploaded_next")
	if err != nil {
		return story.Scene{}, err
	}
	parts := append([]Part{{Text: prompt}}, uploads...)
	logrus.WithFields(logrus.Fields{
		"story":  storyID,
		"choice": choice,
	}).Info("Generating next scene")

	scene, err := g.compose(ctx, storyID, parts, first)
	if err != nil {
		return story.Scene{}, err
	}

	if prev != nil {
		audio := g.narrator.SelectedOptionAudio(ctx, *prev, choice, storyID)
		if err := prev.RecordChoice(choice, audio); err != nil {
			return story.Scene{}, err
		}
	}
	st.Append(scene)
	if err := g.store.SaveStory(ctx, st); err != nil {
		return story.Scene{}, err
	}
	return scene, nil
}
