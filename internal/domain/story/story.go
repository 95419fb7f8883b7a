package story

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// OptionCount is the number of choices generated for every live scene.
const OptionCount = 3

var ErrAlreadyAdvanced = errors.New("scene already has a recorded choice")

// AssetRef points at generated media. A leading "/" marks a server-relative
// path; anything else is an inline base64 payload.
type AssetRef string

func (r AssetRef) IsZero() bool { return r == "" }

// IsPath reports whether the reference is a server-relative path.
func (r AssetRef) IsPath() bool { return strings.HasPrefix(string(r), "/") }

func (r AssetRef) String() string { return string(r) }

// MarshalJSON encodes an absent reference as null.
func (r AssetRef) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

func (r *AssetRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = AssetRef(s)
	return nil
}

// Segments is an ordered list of scene text. Older scenes stored a single
// string, which decodes as a one-element list.
type Segments []string

func (s *Segments) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = Segments{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = list
	return nil
}

type Option struct {
	Text  string   `json:"text"`
	Audio AssetRef `json:"audio"`
}

type NarrationPart struct {
	Text  string   `json:"text"`
	Audio AssetRef `json:"audio"`
}

// Narrative holds the narration of a scene. Parts is the current shape;
// Audio and Segments are the legacy single-track shape.
type Narrative struct {
	Parts    []NarrationPart `json:"parts"`
	Audio    AssetRef        `json:"audio,omitempty"`
	Segments []string        `json:"segments,omitempty"`
}

// Scene is one narrative beat.
type Scene struct {
	Title               string     `json:"title,omitempty"`
	SceneText           Segments   `json:"scene_text"`
	ImagePrompt         string     `json:"scene_image_prompt,omitempty"`
	MusicStyle          string     `json:"scene_music_style,omitempty"`
	MusicTitle          string     `json:"scene_music_title,omitempty"`
	Options             []Option   `json:"options"`
	Narrative           *Narrative `json:"narrative,omitempty"`
	Image               AssetRef   `json:"image,omitempty"`
	Music               AssetRef   `json:"music,omitempty"`
	SelectedOption      string     `json:"selectedOption,omitempty"`
	SelectedOptionAudio AssetRef   `json:"selectedOptionAudio,omitempty"`
}

// Text joins the narrated segments for use as conversation history.
func (s Scene) Text() string {
	if s.Narrative != nil && len(s.Narrative.Segments) > 0 {
		return strings.Join(s.Narrative.Segments, " ")
	}
	return strings.Join(s.SceneText, " ")
}

// RecordChoice stores the choice that advanced the story past this scene.
// It can only happen once.
func (s *Scene) RecordChoice(choice string, audio AssetRef) error {
	if s.SelectedOption != "" {
		return ErrAlreadyAdvanced
	}
	s.SelectedOption = choice
	if !audio.IsZero() {
		s.SelectedOptionAudio = audio
	}
	return nil
}

// FindOption returns the option whose text matches exactly.
func (s Scene) FindOption(text string) (Option, bool) {
	for _, o := range s.Options {
		if o.Text == text {
			return o, true
		}
	}
	return Option{}, false
}

// Story is an ordered sequence of scenes plus metadata.
type Story struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Setting   string    `json:"setting"`
	CreatedAt time.Time `json:"createdAt"`
	Scenes    []Scene   `json:"scenes"`
}

// Append adds a scene. Only the first scene may carry the story's music.
func (st *Story) Append(scene Scene) {
	if len(st.Scenes) > 0 {
		scene.Music = ""
	}
	st.Scenes = append(st.Scenes, scene)
}

// LastScene returns the most recent scene, or nil for an empty story.
func (st *Story) LastScene() *Scene {
	if len(st.Scenes) == 0 {
		return nil
	}
	return &st.Scenes[len(st.Scenes)-1]
}

// Music returns the single track of the story.
func (st *Story) Music() AssetRef {
	if len(st.Scenes) == 0 {
		return ""
	}
	return st.Scenes[0].Music
}

// SetMusic attaches the track to the first scene if none is set yet.
func (st *Story) SetMusic(ref AssetRef) bool {
	if len(st.Scenes) == 0 || !st.Scenes[0].Music.IsZero() {
		return false
	}
	st.Scenes[0].Music = ref
	return true
}

// DisplayTitle falls back to the setting when no title was generated.
func (st *Story) DisplayTitle() string {
	switch {
	case st.Title != "":
		return st.Title
	case st.Setting != "":
		return st.Setting
	default:
		return "Untitled Story"
	}
}

// Turn is one entry of the conversation history sent with /api/next.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// MusicJobStatus is persisted per story to recover an outstanding music job.
type MusicJobStatus struct {
	TaskID    string   `json:"taskId,omitempty"`
	MusicPath AssetRef `json:"musicPath,omitempty"`
}
