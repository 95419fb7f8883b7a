package story

// Narration is the sequencing mode of a scene. Exactly one of
// PartsNarration, CombinedNarration and TextNarration is returned by
// Scene.Narration.
type Narration interface {
	isNarration()
}

// PartsNarration pairs each text segment with its own audio.
type PartsNarration struct {
	Parts []NarrationPart
}

// CombinedNarration is the legacy shape: all text shown, one audio track.
type CombinedNarration struct {
	Segments []string
	Audio    AssetRef
}

// TextNarration has no audio at all.
type TextNarration struct {
	Segments []string
}

func (PartsNarration) isNarration()    {}
func (CombinedNarration) isNarration() {}
func (TextNarration) isNarration()     {}

func (s Scene) segments() []string {
	if s.Narrative != nil && len(s.Narrative.Segments) > 0 {
		return s.Narrative.Segments
	}
	return s.SceneText
}

// Narration classifies the scene record.
func (s Scene) Narration() Narration {
	switch {
	case s.Narrative != nil && len(s.Narrative.Parts) > 0:
		return PartsNarration{Parts: s.Narrative.Parts}
	case s.Narrative != nil && !s.Narrative.Audio.IsZero():
		return CombinedNarration{Segments: s.segments(), Audio: s.Narrative.Audio}
	default:
		return TextNarration{Segments: s.segments()}
	}
}

// ReplayOptions returns the options shown when replaying a recorded scene.
// A recorded free-text choice that is not one of the options takes the last
// slot, so the option count never changes.
func ReplayOptions(s Scene) []Option {
	opts := make([]Option, len(s.Options))
	copy(opts, s.Options)
	if len(opts) == 0 || s.SelectedOption == "" {
		return opts
	}
	if _, ok := s.FindOption(s.SelectedOption); ok {
		return opts
	}

	last := len(opts) - 1
	audio := s.SelectedOptionAudio
	if audio.IsZero() {
		audio = opts[last].Audio
	}
	opts[last] = Option{Text: s.SelectedOption, Audio: audio}
	return opts
}
