// internal/story/tts/tts.go
package tts

import (
	"context"
	"errors"
)

var ErrEmptyText = errors.New("empty text")

type Config struct {
	Type     string
	Voice    string
	Language string
	Speed    float64

	// ElevenLabs
	APIKey  string
	VoiceID string
	BaseURL string

	// Google
	CachePath string
}

// Audio is synthesized speech ready to be stored as an asset.
type Audio struct {
	Data   []byte
	Format string // file extension, e.g. "mp3"
}

// Engine turns narration text into audio.
type Engine interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
	SetVoice(voice string) error
	GetAvailableVoices(ctx context.Context) ([]string, error)
}

// VoiceInfo provides detailed information about available voices
type VoiceInfo struct {
	Name         string `json:"name"`
	LanguageCode string `json:"language_code"`
	Gender       string `json:"gender"`
	Natural      bool   `json:"natural"`
	Description  string `json:"description"`
}

// EnhancedEngine extends Engine with voice metadata
type EnhancedEngine interface {
	Engine
	GetVoiceInfo(ctx context.Context) ([]VoiceInfo, error)
}
