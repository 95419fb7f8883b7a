package tts

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

var mockVoices = []VoiceInfo{
	{Name: "default", LanguageCode: "es-ES", Gender: "NEUTRAL", Description: "Placeholder narrator"},
	{Name: "lucia", LanguageCode: "es-ES", Gender: "FEMALE", Natural: true, Description: "Placeholder storyteller"},
}

// MockTTSEngine returns placeholder audio without calling any provider
type MockTTSEngine struct {
	mu     sync.Mutex
	voice  string
	spoken []string
}

func NewMockTTSEngine(c Config) *MockTTSEngine {
	voice := c.Voice
	if voice == "" {
		voice = "default"
	}
	return &MockTTSEngine{voice: voice}
}

func (m *MockTTSEngine) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.spoken = append(m.spoken, text)
	m.mu.Unlock()

	return &Audio{Data: []byte("mock:" + m.voice + ":" + text), Format: "mp3"}, nil
}

// Spoken returns every text synthesized so far, in order.
func (m *MockTTSEngine) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

func (m *MockTTSEngine) SetVoice(voice string) error {
	for _, v := range mockVoices {
		if v.Name == voice {
			m.mu.Lock()
			m.voice = voice
			m.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("voice '%s' not available", voice)
}

func (m *MockTTSEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	voices := make([]string, 0, len(mockVoices))
	for _, v := range mockVoices {
		voices = append(voices, v.Name)
	}
	return voices, nil
}

func (m *MockTTSEngine) GetVoiceInfo(ctx context.Context) ([]VoiceInfo, error) {
	return append([]VoiceInfo(nil), mockVoices...), nil
}
