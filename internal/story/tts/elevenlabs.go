package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	elevenLabsBaseURL     = "https://api.elevenlabs.io"
	elevenLabsModel       = "eleven_multilingual_v2"
	elevenLabsMaxRetries  = 3
	elevenLabsRetryPeriod = 2 * time.Second
)

var errRateLimited = errors.New("rate limited")

// ElevenLabsEngine calls the ElevenLabs text-to-speech API
type ElevenLabsEngine struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retryDelay time.Duration

	mu      sync.Mutex
	voiceID string
}

func newElevenLabsEngine(config Config) (*ElevenLabsEngine, error) {
	if config.APIKey == "" || config.VoiceID == "" {
		return nil, fmt.Errorf("elevenlabs requires an API key and a voice id")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}
	return &ElevenLabsEngine{
		apiKey:     config.APIKey,
		voiceID:    config.VoiceID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retryDelay: elevenLabsRetryPeriod,
	}, nil
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize retries rate-limited calls a few times before giving up.
func (e *ElevenLabsEngine) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	var lastErr error
	for attempt := 0; attempt <= elevenLabsMaxRetries; attempt++ {
		if attempt > 0 {
			logrus.WithField("attempts_left", elevenLabsMaxRetries-attempt+1).
				Warn("Rate limit hit for speech generation, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.retryDelay):
			}
		}

		data, err := e.synthesizeOnce(ctx, text)
		if err == nil {
			return &Audio{Data: data, Format: "mp3"}, nil
		}
		lastErr = err
		if !errors.Is(err, errRateLimited) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("speech generation failed after %d retries: %w", elevenLabsMaxRetries, lastErr)
}

func (e *ElevenLabsEngine) synthesizeOnce(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(elevenLabsRequest{
		Text:          text,
		ModelID:       elevenLabsModel,
		VoiceSettings: elevenLabsVoiceSettings{Stability: 0.5, SimilarityBoost: 0.5},
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	url := fmt.Sprintf("%s/v1/text-to-speech/%s", e.baseURL, e.voiceID)
	e.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("elevenlabs error: %s - %s", resp.Status, string(msg))
	}
	return io.ReadAll(resp.Body)
}

func (e *ElevenLabsEngine) SetVoice(voice string) error {
	e.mu.Lock()
	e.voiceID = voice
	e.mu.Unlock()
	return nil
}

func (e *ElevenLabsEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs voices: %s", resp.Status)
	}

	var payload struct {
		Voices []struct {
			VoiceID string `json:"voice_id"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	voices := make([]string, 0, len(payload.Voices))
	for _, v := range payload.Voices {
		voices = append(voices, v.VoiceID)
	}
	return voices, nil
}
