package tts

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/texttospeech/apiv1"
	"github.com/sirupsen/logrus"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"
)

type GoogleClassicTTSEngine struct {
	client       *texttospeech.Client
	voice        string
	language     string
	speed        float64
	mu           sync.Mutex
	cacheRootDir string
}

func newGoogleClassicTTSEngine(config Config) (*GoogleClassicTTSEngine, error) {
	client, err := texttospeech.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}

	if config.CachePath != "" {
		if err := os.MkdirAll(config.CachePath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
	}

	voice := config.Voice
	if voice == "" || voice == "default" {
		voice = "es-ES-Chirp3-HD-Charon"
	}
	language := config.Language
	if language == "" {
		language = "es-ES"
	}
	speed := config.Speed
	if speed <= 0 {
		speed = 1.0
	}

	return &GoogleClassicTTSEngine{
		client:       client,
		voice:        voice,
		language:     language,
		speed:        speed,
		cacheRootDir: config.CachePath,
	}, nil
}

func (g *GoogleClassicTTSEngine) cacheFile(text string) string {
	if g.cacheRootDir == "" {
		return ""
	}
	contentHash := md5Sum(text + g.voice)[:16]
	return filepath.Join(g.cacheRootDir, "google_classic", contentHash+".mp3")
}

// Synthesize generates MP3 speech, reusing cached audio for identical text and voice.
func (g *GoogleClassicTTSEngine) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	g.mu.Lock()
	voice, language, speed := g.voice, g.language, g.speed
	g.mu.Unlock()

	cachePath := g.cacheFile(text)
	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil {
			logrus.WithField("file", cachePath).Debug("Using cached speech")
			return &Audio{Data: data, Format: "mp3"}, nil
		}
	}

	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}
	// Chirp voices don't support speakingRate
	if !strings.Contains(strings.ToLower(voice), "chirp") {
		audioCfg.SpeakingRate = speed
	}

	var out []byte
	chunks := splitIntoChunks(text, 4800) // a little under 5000 to be safe
	for chunkIndex, chunk := range chunks {
		req := &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk},
			},
			Voice: &texttospeechpb.VoiceSelectionParams{
				LanguageCode: language,
				Name:         voice,
			},
			AudioConfig: audioCfg,
		}
		resp, err := g.client.SynthesizeSpeech(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to synthesize chunk %d: %w", chunkIndex, err)
		}
		// MP3 frames can be concatenated as-is
		out = append(out, resp.AudioContent...)
	}

	if cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err == nil {
			if err := os.WriteFile(cachePath, out, 0644); err != nil {
				logrus.WithError(err).Warn("Failed to cache speech")
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"chunks": len(chunks),
		"voice":  voice,
	}).Debug("Synthesized speech with Google TTS")

	return &Audio{Data: out, Format: "mp3"}, nil
}

func (g *GoogleClassicTTSEngine) SetVoice(voice string) error {
	g.mu.Lock()
	g.voice = voice
	g.mu.Unlock()
	return nil
}

func (g *GoogleClassicTTSEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	infos, err := g.GetVoiceInfo(ctx)
	if err != nil {
		return nil, err
	}
	voices := make([]string, 0, len(infos))
	for _, v := range infos {
		voices = append(voices, v.Name)
	}
	return voices, nil
}

func (g *GoogleClassicTTSEngine) GetVoiceInfo(ctx context.Context) ([]VoiceInfo, error) {
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: g.language})
	if err != nil {
		return nil, err
	}
	infos := make([]VoiceInfo, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		info := VoiceInfo{
			Name:    v.Name,
			Gender:  v.SsmlGender.String(),
			Natural: strings.Contains(v.Name, "Chirp") || strings.Contains(v.Name, "Neural"),
		}
		if len(v.LanguageCodes) > 0 {
			info.LanguageCode = v.LanguageCodes[0]
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (g *GoogleClassicTTSEngine) Close() error {
	return g.client.Close()
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func splitIntoChunks(text string, limit int) []string {
	var chunks []string
	runes := []rune(text) // safe for UTF-8
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
