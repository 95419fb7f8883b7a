package nest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"novelnest/internal/cli/scheme/colours"
	"novelnest/internal/client"
	"novelnest/internal/config"
	"novelnest/internal/playback"
	"novelnest/internal/server"
	"novelnest/internal/story/assets"
	"novelnest/internal/story/generator"
	"novelnest/internal/story/music"
	"novelnest/internal/story/narration"
	"novelnest/internal/story/speech"
	"novelnest/internal/story/tts"

	"github.com/sirupsen/logrus"
)

// NovelNest main application structure
type NovelNest struct {
	cfg    *config.Config
	client *client.Client

	mu     sync.Mutex
	player *playback.Engine

	ctx    context.Context
	Cancel context.CancelFunc
}

func NewNovelNest(cfg *config.Config) *NovelNest {
	ctx, cancel := context.WithCancel(context.Background())
	return &NovelNest{
		cfg:    cfg,
		client: client.New(cfg.Client.ServerURL),
		ctx:    ctx,
		Cancel: cancel,
	}
}

func (nn *NovelNest) ShowWelcome() {
	fmt.Println()
	colours.Title.Println("🌙 Welcome to NovelNest! 🌙")
	fmt.Println()
	colours.Info.Println("📚 Available commands:")
	fmt.Println("  • novelnest serve            - Run the story server")
	fmt.Println("  • novelnest list             - Browse recorded stories")
	fmt.Println("  • novelnest play <setting>   - Start a new narrated story")
	fmt.Println("  • novelnest replay <id>      - Replay a recorded story")
	fmt.Println("  • novelnest voices           - List narration engines and voices")
	fmt.Println("  • novelnest music status <task-id>")
	fmt.Println()
	colours.Prompt.Println("✨ Where will the story take you tonight? ✨")
}

// Stop silences any playback in progress.
func (nn *NovelNest) Stop() {
	nn.mu.Lock()
	p := nn.player
	nn.mu.Unlock()
	if p != nil {
		p.Close()
	}
}

// engine builds the terminal playback engine on first use.
func (nn *NovelNest) engine(resolver playback.Resolver) *playback.Engine {
	nn.mu.Lock()
	defer nn.mu.Unlock()
	if nn.player != nil {
		return nn.player
	}
	pc := nn.cfg.Playback
	beep := playback.NewBeepPlayer(resolver, pc.Speed, pc.Reverb)
	nn.player = playback.NewEngine(playback.NewTerminalStage(os.Stdout), beep, beep, playback.Options{
		Speed:      pc.Speed,
		MusicLevel: pc.MusicVolume,
	})
	return nn.player
}

// BuildServer wires the HTTP server from configuration. Scene generation
// is only enabled when a Gemini key is configured, and music only when a
// Suno key is.
func BuildServer(cfg *config.Config) (*server.Server, error) {
	store := assets.NewStore(cfg.Server.StoriesDir)
	opts := server.Options{
		Stories:    store,
		StoriesDir: store.Root(),
		PublicDir:  cfg.Server.PublicDir,
	}
	if !cfg.CreatorMode() {
		logrus.Warn("No Gemini API key configured, creator mode is disabled")
		return server.New(opts), nil
	}

	engine, err := tts.NewEngine(ttsConfig(cfg.TTS))
	if err != nil {
		return nil, fmt.Errorf("failed to create tts engine: %w", err)
	}
	pipeline := narration.New(engine, speech.ForLanguage(cfg.TTS.Language), store, cfg.Narration.Delay)

	gemini := generator.NewGeminiClient(cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.TextModel, cfg.Gemini.ImageModel)
	images := generator.ImageChain{gemini}
	if cfg.Images.PollinationsURL != "" {
		images = append(images, generator.NewPollinationsClient(cfg.Images.PollinationsURL))
	}

	opts.Generator = generator.New(gemini, images, pipeline, store)
	opts.Images = gemini

	if cfg.Suno.APIKey != "" {
		suno := music.NewSunoClient(cfg.Suno.APIKey, cfg.Suno.BaseURL, cfg.Suno.Model)
		opts.Music = music.NewOrchestrator(suno, store, cfg.Music.PollAttempts, cfg.Music.PollInterval)
	} else {
		logrus.Warn("No Suno API key configured, stories will have no music")
	}

	logrus.WithFields(logrus.Fields{
		"tts":    cfg.TTS.Type,
		"images": images.Name(),
	}).Info("Creator mode enabled")
	return server.New(opts), nil
}

func ttsConfig(c config.TTSConfig) tts.Config {
	return tts.Config{
		Type:      c.Type,
		Voice:     c.Voice,
		Language:  c.Language,
		Speed:     c.Speed,
		APIKey:    c.ElevenLabsAPIKey,
		VoiceID:   c.ElevenLabsVoiceID,
		CachePath: c.CachePath,
	}
}
