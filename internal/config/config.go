package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Images    ImagesConfig    `mapstructure:"images"`
	Suno      SunoConfig      `mapstructure:"suno"`
	Music     MusicConfig     `mapstructure:"music"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Narration NarrationConfig `mapstructure:"narration"`
	Playback  PlaybackConfig  `mapstructure:"playback"`
	Client    ClientConfig    `mapstructure:"client"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port" validate:"min=1,max=65535"`
	StoriesDir string `mapstructure:"stories_dir" validate:"required"`
	PublicDir  string `mapstructure:"public_dir"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url" validate:"required,url"`
	TextModel  string `mapstructure:"text_model" validate:"required"`
	ImageModel string `mapstructure:"image_model" validate:"required"`
}

type ImagesConfig struct {
	PollinationsURL string `mapstructure:"pollinations_url" validate:"omitempty,url"`
}

type SunoConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	Model   string `mapstructure:"model" validate:"required"`
}

type MusicConfig struct {
	PollAttempts  int           `mapstructure:"poll_attempts" validate:"min=1"`
	PollInterval  time.Duration `mapstructure:"poll_interval" validate:"min=0"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"min=1"`
	RetryInterval time.Duration `mapstructure:"retry_interval" validate:"min=0"`
}

type TTSConfig struct {
	Type              string  `mapstructure:"type" validate:"oneof=auto mock espeak googleclassic elevenlabs"`
	Voice             string  `mapstructure:"voice"`
	Language          string  `mapstructure:"language" validate:"required"`
	Speed             float64 `mapstructure:"speed" validate:"gt=0,lte=4"`
	ElevenLabsAPIKey  string  `mapstructure:"elevenlabs_api_key"`
	ElevenLabsVoiceID string  `mapstructure:"elevenlabs_voice_id"`
	CachePath         string  `mapstructure:"cache_path"`
}

type NarrationConfig struct {
	Delay time.Duration `mapstructure:"delay" validate:"min=0"`
}

type PlaybackConfig struct {
	Speed       float64 `mapstructure:"speed" validate:"gt=0,lte=4"`
	Reverb      float64 `mapstructure:"reverb" validate:"min=0,max=1"`
	MusicVolume float64 `mapstructure:"music_volume" validate:"gt=0,max=1"`
}

type ClientConfig struct {
	ServerURL string `mapstructure:"server_url" validate:"required,url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// CreatorMode reports whether scene generation is available.
func (c *Config) CreatorMode() bool {
	return c.Gemini.APIKey != ""
}

// SetDefaults registers defaults on the global viper instance.
func SetDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.stories_dir", "stories")
	v.SetDefault("server.public_dir", "public")

	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.text_model", "gemini-3-flash-preview")
	v.SetDefault("gemini.image_model", "gemini-3-pro-image-preview")
	v.SetDefault("images.pollinations_url", "https://image.pollinations.ai")

	v.SetDefault("suno.base_url", "https://api.sunoapi.org")
	v.SetDefault("suno.model", "V4_5ALL")

	v.SetDefault("music.poll_attempts", 30)
	v.SetDefault("music.poll_interval", "2s")
	v.SetDefault("music.retry_attempts", 80)
	v.SetDefault("music.retry_interval", "3s")

	v.SetDefault("tts.type", "auto") // Auto-select best engine
	v.SetDefault("tts.voice", "")
	v.SetDefault("tts.language", "es-ES")
	v.SetDefault("tts.speed", 1.0)
	v.SetDefault("tts.cache_path", "./cache")

	v.SetDefault("narration.delay", "100ms")

	v.SetDefault("playback.speed", 1.0)
	v.SetDefault("playback.reverb", 0.3)
	v.SetDefault("playback.music_volume", 1.0)

	v.SetDefault("client.server_url", "http://localhost:3000")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Init points the global viper instance at novelnest.yaml and the
// environment. A missing config file is not an error.
func Init() error {
	_ = godotenv.Load()
	return initViper(viper.GetViper())
}

func initViper(v *viper.Viper) error {
	setDefaults(v)

	v.SetConfigName("novelnest")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.novelnest")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NOVELNEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// the provider keys are also read under their usual names
	_ = v.BindEnv("gemini.api_key", "NOVELNEST_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("suno.api_key", "NOVELNEST_SUNO_API_KEY", "SUNO_API_KEY")
	_ = v.BindEnv("tts.elevenlabs_api_key", "NOVELNEST_TTS_ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY")
	_ = v.BindEnv("tts.elevenlabs_voice_id", "NOVELNEST_TTS_ELEVENLABS_VOICE_ID", "ELEVENLABS_VOICE_ID")
	_ = v.BindEnv("server.port", "NOVELNEST_SERVER_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

// Load decodes and validates the global configuration.
func Load() (*Config, error) {
	return decode(viper.GetViper())
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// ApplyLogging configures the global logrus logger.
func ApplyLogging(c LogConfig) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if c.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
