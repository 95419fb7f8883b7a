package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "stories", cfg.Server.StoriesDir)
	assert.Equal(t, 30, cfg.Music.PollAttempts)
	assert.Equal(t, 2*time.Second, cfg.Music.PollInterval)
	assert.Equal(t, 80, cfg.Music.RetryAttempts)
	assert.Equal(t, 3*time.Second, cfg.Music.RetryInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Narration.Delay)
	assert.Equal(t, "auto", cfg.TTS.Type)
	assert.False(t, cfg.CreatorMode())
}

func TestConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "novelnest.yaml"), []byte(`
server:
  port: 8080
tts:
  type: mock
playback:
  speed: 1.5
`), 0644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("GEMINI_API_KEY", "key-from-env")
	t.Setenv("NOVELNEST_MUSIC_POLL_ATTEMPTS", "5")

	v := viper.New()
	require.NoError(t, initViper(v))
	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mock", cfg.TTS.Type)
	assert.Equal(t, 1.5, cfg.Playback.Speed)
	assert.Equal(t, 5, cfg.Music.PollAttempts)
	assert.Equal(t, "key-from-env", cfg.Gemini.APIKey)
	assert.True(t, cfg.CreatorMode())
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"unknown engine", "tts.type", "festival"},
		{"port out of range", "server.port", 70000},
		{"bad log level", "log.level", "loud"},
		{"reverb above one", "playback.reverb", 1.5},
		{"bad server url", "client.server_url", "not a url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			v.Set(tt.key, tt.val)
			_, err := decode(v)
			assert.ErrorContains(t, err, "config validation failed")
		})
	}
}

func TestApplyLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetFormatter(&logrus.TextFormatter{})

	ApplyLogging(LogConfig{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	ApplyLogging(LogConfig{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}
