// Offline eSpeak implementation
package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// ESpeakEngine renders WAV speech using eSpeak/eSpeak-NG
type ESpeakEngine struct {
	config Config
	path   string
	mutex  sync.RWMutex
}

// newESpeakEngine creates a new eSpeak TTS engine
func newESpeakEngine(config Config) (*ESpeakEngine, error) {
	espeakPath, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("eSpeak not found: %w", err)
	}

	if config.Voice == "" || config.Voice == "default" {
		config.Voice = "es"
	}
	if config.Speed <= 0 {
		config.Speed = 1.0
	}

	engine := &ESpeakEngine{
		config: config,
		path:   espeakPath,
	}

	// Test the installation
	if err := exec.Command(espeakPath, "--version").Run(); err != nil {
		return nil, fmt.Errorf("eSpeak test failed: %w", err)
	}

	return engine, nil
}

func (e *ESpeakEngine) args(text string) []string {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	// words per minute, default is 175
	speed := int(175 * e.config.Speed)
	return []string{"--stdout", "-v", e.config.Voice, "-s", strconv.Itoa(speed), text}
}

// Synthesize runs eSpeak and captures the WAV it writes to stdout.
func (e *ESpeakEngine) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.path, e.args(text)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("eSpeak error: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("eSpeak produced no audio")
	}
	return &Audio{Data: stdout.Bytes(), Format: "wav"}, nil
}

func (e *ESpeakEngine) SetVoice(voice string) error {
	voices, err := e.GetAvailableVoices(context.Background())
	if err != nil {
		return err
	}

	for _, v := range voices {
		if v == voice {
			e.mutex.Lock()
			e.config.Voice = voice
			e.mutex.Unlock()
			return nil
		}
	}
	return fmt.Errorf("voice '%s' not available", voice)
}

func (e *ESpeakEngine) GetAvailableVoices(ctx context.Context) ([]string, error) {
	output, err := exec.CommandContext(ctx, e.path, "--voices").Output()
	if err != nil {
		return nil, err
	}
	return parseESpeakVoices(string(output)), nil
}

func parseESpeakVoices(output string) []string {
	lines := strings.Split(output, "\n")
	voices := make([]string, 0)

	for i, line := range lines {
		// Skip header line
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}

		// Pty Language Age/Gender VoiceName File Other Languages
		fields := strings.Fields(line)
		if len(fields) >= 4 {
			voices = append(voices, fields[3])
		}
	}

	return voices
}
