package tts

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

type EngineType string

const (
	EngineTypeMock          EngineType = "mock"
	EngineTypeESpeak        EngineType = "espeak"
	EngineTypeGoogleClassic EngineType = "googleclassic"
	EngineTypeElevenLabs    EngineType = "elevenlabs"
	EngineTypeAuto          EngineType = "auto" // Automatically choose best available
)

func (e EngineType) String() string {
	return string(e)
}

// NewEngine creates a new TTS engine based on the provided config
func NewEngine(config Config) (Engine, error) {
	if config.Type == "" || config.Type == EngineTypeAuto.String() {
		config.Type = getBestEngine(config).String()
	}

	switch config.Type {
	case EngineTypeMock.String():
		return NewMockTTSEngine(config), nil

	case EngineTypeElevenLabs.String():
		engine, err := newElevenLabsEngine(config)
		if err != nil {
			return nil, err
		}
		return engine, nil

	case EngineTypeGoogleClassic.String():
		engine, err := newGoogleClassicTTSEngine(config)
		if err != nil {
			return nil, err
		}
		return engine, nil

	case EngineTypeESpeak.String():
		engine, err := newESpeakEngine(config)
		if err != nil {
			return nil, err
		}
		return engine, nil

	default:
		return nil, fmt.Errorf("unsupported TTS engine type: %s", config.Type)
	}
}

// getBestEngine prefers hosted voices when credentials are present
func getBestEngine(config Config) EngineType {
	if config.APIKey != "" && config.VoiceID != "" {
		return EngineTypeElevenLabs
	}

	if hasGoogleCredentials() {
		return EngineTypeGoogleClassic
	}

	if runtime.GOOS != "windows" {
		if _, err := findESpeakExecutable(); err == nil {
			return EngineTypeESpeak
		}
	}
	return EngineTypeMock
}

// GetAvailableEngines returns engines usable with the current environment
func GetAvailableEngines(config Config) []EngineType {
	engines := []EngineType{EngineTypeMock}

	if _, err := findESpeakExecutable(); err == nil {
		engines = append(engines, EngineTypeESpeak)
	}
	if hasGoogleCredentials() {
		engines = append(engines, EngineTypeGoogleClassic)
	}
	if config.APIKey != "" && config.VoiceID != "" {
		engines = append(engines, EngineTypeElevenLabs)
	}
	return engines
}

// hasGoogleCredentials checks if Google Cloud credentials are available
func hasGoogleCredentials() bool {
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}

func findESpeakExecutable() (string, error) {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("eSpeak executable not found in PATH")
}
