// Package config holds the tunable settings for the backend. Values come
// from an optional YAML file; API keys stay in the environment.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Speech    SpeechConfig    `yaml:"speech"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type SessionsConfig struct {
	// Dir is where session documents live; one JSON file per session.
	Dir string `yaml:"dir"`
	// DefaultFile is used when a request names no instructions_file.
	DefaultFile string `yaml:"default_file"`
}

type ReasoningConfig struct {
	// Backend identifiers in fallback order, per task.
	GenerationModels []string `yaml:"generation_models"`
	MatchingModels   []string `yaml:"matching_models"`
	// MaxSteps bounds the instruction-generation tool loop.
	MaxSteps int `yaml:"max_steps"`
}

type SpeechConfig struct {
	TranscribeURL   string `yaml:"transcribe_url"`
	TranscribeModel string `yaml:"transcribe_model"`
	SpeakURL        string `yaml:"speak_url"`
	SpeakModel      string `yaml:"speak_model"`
	SpeakVoice      string `yaml:"speak_voice"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:5000",
		},
		Sessions: SessionsConfig{
			Dir:         "sessions",
			DefaultFile: "default.json",
		},
		Reasoning: ReasoningConfig{
			GenerationModels: []string{"openai", "anthropic"},
			MatchingModels:   []string{"anthropic", "openai"},
			MaxSteps:         7,
		},
		Speech: SpeechConfig{
			TranscribeURL:   "https://api.openai.com/v1/audio/transcriptions",
			TranscribeModel: "whisper-1",
			SpeakURL:        "https://api.openai.com/v1/audio/speech",
			SpeakModel:      "tts-1",
			SpeakVoice:      "alloy",
		},
	}
}

// Load reads a YAML config over the defaults. An empty path means defaults
// only; a named file must exist and parse.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
