package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5000", cfg.Server.Addr)
	assert.Equal(t, "sessions", cfg.Sessions.Dir)
	assert.Equal(t, "default.json", cfg.Sessions.DefaultFile)
	assert.Equal(t, 7, cfg.Reasoning.MaxSteps)
	assert.NotEmpty(t, cfg.Reasoning.GenerationModels)
	assert.NotEmpty(t, cfg.Speech.TranscribeURL)
}

func TestLoadOverridesKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: 0.0.0.0:8080
reasoning:
  matching_models: [openai]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, []string{"openai"}, cfg.Reasoning.MatchingModels)
	// Untouched sections keep their defaults.
	assert.Equal(t, "default.json", cfg.Sessions.DefaultFile)
	assert.Equal(t, 7, cfg.Reasoning.MaxSteps)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: a map"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
