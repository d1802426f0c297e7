package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// Backend identifiers as the reasoning runner names them.
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

type Request struct {
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature float32
	MaxTokens   int
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type Response struct {
	Text string
}

// NewRegistry builds every backend whose API key is present in the
// environment, keyed by provider identifier. At least one must be
// configured.
func NewRegistry(logger zerolog.Logger) (map[string]Client, error) {
	reg := make(map[string]Client)
	if strings.TrimSpace(os.Getenv(envAPIKey)) != "" {
		c, err := NewAnthropicWithLogger(logger.With().Str("backend", ProviderAnthropic).Logger())
		if err != nil {
			return nil, err
		}
		reg[ProviderAnthropic] = c
	}
	if strings.TrimSpace(os.Getenv(envOpenAIAPIKey)) != "" {
		c, err := NewOpenAIWithLogger(logger.With().Str("backend", ProviderOpenAI).Logger())
		if err != nil {
			return nil, err
		}
		reg[ProviderOpenAI] = c
	}
	if len(reg) == 0 {
		return nil, fmt.Errorf("no reasoning backend configured (set %s or %s)", envAPIKey, envOpenAIAPIKey)
	}
	return reg, nil
}
