package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TobiSchelling/ankiforge/internal/config"
)

// Request is a single chat completion request.
type Request struct {
	System      string
	User        string
	Temperature float64
	// MaxTokens of 0 leaves the provider default in place.
	MaxTokens int
}

// Provider is the interface for LLM providers. Implementations wrap
// ErrTimeout or ErrRateLimited when the backend reports those conditions.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// CreateProvider creates an LLM provider based on configuration.
func CreateProvider(cfg config.LLM) (Provider, error) {
	key := cfg.APIKey()
	switch strings.ToLower(cfg.Provider) {
	case "openai", "openai_compatible":
		if key == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("no API key found in $%s", cfg.APIKeyEnv)
		}
		slog.Info("using OpenAI-compatible provider", "model", cfg.Model, "base_url", cfg.BaseURL)
		return NewOpenAIProvider(cfg.Model, key, cfg.BaseURL), nil
	case "deepseek":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.deepseek.com/v1"
		}
		slog.Info("using DeepSeek provider", "model", cfg.Model)
		return NewOpenAIProvider(cfg.Model, key, baseURL), nil
	case "anthropic":
		if key == "" {
			return nil, fmt.Errorf("no API key found in $%s", cfg.APIKeyEnv)
		}
		slog.Info("using Anthropic provider", "model", cfg.Model)
		return NewAnthropicProvider(cfg.Model, key, cfg.BaseURL), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		slog.Info("using Ollama provider", "model", cfg.Model, "base_url", baseURL)
		return NewOllamaProvider(cfg.Model, baseURL), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
