package embedder

import (
	"fmt"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // openai, ollama, local; empty auto-detects
	Model     string // empty uses the provider default
	APIKey    string // OpenAI key
	BaseURL   string // OpenAI-compatible endpoint or Ollama host
	Dimension int    // local provider only
}

// DetectProvider returns the provider New would use for cfg.
// Priority: explicit setting, then an OpenAI key, then local.
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	if cfg.APIKey != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	switch provider := DetectProvider(cfg); provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}
