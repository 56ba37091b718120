package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/omecscore/internal/model"
)

// defaultOllamaURL is Ollama's OpenAI-compatible endpoint
const defaultOllamaURL = "http://localhost:11434/v1"

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "ollama":
		if config.BaseURL == "" {
			config.BaseURL = defaultOllamaURL
		}
		if config.APIKey == "" {
			config.APIKey = "ollama" // Ignored by Ollama but required by the client
		}
		p, err := NewOpenAIProvider(config)
		if err != nil {
			return nil, err
		}
		p.name = "ollama"
		return p, nil

	case "":
		// No provider configured - LLM disabled
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, ollama)", config.Provider)
	}
}

// ConfigFromModel converts the application config to an llm.Config
func ConfigFromModel(cfg model.LLMConfig, upstream model.UpstreamConfig) Config {
	c := DefaultConfig()
	c.Provider = cfg.Provider
	c.Model = cfg.Model
	c.APIKey = cfg.APIKey
	c.BaseURL = cfg.BaseURL
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	if cfg.MaxTokens > 0 {
		c.MaxTokens = cfg.MaxTokens
	}
	c.HTTPProxy = upstream.HTTPProxy
	c.HTTPSProxy = upstream.HTTPSProxy
	c.NoProxy = upstream.NoProxy
	return c
}
