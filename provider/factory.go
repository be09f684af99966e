package provider

import (
	"fmt"
)

// NewProvider creates a provider based on configuration.
//
// Supported provider types:
//   - ProviderTypeOllama: local Ollama server
//   - ProviderTypeOpenAI: OpenAI completions API
//   - ProviderTypeOpenRouter: OpenRouter (OpenAI-compatible)
//   - ProviderTypeAnthropic: Anthropic Messages API
//
// Returns an error if the provider type is unknown or the provider-specific
// constructor fails (e.g. missing API key).
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Type {
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.HTTPClient)
	case ProviderTypeOpenRouter:
		return NewOpenRouterProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.HTTPClient)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.HTTPClient)
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.HTTPClient)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// MapProviderIDToType converts a config provider ID to a ProviderType.
// Unknown IDs are passed through as-is and rejected by NewProvider.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic":
		return ProviderTypeAnthropic
	default:
		return ProviderType(id)
	}
}

// DefaultAPIKeyEnv names the environment variable holding the API key of a
// provider, or "" when none is needed.
func DefaultAPIKeyEnv(t ProviderType) string {
	switch t {
	case ProviderTypeOpenAI:
		return "OPENAI_API_KEY"
	case ProviderTypeOpenRouter:
		return "OPENROUTER_API_KEY"
	case ProviderTypeAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}
