// Package provider implements model.InferenceClient for the supported
// completion services.
//
// Every provider receives the fully rendered Llama-3 prompt and returns the
// generated text as a sequence of streamed chunks, so the engine never
// depends on a service's own chat formatting.
//
// # Architecture
//
//   - provider.Provider extends model.InferenceClient with model management
//   - provider.OllamaProvider sends raw generate requests to Ollama
//   - provider.OpenAIProvider uses legacy completions (OpenAI, OpenRouter)
//   - provider.AnthropicProvider folds the template into a Messages request
//   - provider.NewProvider() factory creates providers from config
//
// # Usage
//
//	p, err := provider.NewProvider(provider.Config{
//	    Type:    provider.ProviderTypeOllama,
//	    BaseURL: "http://localhost:11434",
//	    Model:   "llama3",
//	})
//	if err != nil {
//	    // handle error
//	}
//	tokens, err := p.Complete(ctx, input)
package provider

import (
	"context"
	"net/http"

	"abbas/model"
)

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // For OpenAI/OpenRouter/Anthropic (unused for Ollama)

	// HTTPClient overrides the transport; nil uses the SDK default.
	HTTPClient *http.Client
}

// Provider is an inference client bound to one model.
type Provider interface {
	model.InferenceClient

	GetModel() string
	SetModel(name string)

	// Ping checks the service is reachable with the configured credentials.
	Ping(ctx context.Context) error
}
