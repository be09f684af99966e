package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ollama/ollama/api"

	"abbas/config"
	"abbas/model"
	"abbas/ollama"
)

// OllamaProvider completes raw prompts on an Ollama server.
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllamaProvider creates a new Ollama provider instance.
//
// An empty baseURL defaults to "http://localhost:11434" and an empty model
// to ollama.DefaultModel. Returns an error if the baseURL is invalid.
func NewOllamaProvider(baseURL, model string, httpClient *http.Client) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaProvider{
		client: client,
	}, nil
}

// Complete implements model.InferenceClient. Each streamed response chunk
// is one token of the result.
func (p *OllamaProvider) Complete(ctx context.Context, in model.PromptInput) ([]string, error) {
	opts := ollama.GenerateOptions{
		Temperature:      in.Temperature,
		NumPredict:       in.MaxTokens,
		PresencePenalty:  in.PresencePenalty,
		FrequencyPenalty: in.FrequencyPenalty,
	}

	var tokens []string
	err := p.client.Generate(ctx, in.Render(), opts, func(chunk string) error {
		tokens = append(tokens, chunk)
		return nil
	})
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Ollama] Generate failed: %v", err)
		}
		return nil, classify(err, in, isOllamaModelError(err))
	}
	return tokens, nil
}

// isOllamaModelError reports whether the server rejected the model itself.
func isOllamaModelError(err error) bool {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusNotFound
	}
	var statusPtr *api.StatusError
	if errors.As(err, &statusPtr) {
		return statusPtr.StatusCode == http.StatusNotFound
	}
	return false
}

func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

func (p *OllamaProvider) SetModel(model string) {
	p.client.SetModel(model)
}

func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
