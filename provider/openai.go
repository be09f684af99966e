package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"abbas/config"
	"abbas/model"
)

const (
	defaultOpenAIURL       = "https://api.openai.com/v1"
	defaultOpenAIModel     = "gpt-3.5-turbo-instruct"
	defaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "meta-llama/llama-3-70b-instruct"
)

// OpenAIProvider completes raw prompts through the legacy completions
// endpoint of an OpenAI-compatible service.
type OpenAIProvider struct {
	client openai.Client
	model  string
	name   string
}

// NewOpenAIProvider creates a provider for the OpenAI API.
// Returns an error if the API key is missing.
func NewOpenAIProvider(baseURL, apiKey, model string, httpClient *http.Client) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return newCompletionsProvider("OpenAI", baseURL, apiKey, model, httpClient)
}

// NewOpenRouterProvider creates a provider for OpenRouter, which speaks the
// OpenAI protocol.
func NewOpenRouterProvider(baseURL, apiKey, model string, httpClient *http.Client) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = defaultOpenRouterURL
	}
	if model == "" {
		model = defaultOpenRouterModel
	}
	return newCompletionsProvider("OpenRouter", baseURL, apiKey, model, httpClient)
}

func newCompletionsProvider(name, baseURL, apiKey, model string, httpClient *http.Client) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required", name)
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
		name:   name,
	}, nil
}

// Complete implements model.InferenceClient. Each streamed choice delta is
// one token of the result.
func (p *OpenAIProvider) Complete(ctx context.Context, in model.PromptInput) ([]string, error) {
	params := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(p.model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(in.Render()),
		},
		Temperature: openai.Float(in.Temperature),
	}
	if in.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(in.MaxTokens))
	}
	if in.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*in.PresencePenalty)
	}
	if in.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*in.FrequencyPenalty)
	}

	stream := p.client.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var tokens []string
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Text != "" {
			tokens = append(tokens, chunk.Choices[0].Text)
		}
	}

	if err := stream.Err(); err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[%s] Streaming error: %v", p.name, err)
		}
		return nil, classify(err, in, isOpenAIModelError(err))
	}
	return tokens, nil
}

func isOpenAIModelError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

func (p *OpenAIProvider) GetModel() string {
	return p.model
}

func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// Ping implements Provider.Ping by attempting to list models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("%s ping failed: %w", p.name, err)
	}
	return nil
}
