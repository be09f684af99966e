package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"abbas/config"
	"abbas/model"
)

const (
	defaultAnthropicURL       = "https://api.anthropic.com"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicProvider runs prompts through the Anthropic Messages API. The
// template prefix becomes the system text and the prompt with the template
// suffix is sent as a single user message.
type AnthropicProvider struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider creates a new Anthropic provider instance.
// Returns an error if the API key is missing.
func NewAnthropicProvider(baseURL, apiKey, model string, httpClient *http.Client) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	anthropicModel := anthropic.ModelClaudeSonnet4_5_20250929
	if model != "" {
		anthropicModel = anthropic.Model(model)
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client: &client,
		model:  anthropicModel,
	}, nil
}

// Complete implements model.InferenceClient. Each text delta is one token
// of the result. Penalties have no Anthropic equivalent and are dropped.
func (p *AnthropicProvider) Complete(ctx context.Context, in model.PromptInput) ([]string, error) {
	system, user := anthropicPrompt(in)

	maxTokens := int64(in.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(clampTemperature(in.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var tokens []string
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					tokens = append(tokens, deltaVariant.Text)
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Anthropic] Streaming error: %v", err)
		}
		return nil, classify(err, in, isAnthropicModelError(err))
	}
	return tokens, nil
}

// anthropicPrompt splits the payload into system text and user content.
func anthropicPrompt(in model.PromptInput) (system, user string) {
	if in.PromptTemplate == "" {
		return "", in.Prompt
	}
	prefix, suffix := in.SplitTemplate()
	return prefix, in.Prompt + suffix
}

// clampTemperature keeps t within the [0, 1] range the API accepts. Heated
// prompts can exceed it.
func clampTemperature(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func isAnthropicModelError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

func (p *AnthropicProvider) GetModel() string {
	return string(p.model)
}

func (p *AnthropicProvider) SetModel(model string) {
	p.model = anthropic.Model(model)
}

// Ping implements Provider.Ping with a minimal request, as Anthropic has
// no health endpoint.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("Anthropic ping failed: %w", err)
	}
	return nil
}
