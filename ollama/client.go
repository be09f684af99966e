package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "llama3:latest"
)

type Client struct {
	client  *api.Client
	model   string
	baseURL string
}

// GenerateOptions are the sampling options of a raw generate request.
// Nil penalties are left to the server defaults.
type GenerateOptions struct {
	Temperature      float64
	NumPredict       int
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

type StreamCallback func(chunk string) error

func NewClient(baseURL, model string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	client := api.NewClient(parsedURL, httpClient)

	return &Client{
		client:  client,
		model:   model,
		baseURL: baseURL,
	}, nil
}

// Generate streams a completion of prompt. The prompt is sent raw, so the
// model's own chat template is not applied on top of it.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions, callback StreamCallback) error {
	req := &api.GenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Raw:     true,
		Stream:  func(b bool) *bool { return &b }(true),
		Options: opts.toMap(),
	}

	respFunc := func(resp api.GenerateResponse) error {
		if callback != nil && resp.Response != "" {
			return callback(resp.Response)
		}
		return nil
	}

	return c.client.Generate(ctx, req, respFunc)
}

func (o GenerateOptions) toMap() map[string]any {
	m := map[string]any{
		"temperature": o.Temperature,
	}
	if o.NumPredict > 0 {
		m["num_predict"] = o.NumPredict
	}
	if o.PresencePenalty != nil {
		m["presence_penalty"] = *o.PresencePenalty
	}
	if o.FrequencyPenalty != nil {
		m["frequency_penalty"] = *o.FrequencyPenalty
	}
	return m
}

func (c *Client) SetModel(model string) {
	c.model = model
}

func (c *Client) GetModel() string {
	return c.model
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.List(ctx)
	return err
}
