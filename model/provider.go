package model

import (
	"context"
	"fmt"
)

// InferenceClient abstracts the completion transport (Ollama, OpenAI-compatible
// services, Anthropic) behind a single raw-prompt call.
type InferenceClient interface {
	// Complete sends the rendered prompt and returns the generated token
	// sequence. Failures are reported as *InferenceError.
	Complete(ctx context.Context, in PromptInput) ([]string, error)
}

// Tokenizer counts model tokens. Implementations must be safe for
// concurrent use.
type Tokenizer interface {
	Count(text string) int
}

// MessageStore persists the conversation forest.
type MessageStore interface {
	// FetchAncestors returns the chain ending at id, oldest first.
	FetchAncestors(ctx context.Context, id int64) ([]Message, error)
	Insert(ctx context.Context, m Message) error
	InsertMany(ctx context.Context, ms []Message) error
}

// ErrorKind classifies inference failures.
type ErrorKind string

const (
	// ModelError means the model rejected or failed the prediction.
	ModelError ErrorKind = "ModelError"
	// ProviderError means the service or transport failed.
	ProviderError ErrorKind = "ProviderError"
)

// InferenceError is returned when the transport fails. Input is the payload
// that was attempted so callers can retry or inspect it.
type InferenceError struct {
	Kind    ErrorKind
	Message string
	Input   PromptInput
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
