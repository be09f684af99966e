package model

import "strings"

// PromptPlaceholder is the substitution point inside PromptInput.PromptTemplate.
const PromptPlaceholder = "{prompt}"

// PromptInput is the exact payload handed to the inference transport.
// Penalties are nil unless explicitly set, so they drop out of the
// serialized form.
type PromptInput struct {
	Prompt           string   `json:"prompt"`
	PromptTemplate   string   `json:"prompt_template"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	Temperature      float64  `json:"temperature,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

// Render substitutes Prompt into PromptTemplate. An empty template renders
// the bare prompt.
func (in PromptInput) Render() string {
	if in.PromptTemplate == "" {
		return in.Prompt
	}
	return strings.Replace(in.PromptTemplate, PromptPlaceholder, in.Prompt, 1)
}

// SplitTemplate returns the text before and after the placeholder.
func (in PromptInput) SplitTemplate() (prefix, suffix string) {
	prefix, suffix, found := strings.Cut(in.PromptTemplate, PromptPlaceholder)
	if !found {
		return in.PromptTemplate, ""
	}
	return prefix, suffix
}

// Float returns a pointer to v, for optional PromptInput fields.
func Float(v float64) *float64 {
	return &v
}
