package provider

import (
	"testing"

	"abbas/model"
)

// TestProvidersImplementInterface fails to compile if a provider drops a
// method of the Provider contract.
func TestProvidersImplementInterface(t *testing.T) {
	var _ Provider = (*OllamaProvider)(nil)
	var _ Provider = (*OpenAIProvider)(nil)
	var _ Provider = (*AnthropicProvider)(nil)
	var _ model.InferenceClient = Provider(nil)
}

func TestClassifyKeepsExistingInferenceError(t *testing.T) {
	in := model.PromptInput{Prompt: "p"}
	orig := &model.InferenceError{Kind: model.ModelError, Message: "bad"}

	got := classify(orig, in, false)
	if got != orig {
		t.Errorf("classify() = %v, want the original error", got)
	}
}
