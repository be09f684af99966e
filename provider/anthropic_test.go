package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"abbas/model"
)

const anthropicStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: ping
data: {"type":"ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":3}}

event: message_stop
data: {"type":"message_stop"}

`

func TestAnthropicComplete(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, anthropicStream)
	}))
	defer server.Close()

	p, err := NewAnthropicProvider(server.URL, "test-key", "claude", server.Client())
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}

	in := model.PromptInput{
		Prompt:         "user turn",
		PromptTemplate: "SYSTEM{prompt}ASSISTANT",
		MaxTokens:      150,
		Temperature:    8.8,
	}
	tokens, err := p.Complete(context.Background(), in)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if want := []string{"Hello", " world"}; !reflect.DeepEqual(tokens, want) {
		t.Errorf("tokens = %q, want %q", tokens, want)
	}

	if body["temperature"] != float64(1) {
		t.Errorf("temperature = %v, want clamped to 1", body["temperature"])
	}
	system, _ := body["system"].([]any)
	if len(system) != 1 || system[0].(map[string]any)["text"] != "SYSTEM" {
		t.Errorf("system = %v", body["system"])
	}
}

func TestAnthropicPrompt(t *testing.T) {
	tests := []struct {
		name       string
		in         model.PromptInput
		system     string
		userPrompt string
	}{
		{"no template", model.PromptInput{Prompt: "p"}, "", "p"},
		{"template", model.PromptInput{Prompt: "p", PromptTemplate: "pre{prompt}post"}, "pre", "ppost"},
		{"no placeholder", model.PromptInput{Prompt: "p", PromptTemplate: "pre"}, "pre", "p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, user := anthropicPrompt(tt.in)
			if system != tt.system || user != tt.userPrompt {
				t.Errorf("anthropicPrompt() = (%q, %q), want (%q, %q)", system, user, tt.system, tt.userPrompt)
			}
		})
	}
}

func TestClampTemperature(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-1, 0},
		{0, 0},
		{0.81, 0.81},
		{1, 1},
		{8.8, 1},
	}
	for _, tt := range tests {
		if got := clampTemperature(tt.in); got != tt.want {
			t.Errorf("clampTemperature(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
