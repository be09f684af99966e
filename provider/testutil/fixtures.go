package testutil

import (
	"abbas/model"
)

// TestMessages returns a sample conversation for testing, newest first
func TestMessages() []model.Message {
	first, second := int64(1), int64(2)
	return []model.Message{
		{ID: 3, Parent: &second, Sender: model.SenderUser, Text: "Can you help me with a task?"},
		{ID: 2, Parent: &first, Sender: model.SenderAssistant, Text: "I'm doing well, thank you!"},
		{ID: 1, Sender: model.SenderUser, Text: "Hello, how are you?"},
	}
}

// SingleUserMessage returns a single user message for simple tests
func SingleUserMessage(text string) []model.Message {
	return []model.Message{
		{ID: 1, Sender: model.SenderUser, Text: text},
	}
}

// ToolCallTokens returns a model reply that calls a tool, tokenized the
// way Llama-3 emits the start marker.
func ToolCallTokens(lead, expression string) []string {
	tokens := []string{}
	if lead != "" {
		tokens = append(tokens, lead)
	}
	return append(tokens, "<", "|", "start", "_tool", "|", ">", expression, "<|end_tool|>")
}

// EmptyMessages returns an empty message slice for edge case testing
func EmptyMessages() []model.Message {
	return []model.Message{}
}
