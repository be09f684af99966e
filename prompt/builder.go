// Package prompt assembles conversation history into a token-budgeted
// Llama-3 prompt.
package prompt

import (
	"math/rand/v2"
	"strings"

	"abbas/config"
	"abbas/model"
	"abbas/tools"
)

// Llama-3 header markers.
const (
	BeginOfText = "<|begin_of_text|>"
	StartHeader = "<|start_header_id|>"
	EndHeader   = "<|end_header_id|>"
	EndOfTurn   = "<|eot_id|>"
)

const (
	BaseTemperature = 0.81
	MaxTokens       = 150
)

// DefaultSpecialTriggers switch on special mode when they appear inside an
// *action* span of the first assistant message.
var DefaultSpecialTriggers = []string{"zaposciewa", "zapościewa", "crack", "krock"}

const toolAppendix = "\n\nTool usage:\n" +
	"You have the following tools available:\n" +
	"%s\n" +
	"To use a tool call it as follows:\n" +
	"<|start_tool|>tool_name(parameter=\"value\")<|end_tool|>\n" +
	"Example:\n" +
	"<|start_tool|>calculator(query=\"2+2\")<|end_tool|>"

// Turn renders one chat turn.
func Turn(role, text string) string {
	return StartHeader + role + EndHeader + "\n\n" + text + EndOfTurn
}

// Suffix opens the assistant turn the model completes.
const Suffix = StartHeader + "assistant" + EndHeader + "\n\n"

// Options tune the builder.
type Options struct {
	// ContextLength is the token budget for the whole rendered prompt.
	ContextLength int
	// Heating varies the temperature with conversation length.
	Heating         bool
	SpecialTriggers []string
}

// Builder turns message history into a PromptInput.
type Builder struct {
	tokenizer model.Tokenizer
	registry  *tools.Registry
	opts      Options

	// Uniform returns a value in [0, 1); replaced in tests.
	Uniform func() float64
}

// NewBuilder creates a builder. A nil or empty registry disables the tool
// usage section of the system prompt.
func NewBuilder(tokenizer model.Tokenizer, registry *tools.Registry, opts Options) *Builder {
	if opts.SpecialTriggers == nil {
		opts.SpecialTriggers = DefaultSpecialTriggers
	}
	return &Builder{
		tokenizer: tokenizer,
		registry:  registry,
		opts:      opts,
		Uniform:   rand.Float64,
	}
}

func (b *Builder) ContextLength() int {
	return b.opts.ContextLength
}

// ToolAppendix returns the tool usage section appended to the system
// prompt, or "" when no tools are registered.
func (b *Builder) ToolAppendix() string {
	if b.registry.Len() == 0 {
		return ""
	}
	return strings.Replace(toolAppendix, "%s", b.registry.DescribeAll(), 1)
}

// Build renders messages, newest first, into a prompt. Messages are taken
// newest to oldest until the next one would push the rendered prompt to
// the token budget; that message and everything older are left out. The
// bool reports whether any tool-call turn made it into the window.
func (b *Builder) Build(messages []model.Message, systemPrompt string, contexts []AdditionalContext) (model.PromptInput, bool) {
	prefix := BeginOfText + Turn("system", systemPrompt+b.ToolAppendix())

	var (
		prompt   string
		included int
		hasTool  bool
	)
	for _, msg := range messages {
		var text string
		if msg.HasToolCall() {
			tc := msg.ToolCalls[0]
			text = Turn(msg.Sender, tools.StartMarker+tc.CallExpression()+tools.EndMarker) +
				Turn("system", "Response:\n\n"+tc.Result)
		} else {
			if msg.Text == "" {
				continue
			}
			text = Turn(msg.Sender, msg.Text)
			if msg.Sender != model.SenderAssistant {
				for _, c := range contexts {
					if c.Matches(msg.Text) {
						text = Turn("system", c.Context) + text
					}
				}
			}
		}

		if b.tokenizer.Count(prefix+text+prompt+Suffix) >= b.opts.ContextLength {
			break
		}
		prompt = text + prompt
		included++
		hasTool = hasTool || msg.HasToolCall()
	}

	in := model.PromptInput{
		Prompt:         prompt,
		PromptTemplate: prefix + model.PromptPlaceholder + Suffix,
		MaxTokens:      MaxTokens,
		Temperature:    BaseTemperature,
	}

	if b.opts.Heating {
		if len(messages) > 1 {
			for _, msg := range messages[1:] {
				if msg.Sender == model.SenderAssistant {
					in.Temperature = b.heatUp(in.Temperature, 0.01, 0.02, 1.055)
				}
			}
		}
		if SpecialMode(messages, b.opts.SpecialTriggers) {
			in.Temperature = b.heatUp(in.Temperature, 0.1, 0.2, 9)
			in.PresencePenalty = model.Float(0)
			in.FrequencyPenalty = model.Float(0)
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Prompt] Built window: %d/%d messages, temperature %.4f", included, len(messages), in.Temperature)
	}
	return in, hasTool
}

// heatUp moves t by a random step drawn from [low, low+spread): up, unless
// that would reach ceiling, in which case down.
func (b *Builder) heatUp(t, low, spread, ceiling float64) float64 {
	lvl := low + spread*b.Uniform()
	if t+lvl >= ceiling {
		return t - lvl
	}
	return t + lvl
}

// SpecialMode reports whether the first assistant message, messages being
// newest first, has a trigger inside a *-delimited span.
func SpecialMode(messages []model.Message, triggers []string) bool {
	for _, msg := range messages {
		if msg.Sender != model.SenderAssistant {
			continue
		}
		spans := strings.Split(msg.Text, "*")
		for i := 1; i < len(spans); i += 2 {
			for _, trigger := range triggers {
				if strings.Contains(spans[i], trigger) {
					return true
				}
			}
		}
		return false
	}
	return false
}
