package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"abbas/config"
	"abbas/conversation"
	"abbas/model"
	"abbas/storage"
	"abbas/tools"
)

// AssistantName prefixes assistant lines in the console.
const AssistantName = "Abbas Baszir"

const searchLimit = 20

// Searcher finds stored messages by text.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]storage.MessageMatch, error)
}

// Deps wires a Session.
type Deps struct {
	Conversation  *conversation.Service
	Registry      *tools.Registry
	Search        Searcher
	Tokenizer     model.Tokenizer
	ContextLength int

	// Clipboard defaults to the system clipboard.
	Clipboard func(string) error
}

// Session is one linear console conversation: every post answers the
// newest stored message.
type Session struct {
	deps Deps

	head       *int64
	messages   []model.Message // oldest first
	lastInput  *model.PromptInput
	lastAnswer string
}

func NewSession(deps Deps) *Session {
	if deps.Clipboard == nil {
		deps.Clipboard = clipboard.WriteAll
	}
	return &Session{deps: deps}
}

// Seed stores the opening assistant message.
func (s *Session) Seed(ctx context.Context, text string) (model.Message, error) {
	m, err := s.deps.Conversation.Seed(ctx, text)
	if err != nil {
		return model.Message{}, err
	}
	s.append(m)
	return m, nil
}

// Send posts text as the user and returns the stored answer. A failed
// reply leaves the user message stored and becomes the new head.
func (s *Session) Send(ctx context.Context, text string) (*conversation.Reply, error) {
	posted, err := s.deps.Conversation.Post(ctx, s.head, model.SenderUser, text)
	if err != nil {
		return nil, err
	}
	s.append(posted)

	reply, err := s.deps.Conversation.Reply(ctx, posted.ID)
	if err != nil {
		return nil, err
	}

	for _, m := range model.Reversed(reply.Result.Messages) {
		s.append(m)
	}
	s.append(reply.Message)

	in := reply.Result.Input
	s.lastInput = &in
	s.lastAnswer = reply.Message.Text
	return reply, nil
}

func (s *Session) append(m model.Message) {
	id := m.ID
	s.head = &id
	s.messages = append(s.messages, m)
}

// Messages returns the console conversation, oldest first.
func (s *Session) Messages() []model.Message {
	return append([]model.Message(nil), s.messages...)
}

// IsCommand reports whether line is a console command.
func IsCommand(line string) bool {
	return strings.HasPrefix(line, ":")
}

// Execute runs a console command. quit is set for :exit and its aliases.
func (s *Session) Execute(ctx context.Context, line string) (out string, quit bool) {
	body := strings.TrimSpace(strings.TrimPrefix(line, ":"))
	cmd, rest, _ := strings.Cut(body, " ")
	cmd = strings.ToLower(cmd)
	rest = strings.TrimSpace(rest)

	if config.DebugLog != nil {
		config.DebugLog.Printf("[UI] Command %q", cmd)
	}

	switch cmd {
	case "exit", "quit", "q":
		return "", true
	case "msgs", "messages":
		return s.listMessages(), false
	case "context":
		return s.describeContext(), false
	case "tools":
		return s.listTools(rest), false
	case "search":
		return s.search(ctx, rest), false
	case "copy":
		return s.copyAnswer(), false
	case "help":
		return helpText(), false
	}
	return "Unknown command: " + cmd, false
}

func (s *Session) listMessages() string {
	if len(s.messages) == 0 {
		return "No messages yet."
	}
	lines := make([]string, len(s.messages))
	for i, m := range s.messages {
		lines[i] = m.String()
		for _, tc := range m.ToolCalls {
			lines[i] += fmt.Sprintf("\n    %s -> %q", tc.CallExpression(), tc.Result)
		}
	}
	return strings.Join(lines, "\n")
}

func (s *Session) describeContext() string {
	if s.lastInput == nil {
		return "No context yet."
	}
	in := *s.lastInput

	var b strings.Builder
	fmt.Fprintf(&b, "prompt_template: %q\n", in.PromptTemplate)
	fmt.Fprintf(&b, "prompt: %q\n", in.Prompt)
	fmt.Fprintf(&b, "max_tokens: %d\n", in.MaxTokens)
	fmt.Fprintf(&b, "temperature: %.4f\n", in.Temperature)
	if in.PresencePenalty != nil {
		fmt.Fprintf(&b, "presence_penalty: %.2f\n", *in.PresencePenalty)
	}
	if in.FrequencyPenalty != nil {
		fmt.Fprintf(&b, "frequency_penalty: %.2f\n", *in.FrequencyPenalty)
	}
	if s.deps.Tokenizer != nil {
		fmt.Fprintf(&b, "Context length: %d/%d", s.deps.Tokenizer.Count(in.Prompt), s.deps.ContextLength)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Session) listTools(filter string) string {
	if s.deps.Registry == nil || s.deps.Registry.Len() == 0 {
		return "No tools loaded."
	}
	defs := s.deps.Registry.List()

	if filter != "" {
		names := make([]string, len(defs))
		for i, d := range defs {
			names[i] = d.Name
		}
		matches := fuzzy.Find(filter, names)
		if len(matches) == 0 {
			return fmt.Sprintf("No tools match %q.", filter)
		}
		filtered := make([]tools.Definition, len(matches))
		for i, match := range matches {
			filtered[i] = defs[match.Index]
		}
		defs = filtered
	}

	width := 0
	for _, d := range defs {
		if w := runewidth.StringWidth(d.Signature()); w > width {
			width = w
		}
	}

	lines := make([]string, len(defs))
	for i, d := range defs {
		desc := d.Description
		if desc == "" {
			desc = tools.DefaultDescription
		}
		lines[i] = fmt.Sprintf("%s  [%s]  %s", runewidth.FillRight(d.Signature(), width), d.Mode, desc)
	}
	return strings.Join(lines, "\n")
}

func (s *Session) search(ctx context.Context, query string) string {
	if query == "" {
		return "Usage: :search TEXT"
	}
	if s.deps.Search == nil {
		return "Search is not available."
	}
	matches, err := s.deps.Search.Search(ctx, query, searchLimit)
	if err != nil {
		return "Error: " + err.Error()
	}
	if len(matches) == 0 {
		return "No matches."
	}
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = fmt.Sprintf("#%d %s: %s", m.ID, m.Sender, m.Preview)
	}
	return strings.Join(lines, "\n")
}

func (s *Session) copyAnswer() string {
	if s.lastAnswer == "" {
		return "Nothing to copy."
	}
	if err := s.deps.Clipboard(s.lastAnswer); err != nil {
		return "Error: " + err.Error()
	}
	return "Copied last answer."
}

func helpText() string {
	return strings.Join([]string{
		":exit, :quit, :q     Leave the console",
		":msgs, :messages     Show the messages of this conversation",
		":context             Show the last prompt sent to the model",
		":tools [filter]      List loaded tools",
		":search TEXT         Search stored messages",
		":copy                Copy the last answer to the clipboard",
		":help                Show this help",
	}, "\n")
}
