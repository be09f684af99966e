package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Well-known senders. Any other sender is a platform username and is
// rendered verbatim as the turn role.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
	SenderSystem    = "system"
)

// Message is a single turn in the conversation forest. Parent links a
// message to the turn it answers; nil marks a root.
type Message struct {
	ID        int64
	Parent    *int64
	Sender    string
	Text      string
	ToolCalls []ToolCall
}

// ToolCall records one tool invocation spoken by a message.
type ToolCall struct {
	ID         string
	Name       string
	Expression string // literal call body as emitted by the model
	Arguments  Arguments
	Result     string
}

// Argument is a single named scalar argument of a tool call.
type Argument struct {
	Name  string
	Value any
}

// Arguments keeps tool-call arguments in declaration order.
type Arguments []Argument

// Map returns the arguments keyed by parameter name.
func (a Arguments) Map() map[string]any {
	m := make(map[string]any, len(a))
	for _, arg := range a {
		m[arg.Name] = arg.Value
	}
	return m
}

// Get returns the value bound to name.
func (a Arguments) Get(name string) (any, bool) {
	for _, arg := range a {
		if arg.Name == name {
			return arg.Value, true
		}
	}
	return nil, false
}

// HasToolCall reports whether the message carries a tool invocation.
func (m Message) HasToolCall() bool {
	return len(m.ToolCalls) > 0
}

// ParentID returns the parent id, or 0 for roots.
func (m Message) ParentID() int64 {
	if m.Parent == nil {
		return 0
	}
	return *m.Parent
}

func (m Message) String() string {
	parent := "None"
	if m.Parent != nil {
		parent = strconv.FormatInt(*m.Parent, 10)
	}
	return fmt.Sprintf("<Message id=%d, parent=%s, sender=%q, text=%q>", m.ID, parent, m.Sender, m.Text)
}

// CallExpression returns the literal expression of the tool call, rendering
// one from name and arguments when the call was built programmatically.
func (tc ToolCall) CallExpression() string {
	if tc.Expression != "" {
		return tc.Expression
	}
	return FormatCall(tc.Name, tc.Arguments)
}

// FormatCall renders name(k=v, ...) using literal syntax the tool-call
// parser accepts, so the output parses back to the same arguments.
func FormatCall(name string, args Arguments) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, arg := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(arg.Name)
		b.WriteByte('=')
		b.WriteString(FormatLiteral(arg.Value))
	}
	b.WriteByte(')')
	return b.String()
}

// FormatLiteral renders a scalar as a literal constant. Positive infinity
// is written as an overflowing exponent, which parses back to +Inf. NaN and
// negative infinity have no constant form in the call grammar; they render
// as nan and -inf and a call holding them does not parse back.
func FormatLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case string:
		return strconv.Quote(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		switch {
		case math.IsInf(val, 1):
			return "1e999"
		case math.IsInf(val, -1):
			return "-inf"
		case math.IsNaN(val):
			return "nan"
		}
		s := strconv.FormatFloat(val, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Reversed returns a copy of messages in the opposite order.
func Reversed(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[len(messages)-1-i] = m
	}
	return out
}
