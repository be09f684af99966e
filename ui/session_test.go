package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"abbas/conversation"
	"abbas/model"
	"abbas/prompt"
	"abbas/provider/testutil"
	"abbas/responder"
	"abbas/storage"
	"abbas/tokenizer"
	"abbas/tools"
)

type fakeSearch struct {
	matches []storage.MessageMatch
	err     error
	query   string
}

func (f *fakeSearch) Search(_ context.Context, query string, _ int) ([]storage.MessageMatch, error) {
	f.query = query
	return f.matches, f.err
}

func newTestSession(t *testing.T, client model.InferenceClient, deps Deps) (*Session, *testutil.MockStore) {
	t.Helper()

	registry := tools.NewRegistry()
	calculator, err := tools.Builtins()["calculator"](tools.Deps{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(calculator); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(tools.Definition{Name: "weather", Params: []tools.Param{{Name: "city", Kind: "str"}}, Mode: tools.Async}); err != nil {
		t.Fatal(err)
	}

	pool := tools.NewWorkerPool(1, 1)
	t.Cleanup(pool.Close)

	store := testutil.NewMockStore()
	ids := model.NewIDGenerator()
	tok := tokenizer.Estimator{}
	r := responder.New(responder.Config{
		Client:    client,
		Builder:   prompt.NewBuilder(tok, registry, prompt.Options{ContextLength: 2000}),
		Executor:  tools.NewExecutor(registry, pool),
		Tokenizer: tok,
		IDs:       ids,
	})

	deps.Conversation = conversation.New(store, r, ids)
	deps.Registry = registry
	deps.Tokenizer = tok
	deps.ContextLength = 2000
	return NewSession(deps), store
}

func TestSessionSendChainsMessages(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockClient([]string{"Hello", "!"}, []string{"Still here."})
	s, store := newTestSession(t, client, Deps{})

	seed, err := s.Seed(ctx, "Hi, I am Abbas.")
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	first, err := s.Send(ctx, "Hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if first.Message.Text != "Hello!" {
		t.Errorf("first answer = %q, want Hello!", first.Message.Text)
	}

	second, err := s.Send(ctx, "Are you there?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}
	if msgs[0].ID != seed.ID || msgs[0].Parent != nil {
		t.Errorf("first message = %v, want the seed as root", msgs[0])
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Parent == nil || *msgs[i].Parent != msgs[i-1].ID {
			t.Errorf("message %d = %v, want parent %d", i, msgs[i], msgs[i-1].ID)
		}
	}
	if msgs[4].ID != second.Message.ID {
		t.Errorf("last message = %v, want the second answer", msgs[4])
	}
	if len(store.All()) != 5 {
		t.Errorf("store holds %d messages, want 5", len(store.All()))
	}

	// the second prompt carries the whole chain
	inputs := client.Inputs()
	if !strings.Contains(inputs[1].Prompt, "Hi, I am Abbas.") || !strings.Contains(inputs[1].Prompt, "Hello!") {
		t.Errorf("second prompt misses history: %q", inputs[1].Prompt)
	}
}

func TestSessionSendWithToolCall(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockClient(
		testutil.ToolCallTokens("", `calculator("6*7")`),
		[]string{"42."},
	)
	s, _ := newTestSession(t, client, Deps{})

	reply, err := s.Send(ctx, "What is 6*7?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Message.Text != "42." {
		t.Errorf("answer = %q", reply.Message.Text)
	}

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want user, tool call and answer", len(msgs))
	}
	if !msgs[1].HasToolCall() || msgs[1].ToolCalls[0].Result != "42" {
		t.Errorf("tool message = %+v", msgs[1])
	}

	out, _ := s.Execute(ctx, ":msgs")
	if !strings.Contains(out, `calculator("6*7") -> "42"`) {
		t.Errorf(":msgs output misses the tool call:\n%s", out)
	}
}

func TestSessionSendFailure(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewFailingClient(&model.InferenceError{Kind: model.ModelError, Message: "model not found"})
	s, store := newTestSession(t, client, Deps{})

	_, err := s.Send(ctx, "Hello")
	var ierr *model.InferenceError
	if !errors.As(err, &ierr) {
		t.Fatalf("Send() error = %v, want an InferenceError", err)
	}

	// the question stays; no answer is stored
	if len(store.All()) != 1 || len(s.Messages()) != 1 {
		t.Errorf("stored %d, session %d; want only the question", len(store.All()), len(s.Messages()))
	}
	if out, _ := s.Execute(ctx, ":context"); out != "No context yet." {
		t.Errorf(":context = %q", out)
	}
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	var copied string
	search := &fakeSearch{matches: []storage.MessageMatch{{ID: 7, Sender: "user", Preview: "weather in Warsaw"}}}
	s, _ := newTestSession(t, testutil.NewMockClient([]string{"Sunny."}), Deps{
		Search:    search,
		Clipboard: func(text string) error { copied = text; return nil },
	})

	if out, _ := s.Execute(ctx, ":copy"); out != "Nothing to copy." {
		t.Errorf(":copy before any answer = %q", out)
	}
	if out, _ := s.Execute(ctx, ":msgs"); out != "No messages yet." {
		t.Errorf(":msgs before any message = %q", out)
	}
	if _, err := s.Send(ctx, "Weather?"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		line     string
		contains []string
		excludes []string
		quit     bool
	}{
		{line: ":exit", quit: true},
		{line: ":quit", quit: true},
		{line: ":Q", quit: true},
		{line: ":msgs", contains: []string{`sender="user", text="Weather?"`, `text="Sunny."`}},
		{line: ":messages", contains: []string{"<Message id="}},
		{line: ":context", contains: []string{"temperature: 0.81", "max_tokens: 150", "Context length: ", "/2000"}},
		{line: ":tools", contains: []string{"calculator(query: str)", "[sync]", "weather(city: str)", "[async]", tools.DefaultDescription}},
		{line: ":tools wthr", contains: []string{"weather(city: str)"}, excludes: []string{"calculator"}},
		{line: ":tools zzz", contains: []string{`No tools match "zzz".`}},
		{line: ":search warsaw", contains: []string{"#7 user: weather in Warsaw"}},
		{line: ":search", contains: []string{"Usage: :search TEXT"}},
		{line: ":copy", contains: []string{"Copied last answer."}},
		{line: ":help", contains: []string{":tools [filter]", ":search TEXT"}},
		{line: ":bp", contains: []string{"Unknown command: bp"}},
		{line: ":", contains: []string{"Unknown command: "}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out, quit := s.Execute(ctx, tt.line)
			if quit != tt.quit {
				t.Errorf("quit = %v, want %v", quit, tt.quit)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output misses %q:\n%s", want, out)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(out, unwanted) {
					t.Errorf("output has %q:\n%s", unwanted, out)
				}
			}
		})
	}

	if copied != "Sunny." {
		t.Errorf("clipboard = %q, want Sunny.", copied)
	}
	if search.query != "warsaw" {
		t.Errorf("search query = %q, want warsaw", search.query)
	}
}

func TestExecuteErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, testutil.NewMockClient([]string{"Ok."}), Deps{
		Search:    &fakeSearch{err: fmt.Errorf("database is locked")},
		Clipboard: func(string) error { return errors.New("no clipboard utility") },
	})
	if _, err := s.Send(ctx, "hi"); err != nil {
		t.Fatal(err)
	}

	if out, _ := s.Execute(ctx, ":search x"); out != "Error: database is locked" {
		t.Errorf(":search = %q", out)
	}
	if out, _ := s.Execute(ctx, ":copy"); out != "Error: no clipboard utility" {
		t.Errorf(":copy = %q", out)
	}
}

func TestAppViewCommands(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, testutil.NewMockClient([]string{"Ok."}), Deps{})
	var m tea.Model = NewAppView(ctx, s, "", false)

	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	app := m.(AppView)
	app.input.SetValue(":help")
	m, _ = app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(m.View(), ":copy") {
		t.Errorf("help output missing from view:\n%s", m.View())
	}

	app = m.(AppView)
	app.input.SetValue(":q")
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error(":q did not quit")
	}
}

func TestAppViewSend(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, testutil.NewMockClient([]string{"**Bold** answer"}), Deps{})
	var m tea.Model = NewAppView(ctx, s, "", false)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	app := m.(AppView)
	app.input.SetValue("question")
	m, _ = app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app = m.(AppView)
	if !app.busy {
		t.Fatal("expected the view to wait for a reply")
	}

	// run the send command directly
	msg := app.send("question")()
	m, _ = app.Update(msg)
	app = m.(AppView)
	if app.busy {
		t.Error("still busy after the reply")
	}
	if !strings.Contains(app.transcript(), "answer") {
		t.Errorf("transcript misses the answer:\n%s", app.transcript())
	}
}
