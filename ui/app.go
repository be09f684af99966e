// Package ui is the interactive console: a scrolling transcript, an input
// line and the colon commands of the developer console.
package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"abbas/config"
	"abbas/conversation"
	"abbas/model"
)

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryOutput
	entryError
)

type entry struct {
	kind entryKind
	text string
}

type replyMsg struct {
	reply *conversation.Reply
	err   error
}

type seededMsg struct {
	message model.Message
	err     error
}

// AppView is the bubbletea model of the console.
type AppView struct {
	ctx     context.Context
	session *Session

	firstMessage    string
	hasFirstMessage bool

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	entries []entry
	width   int
	height  int
	ready   bool
	busy    bool
}

// NewAppView creates the console. When hasFirstMessage is set the
// assistant opens with firstMessage.
func NewAppView(ctx context.Context, session *Session, firstMessage string, hasFirstMessage bool) AppView {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message or :help"
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = DimStyle

	return AppView{
		ctx:             ctx,
		session:         session,
		firstMessage:    firstMessage,
		hasFirstMessage: hasFirstMessage,
		viewport:        viewport.New(0, 0),
		input:           ti,
		spinner:         sp,
	}
}

func (a AppView) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if a.hasFirstMessage {
		cmds = append(cmds, a.seed())
	}
	return tea.Batch(cmds...)
}

func (a AppView) seed() tea.Cmd {
	session, ctx, text := a.session, a.ctx, a.firstMessage
	return func() tea.Msg {
		m, err := session.Seed(ctx, text)
		return seededMsg{message: m, err: err}
	}
}

func (a AppView) send(text string) tea.Cmd {
	session, ctx := a.session, a.ctx
	return func() tea.Msg {
		reply, err := session.Send(ctx, text)
		return replyMsg{reply: reply, err: err}
	}
}

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-3, 1)
		a.input.Width = max(msg.Width-4, 10)
		a.ready = true
		a.refresh()
		return a, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return a, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			a.viewport, cmd = a.viewport.Update(msg)
			return a, cmd
		case tea.KeyEnter:
			return a.submit()
		}

	case replyMsg:
		a.busy = false
		if msg.err != nil {
			a.addEntry(entryError, "Error: "+msg.err.Error())
		} else {
			a.addEntry(entryAssistant, msg.reply.Message.Text)
		}
		return a, nil

	case seededMsg:
		if msg.err != nil {
			a.addEntry(entryError, "Error: "+msg.err.Error())
		} else {
			a.addEntry(entryAssistant, msg.message.Text)
		}
		return a, nil

	case spinner.TickMsg:
		if !a.busy {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a AppView) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.input.Value())
	if text == "" || a.busy {
		return a, nil
	}
	a.input.Reset()

	if IsCommand(text) {
		out, quit := a.session.Execute(a.ctx, text)
		if quit {
			return a, tea.Quit
		}
		a.addEntry(entryOutput, text+"\n"+out)
		return a, nil
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[UI] Sending %d chars", len(text))
	}
	a.addEntry(entryUser, text)
	a.busy = true
	return a, tea.Batch(a.spinner.Tick, a.send(text))
}

func (a *AppView) addEntry(kind entryKind, text string) {
	a.entries = append(a.entries, entry{kind: kind, text: text})
	a.refresh()
}

func (a *AppView) refresh() {
	if !a.ready {
		return
	}
	a.viewport.SetContent(a.transcript())
	a.viewport.GotoBottom()
}

func (a AppView) transcript() string {
	var b strings.Builder
	for _, e := range a.entries {
		switch e.kind {
		case entryUser:
			b.WriteString(UserStyle.Render("You") + ": " + e.text)
		case entryAssistant:
			b.WriteString(AssistantStyle.Render(AssistantName) + ":\n" + RenderMarkdown(e.text, a.width))
		case entryOutput:
			b.WriteString(DimStyle.Render(e.text))
		case entryError:
			b.WriteString(ErrorStyle.Render(e.text))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func (a AppView) View() string {
	if !a.ready {
		return "Loading..."
	}

	status := StatusStyle.Render(FormatFooter("Enter", "Send", "PgUp/PgDn", "Scroll", ":help", "Commands", "Ctrl+C", "Quit"))
	if a.busy {
		status = a.spinner.View() + " " + StatusStyle.Render("...")
	}
	return a.viewport.View() + "\n" + status + "\n" + a.input.View()
}

// Run starts the console and blocks until the user leaves it.
func Run(ctx context.Context, session *Session, firstMessage string, hasFirstMessage bool) error {
	p := tea.NewProgram(
		NewAppView(ctx, session, firstMessage, hasFirstMessage),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
