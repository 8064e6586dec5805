package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"supportbot/internal/dialogue"
	"supportbot/internal/domain"
)

// Responder is the TUI-facing subset of the dialogue orchestrator.
type Responder interface {
	Respond(ctx context.Context, state dialogue.State, question string, history []domain.Message, onDelta func(string)) (dialogue.Reply, dialogue.State)
}

type deltaMsg string

type turnDoneMsg struct {
	reply dialogue.Reply
	state dialogue.State
}

// entry is one rendered transcript line. Advisories are shown but never sent back to the model.
type entry struct {
	role     string
	text     string
	advisory bool
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	responder Responder
	brand     string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	state      dialogue.State
	history    []domain.Message
	transcript []entry
	partial    strings.Builder

	busy   bool
	events chan tea.Msg
	cancel context.CancelFunc
	status string
	ready  bool
}

// New creates a chat model for one local conversation.
func New(responder Responder, brand string) *Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask your question here..."
	ti.Focus()
	ti.CharLimit = 4000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return &Model{
		responder: responder,
		brand:     brand,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		status:    "Ask anything about products, policies, or help. Esc cancels, Ctrl+C quits.",
	}
}

// Init starts the cursor blink.
func (m *Model) Init() tea.Cmd { return textinput.Blink }

// Update handles input, window and streaming events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input box, its content line
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th-1)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.abort()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.busy {
				m.abort()
				m.status = "Cancelled."
			}
			return m, nil
		case tea.KeyEnter:
			return m, m.submit()
		}

	case deltaMsg:
		m.partial.WriteString(string(msg))
		m.refresh()
		return m, m.listen()

	case turnDoneMsg:
		m.finish(msg)
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit() tea.Cmd {
	q := strings.TrimSpace(m.input.Value())
	if q == "" || m.busy {
		return nil
	}
	m.input.Reset()
	m.transcript = append(m.transcript, entry{role: domain.RoleUser, text: q})
	m.partial.Reset()
	m.busy = true
	m.status = "Thinking..."

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	events := make(chan tea.Msg, 64)
	m.events = events

	state, history := m.state, m.history
	go func() {
		defer close(events)
		reply, next := m.responder.Respond(ctx, state, q, history, func(d string) {
			select {
			case events <- deltaMsg(d):
			case <-ctx.Done():
			}
		})
		events <- turnDoneMsg{reply: reply, state: next}
	}()

	m.refresh()
	return tea.Batch(m.spinner.Tick, m.listen())
}

// listen waits for the next streaming event of the running turn.
func (m *Model) listen() tea.Cmd {
	events := m.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *Model) finish(done turnDoneMsg) {
	m.busy = false
	m.events = nil
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.partial.Reset()

	reply := done.reply
	m.state = done.state
	m.transcript = append(m.transcript, entry{role: domain.RoleAssistant, text: reply.Text, advisory: reply.Failed})
	m.history = reply.History
	switch {
	case reply.FallbackTriggered:
		m.status = "No answer found. Share your email and question so the team can follow up."
	case m.state.AwaitingFallbackInfo:
		m.status = "Waiting for your email address and question."
	case reply.Failed:
		m.status = "Something went wrong. Your message was not recorded."
	default:
		m.status = "Ready."
	}
	m.refresh()
}

func (m *Model) abort() {
	if m.cancel != nil {
		m.cancel()
	}
}

// View renders header, transcript, input and status.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render(m.brand + ": Customer Support")
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) renderTranscript() string {
	if len(m.transcript) == 0 && !m.busy {
		return hintStyle.Render("No messages yet.")
	}
	width := max(10, m.viewport.Width-2)
	var b strings.Builder
	for _, e := range m.transcript {
		b.WriteString(renderEntry(e, width))
		b.WriteString("\n\n")
	}
	if m.busy && m.partial.Len() > 0 {
		b.WriteString(renderEntry(entry{role: domain.RoleAssistant, text: m.partial.String()}, width))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderEntry(e entry, width int) string {
	switch {
	case e.advisory:
		return advisoryStyle.Width(width).Render("! " + e.text)
	case e.role == domain.RoleUser:
		return userLabelStyle.Render("You") + "\n" + lipgloss.NewStyle().Width(width).Render(e.text)
	default:
		return botLabelStyle.Render("Assistant") + "\n" + lipgloss.NewStyle().Width(width).Render(e.text)
	}
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hintStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	userLabelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botLabelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	advisoryStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	spinnerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
