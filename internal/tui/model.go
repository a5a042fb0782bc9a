package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/chat"
	"ragchat/internal/domain"
)

// ChatPort is the TUI-facing subset of the chat service.
type ChatPort interface {
	Ask(ctx context.Context, q chat.Question) (chat.Answer, error)
	IngestText(ctx context.Context, text string) (string, int, error)
	Status(ctx context.Context) string
}

type inputMode int

const (
	modeQuestion inputMode = iota
	modeNote
)

// Model is the Bubble Tea model for the interactive chat application.
type Model struct {
	svc       ChatPort
	input     textinput.Model
	viewport  viewport.Model
	modelName string

	useRAG      bool
	topK        int
	mode        inputMode
	showContext bool

	lastQuestion string
	passages     []string
	warning      string
	answer       string

	collStatus string
	status     string
	streaming  bool
	failed     bool
	stream     domain.AnswerStream
	ready      bool
}

// New creates a new TUI model instance.
func New(svc ChatPort, modelName string, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		svc:       svc,
		input:     ti,
		viewport:  vp,
		modelName: modelName,
		useRAG:    true,
		topK:      topK,
		status:    "Ready. Type a question.",
	}
}

type statusMsg string

type answerMsg struct {
	question string
	answer   chat.Answer
	err      error
}

type snapshotMsg struct {
	snap domain.Snapshot
	ok   bool
}

type noteMsg struct {
	path   string
	chunks int
	err    error
}

// Init initializes the model and kicks off the collection status probe.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchStatus())
}

func (m Model) fetchStatus() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return statusMsg(svc.Status(context.Background()))
	}
}

func (m Model) ask(question string) tea.Cmd {
	svc, useRAG, topK := m.svc, m.useRAG, m.topK
	return func() tea.Msg {
		ans, err := svc.Ask(context.Background(), chat.Question{Text: question, UseRAG: useRAG, TopK: topK})
		return answerMsg{question: question, answer: ans, err: err}
	}
}

func (m Model) saveNote(text string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		path, chunks, err := svc.IngestText(context.Background(), text)
		return noteMsg{path: path, chunks: chunks, err: err}
	}
}

func waitForSnapshot(stream domain.AnswerStream) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-stream.Snapshots()
		return snapshotMsg{snap: snap, ok: ok}
	}
}

// Update handles key, window and stream events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 2 + qh + 1 // header + summary, status lines, input frame, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			if m.stream != nil {
				m.stream.Close()
			}
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			return m.submit()
		case "ctrl+r":
			m.useRAG = !m.useRAG
			return m, nil
		case "ctrl+t":
			if m.mode == modeQuestion {
				m.mode = modeNote
				m.input.Placeholder = "Paste text to add to the knowledge base and press Enter"
			} else {
				m.mode = modeQuestion
				m.input.Placeholder = "Type a question and press Enter"
			}
			return m, nil
		case "ctrl+p":
			m.showContext = !m.showContext
			m.viewport.SetContent(m.renderAnswer())
			return m, nil
		case "ctrl+o":
			m.topK = m.topK%10 + 1
			return m, nil
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case statusMsg:
		m.collStatus = string(msg)
		return m, nil

	case answerMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.streaming = true
		m.failed = false
		m.stream = msg.answer.Stream
		m.lastQuestion = msg.question
		m.passages = msg.answer.Passages
		m.warning = msg.answer.Warning
		m.answer = ""
		m.status = fmt.Sprintf("Generating with %s...", m.modelName)
		m.viewport.SetContent(m.renderAnswer())
		return m, waitForSnapshot(m.stream)

	case snapshotMsg:
		if !msg.ok {
			m.streaming = false
			m.stream = nil
			if !m.failed {
				m.status = fmt.Sprintf("Done. Answer for %q", m.lastQuestion)
			}
			return m, nil
		}
		m.answer = msg.snap.Text
		if msg.snap.Err != nil {
			m.failed = true
			m.status = "Generation failed: " + msg.snap.Err.Error()
		}
		m.viewport.SetContent(m.renderAnswer())
		m.viewport.GotoBottom()
		return m, waitForSnapshot(m.stream)

	case noteMsg:
		if msg.err != nil {
			m.status = "Ingest error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Saved %s, ingested %d chunks.", msg.path, msg.chunks)
			return m, m.fetchStatus()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.streaming {
		m.status = "Still generating, please wait."
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		m.status = "Please enter some text first."
		return m, nil
	}
	m.input.Reset()
	if m.mode == modeNote {
		m.status = "Saving and ingesting..."
		return m, m.saveNote(text)
	}
	if m.useRAG {
		m.status = "Searching relevant chunks..."
	} else {
		m.status = "Generating without context..."
	}
	return m, m.ask(text)
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Chat")
	summary := dimStyle.Render(fmt.Sprintf(
		"model %s | RAG %s | top-k %d | %s | ctrl+r rag  ctrl+t mode  ctrl+p context  ctrl+o top-k",
		m.modelName, onOff(m.useRAG), m.topK, m.modeLabel(),
	))
	answer := answerBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	coll := dimStyle.Render(m.collStatus)
	return header + "\n" + summary + "\n" + answer + "\n" + input + "\n" + status + "\n" + coll
}

func (m Model) modeLabel() string {
	if m.mode == modeNote {
		return "add-note mode"
	}
	return "question mode"
}

func (m Model) renderAnswer() string {
	var b strings.Builder
	if m.warning != "" {
		b.WriteString(warnStyle.Render("Warning: "+m.warning) + "\n\n")
	}
	if m.showContext && len(m.passages) > 0 {
		b.WriteString(contextHeaderStyle.Render(fmt.Sprintf("Retrieved context (%d passages):", len(m.passages))) + "\n")
		for i, p := range m.passages {
			snippet := p
			if len(snippet) > 500 {
				snippet = snippet[:500] + "..."
			}
			b.WriteString(dimStyle.Render(fmt.Sprintf("[%d] %s", i+1, snippet)) + "\n")
		}
		b.WriteString("\n")
	}
	if m.answer == "" {
		if m.streaming {
			b.WriteString("...")
		} else if b.Len() == 0 {
			b.WriteString("No answer yet.")
		}
	} else {
		b.WriteString(m.answer)
	}
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

var (
	answerBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	contextHeaderStyle = lipgloss.NewStyle().Bold(true)
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
