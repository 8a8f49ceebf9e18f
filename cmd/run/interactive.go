package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	consoleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#666666")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const consoleLines = 10

type keyMap struct {
	Quit  key.Binding
	Pause key.Binding
}

var keys = keyMap{
	Quit:  key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
	Pause: key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "pause frames")),
}

type interactiveModel struct {
	ctx     context.Context
	cfg     *config
	every   time.Duration
	session *session
	err     error
	paused  bool
	lastKey string
}

type loadedMsg struct {
	session *session
	err     error
}

type frameMsg time.Time

func newInteractiveModel(cfg *config, every time.Duration) *interactiveModel {
	return &interactiveModel{ctx: context.Background(), cfg: cfg, every: every}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	// Console output is shown in the view rather than written out.
	s, err := openSession(m.ctx, m.cfg, nil)
	return loadedMsg{session: s, err: err}
}

func (m *interactiveModel) tick() tea.Cmd {
	return tea.Tick(m.every, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			if m.session != nil {
				m.session.close(m.ctx)
			}
			return m, tea.Quit
		case key.Matches(msg, keys.Pause):
			m.paused = !m.paused
			return m, nil
		}
		if m.session != nil {
			m.dispatchKey(msg.String())
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		return m, m.tick()

	case frameMsg:
		if m.session == nil {
			return m, nil
		}
		if !m.paused {
			if err := m.session.window.RunFrame(m.ctx); err != nil {
				m.err = err
			}
		}
		return m, m.tick()
	}
	return m, nil
}

// dispatchKey delivers a press as keydown followed by keyup; terminals
// report no releases.
func (m *interactiveModel) dispatchKey(k string) {
	m.lastKey = k
	doc := m.session.window.Document
	for _, typ := range []string{"keydown", "keyup"} {
		if _, err := doc.DispatchKey(m.ctx, typ, k); err != nil {
			m.err = err
		}
	}
}

func (m *interactiveModel) View() string {
	if m.session == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress esc to quit.", m.err))
		}
		return "Loading guest..."
	}

	s := m.session
	st := s.bridge.Closures().Stats()

	var b strings.Builder
	b.WriteString(titleStyle.Render("WASM Bridge"))
	b.WriteString(" ")
	b.WriteString(m.cfg.source().String())
	b.WriteString("\n\n")

	row := func(label string, v any) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", label)))
		b.WriteString(valueStyle.Render(fmt.Sprint(v)))
		b.WriteString("\n")
	}
	row("frames", s.window.Loop.Frames())
	row("pending", s.window.Loop.Pending())
	row("heap", fmt.Sprintf("%d live / %d slots", s.bridge.Heap().Len(), s.bridge.Heap().Cap()))
	if mem := s.instance.Memory(); mem != nil {
		row("memory", memorySize(mem))
	}
	row("closures", fmt.Sprintf("%d live, %d executing, %d destroyed", st.Live, st.Executing, st.Destroyed))
	if m.lastKey != "" {
		row("last key", m.lastKey)
	}
	if m.paused {
		row("state", "paused")
	}

	lines := s.window.Console.Lines(consoleLines)
	b.WriteString("\n")
	b.WriteString(consoleStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("keys go to the guest • %s • %s",
		helpText(keys.Pause), helpText(keys.Quit))))
	return b.String()
}

func helpText(k key.Binding) string {
	h := k.Help()
	return h.Key + " " + h.Desc
}

func runInteractive(cfg *config) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	every, err := cfg.interval()
	if err != nil {
		return err
	}
	// Logs would corrupt the alternate screen.
	setLoggers(zap.NewNop())

	p := tea.NewProgram(newInteractiveModel(cfg, every), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
