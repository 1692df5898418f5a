// Package tui is the local terminal console. It drives one terminal
// coordinator from a bubbletea program: a scrollback viewport, a command
// line and a status bar that re-renders liveness every second.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/docker/go-units"

	"github.com/gluk-w/claworc/console/internal/terminal"
	"github.com/gluk-w/claworc/console/internal/termsession"
)

const (
	tickInterval = time.Second
	maxHistory   = 100
	// chrome is the number of rows taken by the status bar and the prompt.
	chrome = 2
)

// Console is the terminal the UI drives. *terminal.Coordinator satisfies it.
type Console interface {
	View() terminal.View
	Updates() <-chan struct{}
	Done() <-chan struct{}
	Submit(ctx context.Context, line string) error
	Interrupt(ctx context.Context) error
	Close()
}

var (
	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#3C3C3C")).
			Padding(0, 1)
	modeLiveStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("#1E1E1E")).
			Background(lipgloss.Color("#5FD75F")).
			Padding(0, 1)
	modeSimStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("#1E1E1E")).
			Background(lipgloss.Color("#87AFFF")).
			Padding(0, 1)
	freshStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F"))
	staleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7AF5F"))
	noneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
)

type (
	viewUpdatedMsg struct{}
	closedMsg      struct{}
	tickMsg        time.Time
	commandDoneMsg struct{ err error }
	interruptMsg   struct{ err error }
)

// Model is the bubbletea model of the console.
type Model struct {
	ctx  context.Context
	term Console
	now  func() time.Time

	viewport viewport.Model
	input    textinput.Model
	ready    bool
	width    int
	height   int

	view   terminal.View
	closed bool

	// pending holds commands not yet handed to the terminal. Only one
	// Submit runs at a time so lines reach the target in order.
	pending []string
	busy    bool

	history    []string
	historyPos int

	lastErr string
}

// NewModel creates the console model for term.
func NewModel(ctx context.Context, term Console) Model {
	ti := textinput.New()
	ti.Prompt = "$ "
	ti.Placeholder = "type a command, or 'help'"
	ti.CharLimit = 4096
	ti.Focus()

	return Model{
		ctx:   ctx,
		term:  term,
		now:   time.Now,
		input: ti,
		view:  term.View(),
	}
}

// Init starts the update listener and the liveness tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForUpdate(m.term), tick())
}

func waitForUpdate(term Console) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-term.Updates():
			return viewUpdatedMsg{}
		case <-term.Done():
			return closedMsg{}
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func submit(ctx context.Context, term Console, line string) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{err: term.Submit(ctx, line)}
	}
}

func interrupt(ctx context.Context, term Console) tea.Cmd {
	return func() tea.Msg {
		return interruptMsg{err: term.Interrupt(ctx)}
	}
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h := max(msg.Height-chrome, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, h)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = h
		}
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 1)
		m.refresh(true)
		return m, nil

	case viewUpdatedMsg:
		m.refresh(false)
		return m, waitForUpdate(m.term)

	case closedMsg:
		m.closed = true
		m.refresh(false)
		return m, tea.Quit

	case tickMsg:
		return m, tick()

	case commandDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.lastErr = describeError(msg.err)
		}
		return m, m.next()

	case interruptMsg:
		if msg.err != nil {
			m.lastErr = describeError(msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+d":
			m.term.Close()
			return m, tea.Quit
		case "ctrl+c":
			m.pending = nil
			return m, interrupt(m.ctx, m.term)
		case "enter":
			line := m.input.Value()
			m.input.Reset()
			m.lastErr = ""
			m.remember(line)
			m.pending = append(m.pending, line)
			return m, m.next()
		case "up":
			m.recall(-1)
			return m, nil
		case "down":
			m.recall(1)
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// next hands the oldest pending command to the terminal unless one is
// already running.
func (m *Model) next() tea.Cmd {
	if m.busy || len(m.pending) == 0 || m.closed {
		return nil
	}
	line := m.pending[0]
	m.pending = m.pending[1:]
	m.busy = true
	return submit(m.ctx, m.term, line)
}

func (m *Model) remember(line string) {
	if strings.TrimSpace(line) != "" {
		if n := len(m.history); n == 0 || m.history[n-1] != line {
			m.history = append(m.history, line)
			if len(m.history) > maxHistory {
				m.history = m.history[len(m.history)-maxHistory:]
			}
		}
	}
	m.historyPos = len(m.history)
}

func (m *Model) recall(delta int) {
	if len(m.history) == 0 {
		return
	}
	m.historyPos = min(max(m.historyPos+delta, 0), len(m.history))
	if m.historyPos == len(m.history) {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.history[m.historyPos])
	m.input.CursorEnd()
}

// refresh re-reads the terminal view. The viewport follows the output unless
// the user scrolled up.
func (m *Model) refresh(force bool) {
	m.view = m.term.View()
	if !m.ready {
		return
	}
	follow := force || m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.view.Scrollback, "\n"))
	if follow {
		m.viewport.GotoBottom()
	}
}

// View renders the console.
func (m Model) View() string {
	if !m.ready {
		return "Starting console..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.statusBar(),
		m.input.View(),
	)
}

func (m Model) statusBar() string {
	now := m.now()
	v := m.view

	mode := modeSimStyle.Render("SIMULATED")
	if v.Mode == termsession.ModeLive {
		mode = modeLiveStyle.Render("LIVE")
	}

	var dot string
	switch termsession.Freshness(now, v.LastActivityAt) {
	case termsession.LivenessFresh:
		dot = freshStyle.Render("●")
	case termsession.LivenessStale:
		dot = staleStyle.Render("●")
	default:
		dot = noneStyle.Render("○")
	}

	name := v.Target.Name
	if name == "" {
		name = v.Target.ID
	}
	info := fmt.Sprintf("%s  %s  %s  %s %s",
		name,
		v.Status,
		units.HumanSize(float64(v.BytesReceived)),
		dot,
		termsession.ActivityAgo(now, v.LastActivityAt),
	)
	if n := len(m.pending); n > 0 || m.busy {
		info += fmt.Sprintf("  queued %d", n)
	}
	if m.lastErr != "" {
		info += "  " + errorStyle.Render(m.lastErr)
	}

	bar := lipgloss.JoinHorizontal(lipgloss.Top, mode, statusBarStyle.Render(info))
	if m.width <= 0 {
		return bar
	}
	if lipgloss.Width(bar) > m.width {
		return ansi.Truncate(bar, m.width, "…")
	}
	if w := m.width - lipgloss.Width(bar); w > 0 {
		bar += statusBarStyle.Render(strings.Repeat(" ", max(w-2, 0)))
	}
	return bar
}

// describeError shortens refusals that the scrollback already explains.
func describeError(err error) string {
	switch {
	case errors.Is(err, termsession.ErrNotConnected):
		return "not connected"
	case errors.Is(err, terminal.ErrClosed):
		return "closed"
	case errors.Is(err, terminal.ErrTargetBusy),
		errors.Is(err, terminal.ErrNoAddress),
		errors.Is(err, terminal.ErrLiveUnavailable),
		errors.Is(err, terminal.ErrAlreadyLive):
		return ""
	default:
		return err.Error()
	}
}

// Run shows the console until the user quits or the terminal closes. The
// terminal is closed on return.
func Run(ctx context.Context, term Console) error {
	defer term.Close()
	p := tea.NewProgram(NewModel(ctx, term), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("console: %w", err)
	}
	log.Printf("[console] terminal %s closed", term.View().ID)
	return nil
}
