// Package monitor provides a Bubble Tea TUI that watches live shellguard
// sessions.
package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/shellguard/internal/client"
	"github.com/fakeyudi/shellguard/internal/protocol"
)

// refreshInterval is how often the session list is re-fetched.
const refreshInterval = 2 * time.Second

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("82"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	shellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// ── Messages ─────────────────

type tickMsg time.Time

type sessionsMsg struct {
	sessions []protocol.SessionInfo
	err      error
}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the session monitor.
type Model struct {
	client    *client.Client
	sessions  []protocol.SessionInfo
	fetchErr  error
	fetchedAt time.Time
	viewport  viewport.Model
	width     int
	height    int
	ready     bool
}

// New creates a monitor model backed by c.
func New(c *client.Client) Model {
	return Model{client: c}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch, tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		// title(1) + statusBar(1) = 2 fixed rows
		vpHeight := m.height - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		m.viewport = viewport.New(m.width, vpHeight)
		m.viewport.SetContent(m.renderSessions())
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetch, tick())

	case sessionsMsg:
		m.fetchErr = msg.err
		if msg.err == nil {
			m.sessions = msg.sessions
			m.fetchedAt = time.Now()
		}
		if m.ready {
			m.viewport.SetContent(m.renderSessions())
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  shellguard  sessions")

	hint := "  ↑/↓ scroll  r refresh  q quit"
	right := fmt.Sprintf("%d sessions", len(m.sessions))
	if m.fetchErr != nil {
		right = "daemon unreachable"
	} else if !m.fetchedAt.IsZero() {
		right += "  " + m.fetchedAt.Format("15:04:05")
	}
	pad := m.width - lipgloss.Width(hint) - len(right) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(
		hint + strings.Repeat(" ", pad) + right,
	)

	return lipgloss.JoinVertical(lipgloss.Left, title, m.viewport.View(), statusBar)
}

// ── Rendering ─────────────────────────────────────────────────────────────────

func (m *Model) renderSessions() string {
	var sb strings.Builder
	sb.WriteString("\n")

	if m.fetchErr != nil {
		sb.WriteString(failStyle.Render("  daemon unreachable: ") + m.fetchErr.Error() + "\n")
		if len(m.sessions) > 0 {
			sb.WriteString(dimStyle.Render("  showing last known state") + "\n")
		}
		sb.WriteString("\n")
	}

	if len(m.sessions) == 0 {
		sb.WriteString(dimStyle.Render("  (no active sessions)") + "\n")
		return sb.String()
	}

	sb.WriteString(headerStyle.Render(fmt.Sprintf("  %-10s %-6s %-7s %-5s %-9s %-9s %s",
		"SESSION", "SHELL", "PID", "EXIT", "STARTED", "ACTIVE", "CWD")) + "\n\n")

	for _, s := range m.sessions {
		exit := okStyle.Render(fmt.Sprintf("%-5d", s.LastExitCode))
		if s.LastExitCode != 0 {
			exit = failStyle.Render(fmt.Sprintf("%-5d", s.LastExitCode))
		}
		sb.WriteString(fmt.Sprintf("  %-10s %s %-7d %s %s %s %s\n",
			shortID(s.ID),
			shellStyle.Render(fmt.Sprintf("%-6s", s.Shell)),
			s.Pid,
			exit,
			timeStyle.Render(s.CreatedAt.Format("15:04:05")),
			timeStyle.Render(s.LastActivity.Format("15:04:05")),
			s.Cwd,
		))
	}
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ── Commands ──────────────────────────────────────────────────────────────────

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetch() tea.Msg {
	sessions, err := m.client.Sessions()
	return sessionsMsg{sessions: sessions, err: err}
}

// Run starts the monitor TUI against the daemon behind c.
func Run(c *client.Client) error {
	p := tea.NewProgram(New(c), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
