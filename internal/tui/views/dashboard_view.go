package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wsoak/internal/config"
	"wsoak/internal/events"
	"wsoak/internal/stats"
	"wsoak/internal/tui/live"
	"wsoak/internal/tui/styles"
)

// maxLogLines bounds the scrollback kept in the log pane.
const maxLogLines = 500

type DashboardView struct {
	Stats  stats.Snapshot
	Errors []stats.ErrorCount
	Live   live.Model
	Logs   viewport.Model
	Config config.TestConfiguration

	Running   bool
	StartTime time.Time

	lines []string

	Width  int
	Height int
}

func NewDashboardView(cfg config.TestConfiguration, width, height int) DashboardView {
	m := DashboardView{
		Live:   live.NewModel(cfg.MonitoredPort, cfg.ClientCount),
		Logs:   viewport.New(width-6, logHeight(height)),
		Config: cfg,
		Width:  width,
		Height: height,
	}
	return m
}

func logHeight(height int) int {
	h := height / 3
	if h < 5 {
		h = 5
	}
	return h
}

func (m DashboardView) Init() tea.Cmd {
	return nil
}

// Begin resets the view for a new run with cfg.
func (m *DashboardView) Begin(cfg config.TestConfiguration) {
	samples := m.Live.Samples
	m.Config = cfg
	m.Stats = stats.Snapshot{}
	m.Errors = nil
	m.Live = live.NewModel(cfg.MonitoredPort, cfg.ClientCount)
	m.Live, _ = m.Live.Update(tea.WindowSizeMsg{Width: m.Width, Height: m.Height})
	m.Live, _ = m.Live.Update(live.ResourceMsg(samples))
	m.Running = true
	m.StartTime = time.Now()
}

// AppendLog adds one event line to the log pane and follows the tail.
func (m *DashboardView) AppendLog(e events.Event) {
	line := fmt.Sprintf("%s %s %s",
		styles.Subtle.Render(e.Time.Format("15:04:05")),
		styles.Level(e.Level.String()).Render(fmt.Sprintf("%-7s", e.Level)),
		e.Message,
	)
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	atBottom := m.Logs.AtBottom()
	m.Logs.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.Logs.GotoBottom()
	}
}

func (m DashboardView) LogLines() int {
	return len(m.lines)
}

func (m DashboardView) Update(msg tea.Msg) (DashboardView, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case stats.Snapshot:
		m.Stats = msg
		m.Live, cmd = m.Live.Update(msg)
		cmds = append(cmds, cmd)

	case live.ResourceMsg:
		m.Live, cmd = m.Live.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Logs.Width = msg.Width - 6
		m.Logs.Height = logHeight(msg.Height)
		m.Live, cmd = m.Live.Update(msg)
		cmds = append(cmds, cmd)

	default:
		m.Live, cmd = m.Live.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.Logs, cmd = m.Logs.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m DashboardView) View() string {
	s := strings.Builder{}

	state := styles.Subtle.Render("[Idle]")
	elapsed := ""
	if m.Running {
		state = lipgloss.NewStyle().Foreground(styles.ColorPrimary).Bold(true).Render(fmt.Sprintf("[Round %d]", m.Stats.Round))
		elapsed = time.Since(m.StartTime).Round(time.Second).String()
	} else if m.Stats.Inflight > 0 {
		state = styles.Warn.Render(fmt.Sprintf("[Draining %d]", m.Stats.Inflight))
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		styles.Title.Render("⚡ Soak Test"),
		lipgloss.NewStyle().MarginLeft(2).Foreground(styles.ColorSubtle).Render(elapsed),
		lipgloss.NewStyle().MarginLeft(4).Render(state),
	)
	s.WriteString(header)
	s.WriteString("\n\n")

	// Row 1: volume
	row1 := lipgloss.JoinHorizontal(lipgloss.Top,
		MakeCard("Sessions", styles.Value.Render(fmt.Sprintf("%d", m.Stats.Sessions))),
		MakeCard("Active", styles.Active.Render(fmt.Sprintf("%d / %d", m.Stats.Inflight, m.Config.ClientCount))),
		MakeCard("Rounds done", styles.Value.Render(fmt.Sprintf("%d", m.Stats.Rounds))),
		MakeCard("Messages", styles.Value.Render(fmt.Sprintf("%d", m.Stats.Messages))),
	)
	s.WriteString(row1)
	s.WriteString("\n")

	// Row 2: session times
	row2 := lipgloss.JoinHorizontal(lipgloss.Top,
		MakeCard("P50 Session", styles.Text.Render(fmt.Sprintf("%.0f ms", m.Stats.P50SessionMs))),
		MakeCard("P99 Session", styles.Warn.Render(fmt.Sprintf("%.0f ms", m.Stats.P99SessionMs))),
		MakeCard("P50 Handshake", styles.Text.Render(fmt.Sprintf("%.1f ms", m.Stats.P50HandshakeMs))),
		MakeCard("Msgs/Session", styles.Text.Render(fmt.Sprintf("%.1f", m.Stats.MeanMessages))),
	)
	s.WriteString(row2)
	s.WriteString("\n")

	errColor := styles.Text
	if m.Stats.Fail > 0 {
		errColor = styles.Error
	}
	row3 := lipgloss.JoinHorizontal(lipgloss.Top,
		MakeCard("Success", styles.Success.Render(fmt.Sprintf("%d", m.Stats.Success))),
		MakeCard("Failures", errColor.Render(fmt.Sprintf("%d", m.Stats.Fail))),
		MakeCard("Error rate", errColor.Render(fmt.Sprintf("%.2f%%", m.Stats.ErrorRate))),
	)
	s.WriteString(row3)
	s.WriteString("\n")

	if len(m.Errors) > 0 {
		s.WriteString(styles.Subtle.Render("Failure Details"))
		s.WriteString("\n")
		for _, e := range m.Errors {
			reason := e.Reason
			if len(reason) > 60 {
				reason = reason[:57] + "..."
			}
			s.WriteString(fmt.Sprintf("%s %s\n", styles.Error.Render(fmt.Sprintf("%d x", e.Count)), reason))
		}
	}
	s.WriteString("\n")

	s.WriteString(styles.Box.Render(m.Live.ResourceView()))
	s.WriteString("\n\n")

	s.WriteString(styles.Subtle.Render(fmt.Sprintf("Log (%d lines)", len(m.lines))))
	s.WriteString("\n")
	s.WriteString(m.Logs.View())

	return s.String()
}

func MakeCard(title, value string) string {
	return styles.Box.Width(18).Align(lipgloss.Center).Render(
		fmt.Sprintf("%s\n%s", styles.Subtle.Render(title), value),
	)
}
