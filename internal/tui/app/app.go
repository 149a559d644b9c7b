package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wsoak/internal/events"
	"wsoak/internal/harness"
	"wsoak/internal/runner"
	"wsoak/internal/stats"
	tuiconfig "wsoak/internal/tui/config"
	"wsoak/internal/tui/live"
	"wsoak/internal/tui/styles"
	"wsoak/internal/tui/views"
)

const (
	// TickInterval is how often stats and resource samples reach the UI.
	TickInterval = 250 * time.Millisecond
	logBuffer    = 1024
)

type ClearStatusMsg struct{}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(_ time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

// View Enum
type ViewID int

const (
	ViewConfig ViewID = iota
	ViewDashboard
	ViewHistory
)

type StatsMsg stats.Snapshot

type LogMsg events.Event

// LogChannel is an events.Sink that hands events to the UI. Events are
// dropped when the UI falls behind so the pump never blocks.
type LogChannel chan events.Event

func (c LogChannel) HandleLog(e events.Event) {
	select {
	case c <- e:
	default:
	}
}

type Model struct {
	Harness *harness.Harness
	Updates stats.UpdateChan
	Logs    LogChannel

	RunActive bool

	// Layout
	Width  int
	Height int

	CurrentView ViewID
	MenuItems   []string

	ConfigView  tuiconfig.Model
	DashView    views.DashboardView
	HistoryView views.HistoryView

	// Feedback
	StatusMsg string
}

func NewModel(h *harness.Harness, updates stats.UpdateChan, logs LogChannel) Model {
	var ledger views.RoundLister
	if h.Store != nil {
		ledger = h.Store
	}
	return Model{
		Harness:     h,
		Updates:     updates,
		Logs:        logs,
		CurrentView: ViewConfig,
		MenuItems:   []string{"[1] Configure", "[2] Dashboard", "[3] Rounds"},
		ConfigView:  tuiconfig.NewModel(h.Config),
		DashView:    views.NewDashboardView(h.Config, 80, 24),
		HistoryView: views.NewHistoryView(ledger),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.ConfigView.Init(),
		waitForUpdate(m.Updates),
		waitForLog(m.Logs),
	)
}

func waitForUpdate(sub stats.UpdateChan) tea.Cmd {
	return func() tea.Msg {
		return StatsMsg(<-sub)
	}
}

func waitForLog(sub LogChannel) tea.Cmd {
	return func() tea.Msg {
		return LogMsg(<-sub)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ClearStatusMsg:
		m.StatusMsg = ""
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			m.Harness.Controller.Stop()
			return m, tea.Quit

		case "ctrl+d":
			m.CurrentView = ViewDashboard
			return m, nil

		case "ctrl+h":
			m.HistoryView.Refresh()
			m.CurrentView = ViewHistory
			return m, nil

		case "ctrl+right":
			m.CurrentView++
			if m.CurrentView > ViewHistory {
				m.CurrentView = ViewConfig
			}
			m.HistoryView.Refresh()
			return m, nil
		case "ctrl+left":
			m.CurrentView--
			if m.CurrentView < ViewConfig {
				m.CurrentView = ViewHistory
			}
			m.HistoryView.Refresh()
			return m, nil

		case "ctrl+r":
			return m, m.startRun()

		case "ctrl+s":
			if m.Harness.Controller.Stop() {
				m.DashView.Running = false
				m.StatusMsg = "Stopping: waiting for in-flight sessions."
				return m, clearStatusCmd()
			}
			return m, nil

		case "ctrl+p":
			m.StatusMsg = m.exportLedger()
			return m, clearStatusCmd()
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		content := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 7}

		m.ConfigView.Width = content.Width
		m.ConfigView.Height = content.Height

		var c tea.Cmd
		m.DashView, c = m.DashView.Update(content)
		cmds = append(cmds, c)
		m.HistoryView, c = m.HistoryView.Update(content)
		cmds = append(cmds, c)
		return m, tea.Batch(cmds...)

	case StatsMsg:
		var c tea.Cmd
		m.DashView, c = m.DashView.Update(stats.Snapshot(msg))
		cmds = append(cmds, c)
		m.DashView, c = m.DashView.Update(live.ResourceMsg(m.Harness.Sampler.History.Snapshot()))
		cmds = append(cmds, c)
		m.DashView.Errors = m.Harness.Stats.GetErrorCounts()

		if m.RunActive {
			cmds = append(cmds, m.checkRunEnded())
		}
		cmds = append(cmds, waitForUpdate(m.Updates))
		return m, tea.Batch(cmds...)

	case LogMsg:
		m.DashView.AppendLog(events.Event(msg))
		return m, waitForLog(m.Logs)
	}

	// Forward everything else (keys, blink, progress frames) to the active view.
	var defaultCmd tea.Cmd
	switch m.CurrentView {
	case ViewConfig:
		m.ConfigView, defaultCmd = m.ConfigView.Update(msg)
	case ViewDashboard:
		m.DashView, defaultCmd = m.DashView.Update(msg)
	case ViewHistory:
		m.HistoryView, defaultCmd = m.HistoryView.Update(msg)
	}
	cmds = append(cmds, defaultCmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) startRun() tea.Cmd {
	cfg, err := m.ConfigView.GetConfig()
	m.ConfigView.Err = err
	if err != nil {
		m.CurrentView = ViewConfig
		return nil
	}

	if m.Harness.Controller.Running() {
		m.StatusMsg = "A test is already running. Stop it first with Ctrl+S."
		return clearStatusCmd()
	}

	if err := m.Harness.Start(context.Background(), &cfg); err != nil {
		if errors.Is(err, runner.ErrAlreadyRunning) {
			m.StatusMsg = "A test is already running. Stop it first with Ctrl+S."
		} else {
			m.StatusMsg = fmt.Sprintf("Cannot start: %v", err)
		}
		return clearStatusCmd()
	}

	m.RunActive = true
	m.DashView.Begin(cfg)
	m.CurrentView = ViewDashboard
	return nil
}

// checkRunEnded notices a run whose scheduler has returned, either after a
// stop or because provisioning failed.
func (m *Model) checkRunEnded() tea.Cmd {
	state := m.Harness.Controller.Current()
	if state == nil {
		return nil
	}
	select {
	case <-state.Done():
	default:
		return nil
	}

	m.RunActive = false
	m.DashView.Running = false
	m.HistoryView.Refresh()
	if err := m.Harness.Controller.Wait(); err != nil {
		m.StatusMsg = fmt.Sprintf("Test aborted: %v", err)
	} else {
		m.StatusMsg = "Test stopped."
	}
	return clearStatusCmd()
}

func (m Model) exportLedger() string {
	if m.Harness.Store == nil {
		return "Round ledger unavailable, nothing to export."
	}
	rounds := m.Harness.Store.List()
	if len(rounds) == 0 {
		return "No rounds to export yet."
	}
	base := fmt.Sprintf("wsoak_rounds_%s", time.Now().Format("20060102-150405"))
	if err := ExportCSV(rounds, base+".csv"); err != nil {
		return fmt.Sprintf("Export Failed: %v", err)
	}
	if err := ExportJSON(rounds, base+".json"); err != nil {
		return fmt.Sprintf("Export Failed: %v", err)
	}
	return fmt.Sprintf("Exported %d rounds to %s.{csv,json}", len(rounds), base)
}

func (m Model) View() string {
	if m.Width == 0 {
		return "Loading..."
	}

	nav := strings.Builder{}
	for i, item := range m.MenuItems {
		if ViewID(i) == m.CurrentView {
			nav.WriteString(styles.TabActive.Render(item))
		} else {
			nav.WriteString(styles.TabBase.Render(item))
		}
	}
	navBar := styles.FooterBase.Width(m.Width).Render(nav.String())

	contentStr := ""
	switch m.CurrentView {
	case ViewConfig:
		contentStr = m.ConfigView.View()
	case ViewDashboard:
		contentStr = m.DashView.View()
	case ViewHistory:
		contentStr = m.HistoryView.View()
	}

	content := styles.Panel.Width(m.Width - 2).Height(m.Height - 6).Render(contentStr)

	keys1 := []string{
		styles.RenderKey("Ctrl+<->", "View"),
		styles.RenderKey("Tab", "Field"),
		styles.RenderKey("↑/↓", "Scroll"),
	}
	keys2 := []string{
		styles.RenderKey("Ctrl+R", "Run"),
		styles.RenderKey("Ctrl+S", "Stop"),
		styles.RenderKey("Ctrl+P", "Export"),
		styles.RenderKey("Ctrl+Q", "Quit"),
	}
	keys3 := []string{
		styles.RenderKey("Ctrl+D", "Dash"),
		styles.RenderKey("Ctrl+H", "Rounds"),
	}

	helpRow1 := styles.FooterBase.Width(m.Width).Render(strings.Join(keys1, "   "))
	helpRow2 := styles.FooterBase.Width(m.Width).Render(strings.Join(keys2, "   "))
	helpRow3 := styles.FooterBase.Width(m.Width).Render(strings.Join(keys3, "   "))

	footer := lipgloss.JoinVertical(lipgloss.Left, helpRow1, helpRow2, helpRow3)

	if m.StatusMsg != "" {
		status := styles.Box.BorderForeground(styles.ColorHighlight).Render(m.StatusMsg)
		return lipgloss.JoinVertical(lipgloss.Left, navBar, content, status, footer)
	}

	return lipgloss.JoinVertical(lipgloss.Left, navBar, content, footer)
}

// Run starts the background services and blocks in the TUI until the user
// quits or ctx is done.
func Run(ctx context.Context, h *harness.Harness, extra ...events.Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logs := make(LogChannel, logBuffer)
	updates := make(stats.UpdateChan, 1)

	bgDone := make(chan error, 1)
	go func() { bgDone <- h.Background(ctx, append([]events.Sink{logs}, extra...)...) }()
	h.Stats.StartTickLoop(ctx, TickInterval, h.Controller, updates)

	p := tea.NewProgram(NewModel(h, updates, logs), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}

	h.Controller.Stop()
	cancel()
	<-bgDone
	return err
}
