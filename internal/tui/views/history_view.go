package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wsoak/internal/runner"
	"wsoak/internal/tui/styles"
)

// RoundLister is the part of the round ledger the view reads.
type RoundLister interface {
	List() []runner.RoundSummary
}

type HistoryView struct {
	Store RoundLister
	Table table.Model

	Width  int
	Height int
}

func NewHistoryView(store RoundLister) HistoryView {
	columns := []table.Column{
		{Title: "Started", Width: 10},
		{Title: "Run", Width: 10},
		{Title: "Round", Width: 6},
		{Title: "Sessions", Width: 9},
		{Title: "OK", Width: 8},
		{Title: "Fail", Width: 8},
		{Title: "Msgs", Width: 10},
		{Title: "Elapsed", Width: 10},
		{Title: "Done", Width: 6},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.ColorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.ColorPrimary)

	s.Selected = s.Selected.
		Foreground(styles.ColorBg).
		Background(styles.ColorPrimary).
		Bold(true)

	t.SetStyles(s)

	m := HistoryView{
		Store: store,
		Table: t,
	}
	m.Refresh()
	return m
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Refresh reloads the ledger, newest round first.
func (m *HistoryView) Refresh() {
	if m.Store == nil {
		return
	}

	items := m.Store.List()
	rows := make([]table.Row, len(items))
	for i, item := range items {
		done := "yes"
		if !item.Completed {
			done = "no"
		}
		rows[i] = table.Row{
			item.Started.Format("15:04:05"),
			shortID(item.RunID),
			fmt.Sprintf("%d", item.Round),
			fmt.Sprintf("%d", item.Sessions),
			fmt.Sprintf("%d", item.Success),
			fmt.Sprintf("%d", item.Failures),
			fmt.Sprintf("%d", item.Messages),
			item.Elapsed.Round(10 * time.Millisecond).String(),
			done,
		}
	}
	m.Table.SetRows(rows)
}

func (m HistoryView) Init() tea.Cmd {
	return nil
}

func (m HistoryView) Update(msg tea.Msg) (HistoryView, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		m.Table.SetHeight(msg.Height - 6)
		m.Refresh()

	case tea.KeyMsg:
		if msg.String() == "ctrl+h" {
			m.Refresh()
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m HistoryView) View() string {
	s := strings.Builder{}
	s.WriteString(styles.Title.Render("📜 Round Ledger"))
	s.WriteString("\n\n")

	if m.Store == nil {
		s.WriteString(styles.Error.Render("Round ledger unavailable."))
		return s.String()
	}
	if len(m.Table.Rows()) == 0 {
		s.WriteString(styles.Subtle.Render("No rounds recorded yet.\nStart a test and let a round finish."))
	} else {
		s.WriteString(styles.Box.Render(m.Table.View()))
	}
	s.WriteString("\n\n")
	s.WriteString(styles.Subtle.Render("[Ctrl+H] Refresh  [↑/↓] Scroll"))
	return s.String()
}
