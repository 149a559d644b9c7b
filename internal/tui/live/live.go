package live

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wsoak/internal/monitor"
	"wsoak/internal/stats"
	"wsoak/internal/tui/components"
	"wsoak/internal/tui/styles"
)

// RecentWindow is how many samples the short-term graphs show.
const RecentWindow = 10

// ResourceMsg carries the sampler history, oldest first.
type ResourceMsg []monitor.Sample

type Model struct {
	Stats    stats.Snapshot
	Progress progress.Model
	Port     int
	Clients  int

	Samples []monitor.Sample

	MemLine       components.Sparkline
	CPULine       components.Sparkline
	RecentMemLine components.Sparkline
	RecentCPULine components.Sparkline

	Width  int
	Height int
}

func NewModel(port, clients int) Model {
	return Model{
		Progress:      progress.New(progress.WithDefaultGradient()),
		Port:          port,
		Clients:       clients,
		MemLine:       components.NewSparkline(monitor.HistorySize, 1, "Memory (MB), full history", styles.Memory),
		CPULine:       components.NewSparkline(monitor.HistorySize, 1, "CPU (%), full history", styles.CPU),
		RecentMemLine: components.NewSparkline(RecentWindow, 1, "Memory, last 10", styles.Memory),
		RecentCPULine: components.NewSparkline(RecentWindow, 1, "CPU, last 10", styles.CPU),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func points(samples []monitor.Sample, value func(monitor.Sample) float64) []components.Point {
	out := make([]components.Point, len(samples))
	for i, s := range samples {
		if !s.Present {
			out[i] = components.Point{Missing: true}
			continue
		}
		out[i] = components.Point{Value: value(s)}
	}
	return out
}

func memory(s monitor.Sample) float64 { return s.MemoryMB }
func cpu(s monitor.Sample) float64 { return s.CPUPercent }

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stats.Snapshot:
		m.Stats = msg
		pct := 0.0
		if m.Clients > 0 {
			pct = float64(msg.Inflight) / float64(m.Clients)
		}
		if pct > 1.0 {
			pct = 1.0
		}
		cmd := m.Progress.SetPercent(pct)
		return m, cmd

	case ResourceMsg:
		m.Samples = msg
		m.MemLine.SetData(points(msg, memory))
		m.CPULine.SetData(points(msg, cpu))

		recent := []monitor.Sample(msg)
		if len(recent) > RecentWindow {
			recent = recent[len(recent)-RecentWindow:]
		}
		m.RecentMemLine.SetData(points(recent, memory))
		m.RecentCPULine.SetData(points(recent, cpu))
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 8

		full := msg.Width - RecentWindow - 16
		if full > monitor.HistorySize {
			full = monitor.HistorySize
		}
		if full < 10 {
			full = 10
		}
		m.MemLine.Width = full
		m.CPULine.Width = full
		m.MemLine.SetData(points(m.Samples, memory))
		m.CPULine.SetData(points(m.Samples, cpu))
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// ResourceView renders the target process panel.
func (m Model) ResourceView() string {
	s := strings.Builder{}
	s.WriteString(styles.Title.Render(fmt.Sprintf("🖥️  Target process on port %d", m.Port)))
	s.WriteString("\n\n")

	if len(m.Samples) == 0 {
		s.WriteString(styles.Subtle.Render("Waiting for the first sample..."))
		return s.String()
	}

	last := m.Samples[len(m.Samples)-1]
	if last.Present {
		s.WriteString(fmt.Sprintf("%s (pid %d)  mem %s  cpu %s",
			styles.Text.Render(last.Name),
			last.PID,
			styles.Memory.Render(fmt.Sprintf("%.1f MB", last.MemoryMB)),
			styles.CPU.Render(fmt.Sprintf("%.1f%%", last.CPUPercent)),
		))
	} else {
		s.WriteString(styles.Error.Render(fmt.Sprintf("process stopped: nothing is listening on port %d", m.Port)))
	}

	var peakMem, peakCPU float64
	for _, smp := range m.Samples {
		if !smp.Present {
			continue
		}
		if smp.MemoryMB > peakMem {
			peakMem = smp.MemoryMB
		}
		if smp.CPUPercent > peakCPU {
			peakCPU = smp.CPUPercent
		}
	}
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render(fmt.Sprintf("peak mem %.1f MB  peak cpu %.1f%%  samples %d", peakMem, peakCPU, len(m.Samples))))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.MemLine.View(), "  ", m.RecentMemLine.View(),
	))
	s.WriteString("\n")
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.CPULine.View(), "  ", m.RecentCPULine.View(),
	))
	return s.String()
}

func (m Model) View() string {
	s := strings.Builder{}

	errColor := styles.Active
	if m.Stats.ErrorRate > 5.0 {
		errColor = styles.Error
	} else if m.Stats.ErrorRate > 1.0 {
		errColor = styles.Warn
	}

	col1 := fmt.Sprintf("ROUND: %d\nACTIVE: %d/%d", m.Stats.Round, m.Stats.Inflight, m.Clients)
	col2 := fmt.Sprintf("OK: %d\nMSGS: %d", m.Stats.Success, m.Stats.Messages)
	col3 := fmt.Sprintf("ERR: %.2f%%\nFAIL: %d", m.Stats.ErrorRate, m.Stats.Fail)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(col2),
		styles.Box.Render(errColor.Render(col3)),
	))
	s.WriteString("\n\n")

	s.WriteString(styles.Box.Render(m.ResourceView()))
	s.WriteString("\n\n")

	s.WriteString(styles.Subtle.Render("clients in a session"))
	s.WriteString("\n")
	s.WriteString(m.Progress.View())

	return s.String()
}
