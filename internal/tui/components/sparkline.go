package components

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var levels = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// gap marks a sample where the target process was not found.
const gap = "·"

// Point is one sparkline value. Missing points render as a gap so a stopped
// process is visible instead of looking like zero usage.
type Point struct {
	Value   float64
	Missing bool
}

type Sparkline struct {
	Data   []Point
	Width  int
	Height int
	Max    float64
	Style  lipgloss.Style
	Label  string
}

func NewSparkline(width, height int, label string, style lipgloss.Style) Sparkline {
	return Sparkline{
		Width:  width,
		Height: height,
		Label:  label,
		Style:  style,
		Data:   make([]Point, 0, width),
	}
}

func (s *Sparkline) Add(val float64) {
	s.push(Point{Value: val})
}

func (s *Sparkline) AddGap() {
	s.push(Point{Missing: true})
}

// SetData replaces the series, keeping only the last Width points.
func (s *Sparkline) SetData(points []Point) {
	s.Data = s.Data[:0]
	for _, p := range points {
		s.push(p)
	}
}

func (s *Sparkline) push(p Point) {
	s.Data = append(s.Data, p)
	if s.Width > 0 && len(s.Data) > s.Width {
		s.Data = s.Data[len(s.Data)-s.Width:]
	}

	// scale to the visible window
	max := 0.0
	for _, v := range s.Data {
		if !v.Missing && v.Value > max {
			max = v.Value
		}
	}
	s.Max = max
}

func (s Sparkline) View() string {
	if s.Width <= 0 {
		return ""
	}

	out := strings.Builder{}
	out.WriteString(s.Style.Render(s.Label))
	out.WriteString("\n")

	var graph strings.Builder
	for _, v := range s.Data {
		graph.WriteString(glyph(v, s.Max))
	}

	pad := s.Width - len(s.Data)
	if pad > 0 {
		graph.WriteString(strings.Repeat(" ", pad))
	}

	return out.String() + s.Style.Render(graph.String())
}

func glyph(p Point, max float64) string {
	if p.Missing {
		return gap
	}
	if max <= 0 || math.IsNaN(p.Value) {
		return levels[1]
	}
	idx := int(math.Round(p.Value / max * float64(len(levels)-1)))
	if idx < 1 {
		idx = 1
	}
	if idx >= len(levels) {
		idx = len(levels) - 1
	}
	return levels[idx]
}
