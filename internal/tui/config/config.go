package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"wsoak/internal/config"
	"wsoak/internal/tui/styles"
)

const (
	fieldClients = iota
	fieldDuration
	fieldRequests
	fieldRest
	fieldDeviceID
	fieldClientID
	fieldProvisionURL
)

type Field struct {
	Label string
	Input textinput.Model
}

type Model struct {
	// Config holds the values the form was built from. MonitoredPort is
	// display-only because the sampler is bound at startup.
	Config config.TestConfiguration

	Fields []Field
	Focus  int
	Err    error

	Width  int
	Height int
}

func newInput(placeholder, value string, width int) textinput.Model {
	t := textinput.New()
	t.Placeholder = placeholder
	t.SetValue(value)
	t.Width = width
	return t
}

func NewModel(cfg config.TestConfiguration) Model {
	m := Model{
		Config: cfg,
		Fields: make([]Field, fieldProvisionURL+1),
	}

	m.Fields[fieldClients] = Field{Label: "Clients", Input: newInput("10", strconv.Itoa(cfg.ClientCount), 10)}
	m.Fields[fieldDuration] = Field{Label: "Session duration (s)", Input: newInput("4", strconv.Itoa(cfg.SessionDurationSeconds), 10)}
	m.Fields[fieldRequests] = Field{Label: "Sessions per client per round", Input: newInput("5", strconv.Itoa(cfg.RequestsPerRound), 10)}
	m.Fields[fieldRest] = Field{Label: "Rest between rounds (s)", Input: newInput("5", strconv.Itoa(cfg.RestSeconds), 10)}
	m.Fields[fieldDeviceID] = Field{Label: "Device-Id", Input: newInput("75:9E:6E:61:39:5A", cfg.DeviceID, 30)}
	m.Fields[fieldClientID] = Field{Label: "Client-Id", Input: newInput("web_test_client", cfg.ClientID, 30)}
	m.Fields[fieldProvisionURL] = Field{Label: "Provisioning URL", Input: newInput("http://localhost:8002/xiaozhi/ota/", cfg.ProvisioningURL, 50)}

	m.Fields[0].Input.Focus()
	m.Fields[0].Input.PromptStyle = styles.Active
	m.Fields[0].Input.TextStyle = styles.Active
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "shift+tab", "up", "down":
			s := msg.String()
			if s == "up" || s == "shift+tab" {
				m.Focus--
			} else {
				m.Focus++
			}

			if m.Focus > len(m.Fields)-1 {
				m.Focus = 0
			} else if m.Focus < 0 {
				m.Focus = len(m.Fields) - 1
			}

			for i := range m.Fields {
				if i == m.Focus {
					m.Fields[i].Input.Focus()
					m.Fields[i].Input.PromptStyle = styles.Active
					m.Fields[i].Input.TextStyle = styles.Active
				} else {
					m.Fields[i].Input.Blur()
					m.Fields[i].Input.PromptStyle = lipgloss.NewStyle()
					m.Fields[i].Input.TextStyle = lipgloss.NewStyle()
				}
			}
			return m, nil
		}
	}

	for i := range m.Fields {
		m.Fields[i].Input, cmd = m.Fields[i].Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) intField(i int) (int, error) {
	raw := strings.TrimSpace(m.Fields[i].Input.Value())
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", m.Fields[i].Label, raw)
	}
	return n, nil
}

// GetConfig parses the form into a validated configuration.
func (m Model) GetConfig() (config.TestConfiguration, error) {
	c := m.Config

	var err error
	if c.ClientCount, err = m.intField(fieldClients); err != nil {
		return c, err
	}
	if c.SessionDurationSeconds, err = m.intField(fieldDuration); err != nil {
		return c, err
	}
	if c.RequestsPerRound, err = m.intField(fieldRequests); err != nil {
		return c, err
	}
	if c.RestSeconds, err = m.intField(fieldRest); err != nil {
		return c, err
	}
	c.DeviceID = strings.TrimSpace(m.Fields[fieldDeviceID].Input.Value())
	c.ClientID = strings.TrimSpace(m.Fields[fieldClientID].Input.Value())
	c.ProvisioningURL = strings.TrimSpace(m.Fields[fieldProvisionURL].Input.Value())

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (m Model) View() string {
	s := strings.Builder{}

	s.WriteString(styles.Title.Render("🛠️  Configuration"))
	s.WriteString("\n\n")

	for i := range m.Fields {
		s.WriteString(styles.Subtle.Render(m.Fields[i].Label))
		s.WriteString("\n")
		s.WriteString(m.Fields[i].Input.View())
		s.WriteString("\n\n")
	}

	s.WriteString(styles.Subtle.Render("Monitored port"))
	s.WriteString("\n")
	s.WriteString(styles.Text.Render(fmt.Sprintf("%d", m.Config.MonitoredPort)))
	s.WriteString(styles.Subtle.Render("  (set with --port)"))
	s.WriteString("\n\n")

	if m.Err != nil {
		s.WriteString(styles.Error.Render("⚠ " + m.Err.Error()))
		s.WriteString("\n\n")
	}

	s.WriteString(styles.Active.Render("[Ctrl+R] Start Test"))

	return styles.Box.Render(s.String())
}
