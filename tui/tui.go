package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Station-Manager/serialplot"
)

// MaxDisplayedChannels caps how many channels get a gauge and a plot.
const MaxDisplayedChannels = 5

const (
	gaugeWidth   = 30
	logHeight    = 8
	headerHeight = 6
)

// Controller is the part of *serialplot.Service the UI drives.
type Controller interface {
	Start(cfg serialplot.ConnectionConfig) error
	Stop() error
	Status() serialplot.StatusChanged
	Store() *serialplot.ChannelStore
	NonNumeric() *serialplot.NonNumericLog
}

// Config seeds the model.
type Config struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	// ListPorts defaults to serialplot.AvailablePorts.
	ListPorts func() ([]string, error)
}

// --- MESSAGES ---
type eventMsg serialplot.Event

type closedMsg struct{}

type startedMsg struct{ err error }

type stoppedMsg struct{ err error }

type portsMsg struct {
	ports []string
	err   error
}

// --- MODEL ---
type Model struct {
	ctl         Controller
	events      <-chan serialplot.Event
	listPorts   func() ([]string, error)
	readTimeout time.Duration

	ports   []string
	portIdx int
	baudIdx int

	status   serialplot.StatusChanged
	notice   string
	channels []serialplot.ChannelKey

	gauge   progress.Model
	logView viewport.Model
	width   int
	ready   bool
}

// New builds the model. events is usually ctl's subscription channel.
func New(ctl Controller, events <-chan serialplot.Event, cfg Config) Model {
	if cfg.ListPorts == nil {
		cfg.ListPorts = serialplot.AvailablePorts
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = serialplot.DefaultReadTimeout
	}

	m := Model{
		ctl:         ctl,
		events:      events,
		listPorts:   cfg.ListPorts,
		readTimeout: cfg.ReadTimeout,
		ports:       []string{serialplot.NoPortsAvailable},
		status:      ctl.Status(),
		gauge:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(gaugeWidth), progress.WithoutPercentage()),
		logView:     viewport.New(80, logHeight),
	}
	if cfg.Port != "" {
		m.ports = []string{cfg.Port}
	}
	for i, b := range serialplot.AllowedBaudRates {
		if b.Int() == cfg.BaudRate {
			m.baudIdx = i
		}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), refreshPorts(m.listPorts))
}

func waitForEvent(ch <-chan serialplot.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func refreshPorts(list func() ([]string, error)) tea.Cmd {
	return func() tea.Msg {
		ports, err := list()
		return portsMsg{ports: ports, err: err}
	}
}

// SelectedPort returns the highlighted port.
func (m Model) SelectedPort() string {
	return m.ports[m.portIdx]
}

// SelectedBaudRate returns the highlighted baud rate.
func (m Model) SelectedBaudRate() int {
	return serialplot.AllowedBaudRates[m.baudIdx].Int()
}

func (m Model) connectionConfig() serialplot.ConnectionConfig {
	return serialplot.ConnectionConfig{
		PortName:    m.SelectedPort(),
		BaudRate:    m.SelectedBaudRate(),
		ReadTimeout: m.readTimeout,
	}
}

// --- UPDATE ---
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.logView.Width = msg.Width
		m.logView.Height = max(3, min(logHeight, msg.Height-headerHeight-MaxDisplayedChannels*2))
		m.ready = true
		return m, nil

	case eventMsg:
		m.applyEvent(serialplot.Event(msg))
		return m, waitForEvent(m.events)

	case closedMsg:
		return m, nil

	case startedMsg:
		if msg.err != nil {
			m.notice = "Start failed: " + msg.err.Error()
		}
		return m, nil

	case stoppedMsg:
		if msg.err != nil {
			m.notice = "Stop failed: " + msg.err.Error()
		}
		return m, nil

	case portsMsg:
		m.applyPorts(msg.ports, msg.err)
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		ctl := m.ctl
		return m, func() tea.Msg {
			_ = ctl.Stop()
			return tea.Quit()
		}
	case "p", "tab":
		m.portIdx = (m.portIdx + 1) % len(m.ports)
		m.notice = "Selected Port: " + m.SelectedPort()
	case "P", "shift+tab":
		m.portIdx = (m.portIdx + len(m.ports) - 1) % len(m.ports)
		m.notice = "Selected Port: " + m.SelectedPort()
	case "b":
		m.baudIdx = (m.baudIdx + 1) % len(serialplot.AllowedBaudRates)
		m.notice = fmt.Sprintf("Baud Rate Selected: %d", m.SelectedBaudRate())
	case "B":
		n := len(serialplot.AllowedBaudRates)
		m.baudIdx = (m.baudIdx + n - 1) % n
		m.notice = fmt.Sprintf("Baud Rate Selected: %d", m.SelectedBaudRate())
	case "r":
		return m, refreshPorts(m.listPorts)
	case "s", "enter":
		ctl, cfg := m.ctl, m.connectionConfig()
		m.notice = ""
		return m, func() tea.Msg { return startedMsg{err: ctl.Start(cfg)} }
	case "x":
		ctl := m.ctl
		return m, func() tea.Msg { return stoppedMsg{err: ctl.Stop()} }
	}
	return m, nil
}

func (m *Model) applyPorts(ports []string, err error) {
	current := m.SelectedPort()
	switch {
	case err != nil:
		m.notice = "Port detection failed: " + err.Error()
		return
	case len(ports) == 0:
		m.ports = []string{serialplot.NoPortsAvailable}
		m.portIdx = 0
		m.notice = "No serial ports detected. Refresh to check again."
		return
	}
	m.ports = ports
	m.portIdx = max(0, slices.Index(ports, current))
	m.notice = "Select a serial port to connect."
}

func (m *Model) applyEvent(ev serialplot.Event) {
	switch ev.Kind {
	case serialplot.EventStatusChanged:
		m.status = ev.Status
	case serialplot.EventChannelUpdated:
		key := ev.Channel.Key
		if !slices.Contains(m.channels, key) && len(m.channels) < MaxDisplayedChannels {
			m.channels = append(m.channels, key)
			slices.Sort(m.channels)
		}
	case serialplot.EventNonNumericAppended:
		m.logView.SetContent(m.ctl.NonNumeric().Render())
		m.logView.GotoBottom()
	}
}

// --- VIEW ---
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Serial Plotter"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s   %s %d\n",
		keyStyle.Render("Port:"), m.SelectedPort(),
		keyStyle.Render("Baud:"), m.SelectedBaudRate())
	fmt.Fprintf(&b, "%s %s\n", keyStyle.Render("Status:"), severityStyle(m.status.Severity).Render(m.status.Message))
	if m.notice != "" {
		b.WriteString(helpStyle.Render(m.notice))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if len(m.channels) == 0 {
		b.WriteString(helpStyle.Render("Waiting for numeric data..."))
		b.WriteByte('\n')
	}
	store := m.ctl.Store()
	plotWidth := max(10, m.width-gaugeWidth-channelStyle.GetWidth()-valueStyle.GetWidth()-4)
	for _, key := range m.channels {
		latest, _ := store.Latest(key)
		snap, _ := store.Snapshot(key)
		b.WriteString(channelStyle.Render(key.Name()))
		b.WriteString(m.gauge.ViewAs(gaugeFraction(latest)))
		b.WriteString(valueStyle.Render(fmt.Sprintf("Value: %g", latest)))
		b.WriteString(sparkline(snap.Values, plotWidth))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(keyStyle.Render("Non-numeric data"))
	b.WriteByte('\n')
	b.WriteString(baseStyle.Render(m.logView.View()))
	b.WriteByte('\n')
	b.WriteString(helpStyle.Render("p/P port • b/B baud • r refresh • s start • x stop • q quit"))
	return b.String()
}

// gaugeFraction normalises a 0-100 reading to the gauge range.
func gaugeFraction(v float64) float64 {
	return max(0, min(1, v/100.0))
}
