package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/armctl/pkg/bus"
	"github.com/gwillem/armctl/pkg/logging"
	"github.com/gwillem/armctl/pkg/monitor"
	"github.com/gwillem/armctl/pkg/robot"
)

type MonitorCommand struct {
	Hz   int `long:"hz" default:"10" description:"Polling frequency"`
	Step int `long:"step" default:"20" description:"Ticks per move iteration"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Joint colors - distinct colors for each joint
var jointColors = map[robot.JointName]string{
	robot.Waist:          "196", // red
	robot.Shoulder:       "208", // orange
	robot.ShoulderShadow: "94",  // brown
	robot.Elbow:          "226", // yellow
	robot.WristAngle:     "46",  // green
	robot.WristRotate:    "51",  // cyan
	robot.Gripper:        "201", // magenta
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
)

type monitorModel struct {
	poller   *monitor.Poller
	lines    <-chan string
	chart    *streamlinechart.Model
	ids      []bus.ActuatorID
	names    map[bus.ActuatorID]robot.JointName
	selected int
	step     bus.Ticks
	width    int
	height   int
	logs     []string
	last     monitor.State
	quitting bool
}

func (m *monitorModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the poller
type stateMsg monitor.State
type logMsg string

func waitForState(p *monitor.Poller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-p.States())
	}
}

func waitForLog(lines <-chan string) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-lines)
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m *monitorModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func newMonitorModel(p *monitor.Poller, lines <-chan string, arm *robot.Arm, step int) monitorModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)

	ids := arm.Registry().IDs()
	names := make(map[bus.ActuatorID]robot.JointName, len(ids))
	for _, id := range ids {
		name := arm.JointName(id)
		names[id] = name
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColor(name)))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return monitorModel{
		poller: p,
		lines:  lines,
		chart:  &chart,
		ids:    ids,
		names:  names,
		step:   bus.Ticks(step),
	}
}

func jointColor(name robot.JointName) string {
	if c, ok := jointColors[name]; ok {
		return c
	}
	return "255"
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.poller),
		waitForLog(m.lines),
	)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateMsg:
		state := monitor.State(msg)
		for name, pos := range state.Normalized {
			m.chart.PushDataSet(string(name), pos)
		}
		m.chart.DrawAll()
		m.last = state
		return m, waitForState(m.poller)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.lines)
	}

	return m, nil
}

func (m monitorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab", "down", "j":
		if len(m.ids) > 0 {
			m.selected = (m.selected + 1) % len(m.ids)
		}
		return m, nil
	case "shift+tab", "up", "k":
		if len(m.ids) > 0 {
			m.selected = (m.selected + len(m.ids) - 1) % len(m.ids)
		}
		return m, nil
	}

	if len(m.ids) == 0 {
		return m, nil
	}
	id := m.ids[m.selected]

	switch msg.String() {
	case "right", "l", "+":
		m.poller.Submit(monitor.Command{Action: monitor.ActionMove, ID: id, Delta: m.step})
	case "left", "h", "-":
		m.poller.Submit(monitor.Command{Action: monitor.ActionMove, ID: id, Delta: -m.step})
	case "r":
		m.poller.Submit(monitor.Command{Action: monitor.ActionReset, ID: id})
	case "f":
		m.poller.Submit(monitor.Command{Action: monitor.ActionForceEnable, ID: id})
	}
	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("armctl Monitor"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.poller.Hz()))
	if n := m.last.Report.Failed(); n > 0 {
		sb.WriteString(errorStyle.Render(fmt.Sprintf("  %d unread", n)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("tab select · ←/→ move · r reset · f force-enable · q quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m monitorModel) renderLegend() string {
	var items []string
	for i, id := range m.ids {
		name := m.names[id]
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColor(name))).Bold(true)
		label := fmt.Sprintf("%s(%d)", name, id)
		if i == m.selected {
			label = selectedStyle.Render(label)
		}
		items = append(items, colorStyle.Render("━━")+" "+label)
	}
	return strings.Join(items, "  ")
}

func (c *MonitorCommand) Execute(args []string) error {
	lines := logging.NewChannelHandler(64)
	s, err := openSession(lines)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("Discovering actuators on %s...\n", s.cfg.Bus.Port)
	if _, err := s.arm.DiscoverUntil(ctx, s.cfg.Registry.MinRequired); err != nil {
		if !errors.Is(err, robot.ErrInsufficient) || s.arm.Registry().Len() == 0 {
			return err
		}
	}

	poller := monitor.New(s.arm, c.Hz, s.log.Logger)
	go func() {
		if err := poller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("monitor error", "error", err)
		}
	}()

	p := tea.NewProgram(newMonitorModel(poller, lines.Lines(), s.arm, c.Step), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}
