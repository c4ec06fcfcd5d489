package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/armctl/pkg/bus"
	"github.com/gwillem/armctl/pkg/robot"
)

type SetupCommand struct {
	SkipCalibration bool `long:"skip-calibration" description:"Only select the port"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("armctl Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Step 1: Find the arm
	cand, err := selectPort(cfg)
	if err != nil {
		return err
	}
	cfg.Bus.Port = cand.Port

	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	// Step 2: Record joint ranges
	if !c.SkipCalibration {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Calibrating Arm ━━━"))
		fmt.Println()
		if err := calibrateArm(cfg, cand.IDs); err != nil {
			return err
		}
		if err := cfg.SaveTo(opts.Config); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Check the arm with: " + headerStyle.Render("armctl status"))
	return nil
}

func selectPort(cfg *robot.Config) (bus.Candidate, error) {
	fmt.Println("Scanning for servo buses...")
	fmt.Println()

	ports, err := bus.ListPorts()
	if err != nil {
		return bus.Candidate{}, err
	}
	found := bus.Probe(context.Background(), ports, cfg.Bus.BaudRate, cfg.Bus.ScanCeiling, newDriver(cfg))

	switch len(found) {
	case 0:
		return bus.Candidate{}, fmt.Errorf("no actuators answered on any port; check power and cabling")
	case 1:
		fmt.Printf("  Found %d actuator(s) on %s\n", len(found[0].IDs), found[0].Port)
		return found[0], nil
	}

	options := make([]huh.Option[int], 0, len(found))
	for i, cand := range found {
		label := fmt.Sprintf("%s (%d actuators: %s)", cand.Port, len(cand.IDs), formatIDs(cand.IDs))
		options = append(options, huh.NewOption(label, i))
	}

	var choice int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Which port is the arm on?").
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return bus.Candidate{}, err
	}
	return found[choice], nil
}

func calibrateArm(cfg *robot.Config, ids []bus.ActuatorID) error {
	ctx := context.Background()

	driver := bus.NewFeetech(cfg.Bus.Timeout())
	if err := driver.Open(ctx, cfg.Bus.Port, cfg.Bus.BaudRate); err != nil {
		return fmt.Errorf("connect to arm: %w", err)
	}
	defer driver.Close()

	// Release torque so the arm can be moved by hand
	for _, id := range ids {
		driver.SetTorque(ctx, id, false)
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println("Explore the full range of motion for all joints.")
	fmt.Println()

	model := newCalibrationModel(driver, cfg.Joints, ids)
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return fmt.Errorf("run calibration: %w", err)
	}
	cm := finalModel.(calibrationModel)

	for _, j := range cm.joints {
		if !j.seen {
			continue
		}
		cfg.Joints[j.name] = robot.JointCalibration{
			ID:       int(j.id),
			RangeMin: int(j.min),
			RangeMax: int(j.max),
		}
	}

	fmt.Println()
	fmt.Println("Arm calibrated.")
	return nil
}

// Calibration TUI model
type calibrationJoint struct {
	id            bus.ActuatorID
	name          robot.JointName
	cur, min, max bus.Ticks
	seen          bool
}

type calibrationModel struct {
	driver   bus.Driver
	joints   []calibrationJoint
	quitting bool
}

type tickMsg time.Time

func newCalibrationModel(driver bus.Driver, cal robot.Calibration, ids []bus.ActuatorID) calibrationModel {
	joints := make([]calibrationJoint, 0, len(ids))
	for _, id := range ids {
		joints = append(joints, calibrationJoint{id: id, name: cal.Name(id)})
	}
	m := calibrationModel{driver: driver, joints: joints}
	m.sample(context.Background())
	return m
}

func (m calibrationModel) sample(ctx context.Context) {
	for i := range m.joints {
		j := &m.joints[i]
		pos, err := m.driver.PresentPosition(ctx, j.id)
		if err != nil {
			continue
		}
		j.cur = pos
		if !j.seen {
			j.min, j.max, j.seen = pos, pos, true
		}
		j.min = min(j.min, pos)
		j.max = max(j.max, pos)
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		m.sample(context.Background())
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	currentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)

	rows := make([][]string, 0, len(m.joints))
	ranges := make([]bus.Ticks, 0, len(m.joints))
	for _, j := range m.joints {
		if !j.seen {
			rows = append(rows, []string{string(j.name), "?", "?", "?", "0"})
			ranges = append(ranges, 0)
			continue
		}
		rangeSize := j.max - j.min
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			string(j.name),
			strconv.Itoa(int(j.cur)),
			strconv.Itoa(int(j.min)),
			strconv.Itoa(int(j.max)),
			strconv.Itoa(int(rangeSize)),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableNameStyle
			case 1:
				return currentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableGoodStyle
				}
				return tableBadStyle
			default:
				return tableCellStyle
			}
		})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))
	return sb.String()
}
