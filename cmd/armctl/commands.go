package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/armctl/pkg/bus"
	"github.com/gwillem/armctl/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableNameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableGoodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableBadStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
)

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ports, err := bus.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	fmt.Println("Scanning serial ports...")
	found := bus.Probe(context.Background(), ports, cfg.Bus.BaudRate, cfg.Bus.ScanCeiling, newDriver(cfg))

	rows := make([][]string, 0, len(ports))
	for _, port := range ports {
		ids := "-"
		for _, cand := range found {
			if cand.Port == port {
				ids = formatIDs(cand.IDs)
			}
		}
		rows = append(rows, []string{port, ids})
	}
	fmt.Println(simpleTable([]string{"Port", "Actuators"}, rows).Render())
	return nil
}

func newDriver(cfg *robot.Config) func() bus.Driver {
	return func() bus.Driver { return bus.NewFeetech(cfg.Bus.Timeout()) }
}

type ScanCommand struct {
	Min int `long:"min" description:"Actuators required (default from config)"`
}

func (c *ScanCommand) Execute(args []string) error {
	s, err := openSession(nil)
	if err != nil {
		return err
	}
	defer s.Close()

	minimum := c.Min
	if minimum <= 0 {
		minimum = s.cfg.Registry.MinRequired
	}

	ctx := context.Background()
	count, err := s.arm.Discover(ctx, true)
	if err != nil {
		return err
	}
	if count < minimum {
		fmt.Printf("Found %d actuator(s), waiting for %d...\n", count, minimum)
		attempts, err := s.arm.DiscoverUntil(ctx, minimum)
		if err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
		} else {
			fmt.Printf("Arm complete after %d attempt(s).\n", attempts)
		}
	}

	fmt.Println(renderJoints(s.arm, s.arm.Registry().Snapshot()))
	return nil
}

type MoveCommand struct {
	ID    int `long:"id" required:"true" description:"Actuator ID"`
	Delta int `long:"delta" required:"true" description:"Ticks to move per iteration"`
}

func (c *MoveCommand) Execute(args []string) error {
	return withActuator(c.ID, func(ctx context.Context, s *session, id bus.ActuatorID) error {
		if err := s.arm.MoveJoint(ctx, id, bus.Ticks(c.Delta)); err != nil {
			return err
		}
		pos, ok := s.arm.Registry().Position(id)
		if ok {
			fmt.Printf("%s %s now at %d\n", successStyle.Render("Moved"), s.arm.JointName(id), pos)
		}
		return nil
	})
}

type ResetCommand struct {
	ID int `long:"id" required:"true" description:"Actuator ID"`
}

func (c *ResetCommand) Execute(args []string) error {
	return withActuator(c.ID, func(ctx context.Context, s *session, id bus.ActuatorID) error {
		if err := s.arm.ResetActuator(ctx, id); err != nil {
			return err
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("Actuator %d reset.", id)))
		return nil
	})
}

type ForceEnableCommand struct {
	ID int `long:"id" required:"true" description:"Actuator ID"`
}

func (c *ForceEnableCommand) Execute(args []string) error {
	return withActuator(c.ID, func(ctx context.Context, s *session, id bus.ActuatorID) error {
		if err := s.arm.ForceEnable(ctx, id); err != nil {
			return err
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("Actuator %d enabled and moving.", id)))
		return nil
	})
}

// withActuator discovers the arm and runs fn on a validated actuator ID.
func withActuator(raw int, fn func(ctx context.Context, s *session, id bus.ActuatorID) error) error {
	id := bus.ActuatorID(raw)
	if !id.Valid() {
		return fmt.Errorf("%w: %d", robot.ErrInvalidID, raw)
	}

	s, err := openSession(nil)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.discover(ctx); err != nil {
		return err
	}
	return fn(ctx, s, id)
}

type StatusCommand struct{}

func (c *StatusCommand) Execute(args []string) error {
	s, err := openSession(nil)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.discover(ctx); err != nil {
		return err
	}

	report := s.arm.RefreshAll(ctx)
	rows := make([][]string, 0, len(report.Joints))
	failed := make([]bool, 0, len(report.Joints))
	for _, j := range report.Joints {
		pos := "?"
		if j.HasPosition {
			pos = strconv.Itoa(int(j.Position))
		}
		result := "ok"
		if j.Err != nil {
			result = errorText(j.Err)
		}
		rows = append(rows, []string{j.ID.String(), string(j.Name), pos, j.State.String(), result})
		failed = append(failed, j.Err != nil)
	}

	t := simpleTable([]string{"ID", "Joint", "Position", "State", "Read"}, rows).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 1:
				return tableNameStyle
			case col == 4 && row >= 0 && row < len(failed) && failed[row]:
				return tableBadStyle
			case col == 4:
				return tableGoodStyle
			default:
				return tableCellStyle
			}
		})
	fmt.Println(t.Render())

	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d actuators did not answer", n, len(report.Joints))
	}
	return nil
}

func renderJoints(arm *robot.Arm, joints []robot.Joint) string {
	if len(joints) == 0 {
		return dimStyle.Render("No actuators registered.")
	}
	rows := make([][]string, 0, len(joints))
	for _, j := range joints {
		pos := "?"
		if j.HasPosition {
			pos = strconv.Itoa(int(j.Position))
		}
		rows = append(rows, []string{j.ID.String(), string(arm.JointName(j.ID)), pos, j.State.String()})
	}
	return simpleTable([]string{"ID", "Joint", "Position", "State"}, rows).Render()
}

func simpleTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 1:
				return tableNameStyle
			default:
				return tableCellStyle
			}
		})
}

func formatIDs(ids []bus.ActuatorID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

// errorText returns the innermost message of err.
func errorText(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
