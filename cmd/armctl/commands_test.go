package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gwillem/armctl/pkg/bus"
	"github.com/gwillem/armctl/pkg/bus/bustest"
	"github.com/gwillem/armctl/pkg/robot"
)

func TestFormatIDs(t *testing.T) {
	if got := formatIDs([]bus.ActuatorID{1, 2, 7}); got != "1,2,7" {
		t.Errorf("formatIDs() = %q, want %q", got, "1,2,7")
	}
	if got := formatIDs(nil); got != "" {
		t.Errorf("formatIDs(nil) = %q, want empty", got)
	}
}

func TestErrorText(t *testing.T) {
	inner := errors.New("no response")
	err := fmt.Errorf("reset 3: %w", fmt.Errorf("unresponsive: %w", inner))
	if got := errorText(err); got != "no response" {
		t.Errorf("errorText() = %q, want %q", got, "no response")
	}
}

func TestCalibrationModel_TracksRange(t *testing.T) {
	f := bustest.NewFake(1, 2)
	if err := f.Open(context.Background(), "fake", bus.DefaultBaudRate); err != nil {
		t.Fatal(err)
	}
	f.SetPosition(1, 2000)
	f.SetPosition(2, 1500)

	m := newCalibrationModel(f, robot.DefaultCalibration(), []bus.ActuatorID{1, 2})

	for _, pos := range []bus.Ticks{1200, 2900, 2100} {
		f.SetPosition(1, pos)
		next, _ := m.Update(tickMsg{})
		m = next.(calibrationModel)
	}

	waist := m.joints[0]
	if waist.name != robot.Waist {
		t.Errorf("joint 1 name = %s, want waist", waist.name)
	}
	if waist.min != 1200 || waist.max != 2900 || waist.cur != 2100 {
		t.Errorf("waist = min %d max %d cur %d, want 1200 2900 2100", waist.min, waist.max, waist.cur)
	}
	if shoulder := m.joints[1]; shoulder.min != 1500 || shoulder.max != 1500 {
		t.Errorf("shoulder range = %d..%d, want 1500..1500", shoulder.min, shoulder.max)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil || !next.(calibrationModel).quitting {
		t.Error("enter should quit the calibration")
	}
}

func TestCalibrationModel_UnreadableJoint(t *testing.T) {
	f := bustest.NewFake(1)
	f.Open(context.Background(), "fake", bus.DefaultBaudRate)

	m := newCalibrationModel(f, robot.DefaultCalibration(), []bus.ActuatorID{1, 42})
	if m.joints[1].seen {
		t.Error("absent actuator marked as seen")
	}
	if m.joints[1].name != "id42" {
		t.Errorf("name = %s, want id42", m.joints[1].name)
	}
}

func TestMonitorModel_Selection(t *testing.T) {
	m := monitorModel{ids: []bus.ActuatorID{1, 2, 3}}

	next, _ := m.handleKey(tea.KeyMsg{Type: tea.KeyShiftTab})
	m = next.(monitorModel)
	if m.selected != 2 {
		t.Errorf("selected = %d after shift+tab, want 2", m.selected)
	}
	next, _ = m.handleKey(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(monitorModel)
	if m.selected != 0 {
		t.Errorf("selected = %d after tab, want 0", m.selected)
	}
}
