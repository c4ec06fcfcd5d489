package robot

import (
	"context"
	"time"

	"github.com/gwillem/armctl/pkg/bus"
)

// JointReport is the outcome of refreshing one actuator. Position is the
// tracked value, stale when Err is set.
type JointReport struct {
	ID          bus.ActuatorID
	Name        JointName
	Position    bus.Ticks
	HasPosition bool
	State       JointState
	Err         error
}

// Report is the result of RefreshAll.
type Report struct {
	Joints    []JointReport
	Timestamp time.Time
}

// Failed returns the number of actuators whose read failed.
func (r Report) Failed() int {
	n := 0
	for _, j := range r.Joints {
		if j.Err != nil {
			n++
		}
	}
	return n
}

// RefreshAll reads every registered actuator and updates the tracked
// positions that could be read. Failed reads are reported, not recovered.
func (a *Arm) RefreshAll(ctx context.Context) Report {
	report := Report{Timestamp: time.Now()}

	for _, id := range a.registry.IDs() {
		jr := JointReport{ID: id, Name: a.JointName(id)}

		pos, err := a.driver.PresentPosition(ctx, id)
		if err == nil {
			err = a.registry.SetPosition(id, pos)
		}
		if err != nil {
			jr.Err = err
			a.jointLog(id).Warn("position refresh failed", "error", err)
		}

		jr.Position, jr.HasPosition = a.registry.Position(id)
		jr.State = a.registry.State(id)
		report.Joints = append(report.Joints, jr)
	}

	return report
}
