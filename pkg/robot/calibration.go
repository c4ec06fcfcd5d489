package robot

import (
	"fmt"

	"github.com/gwillem/armctl/pkg/bus"
)

// JointCalibration holds the servo ID and range of motion of one joint.
// A zero range means the joint is unlimited.
type JointCalibration struct {
	ID       int `json:"id" mapstructure:"id"`
	RangeMin int `json:"range_min" mapstructure:"range_min"`
	RangeMax int `json:"range_max" mapstructure:"range_max"`
}

// Calibration holds calibration data for all joints, keyed by joint name.
type Calibration map[JointName]JointCalibration

// DefaultCalibration maps AllJoints to IDs 1-7 with no limits.
func DefaultCalibration() Calibration {
	cal := make(Calibration)
	for i, name := range AllJoints() {
		cal[name] = JointCalibration{ID: i + 1}
	}
	return cal
}

// Normalize converts a raw servo position to a normalized value in the range [-100, 100].
func (c JointCalibration) Normalize(raw bus.Ticks) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	return (float64(int(raw)-c.RangeMin)/rangeSize)*200 - 100
}

// Denormalize converts a normalized value [-100, 100] to a raw servo position.
func (c JointCalibration) Denormalize(norm float64) bus.Ticks {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return bus.Ticks(int((norm+100)/200*rangeSize) + c.RangeMin)
}

// Limited reports whether the joint has a recorded range.
func (c JointCalibration) Limited() bool {
	return c.RangeMin < c.RangeMax
}

// IDs returns the servo IDs in AllJoints order, followed by any extra joints.
func (c Calibration) IDs() []bus.ActuatorID {
	ids := make([]bus.ActuatorID, 0, len(c))
	seen := make(map[JointName]bool, len(c))
	// Use AllJoints() to ensure consistent ordering
	for _, name := range AllJoints() {
		if jc, ok := c[name]; ok {
			ids = append(ids, bus.ActuatorID(jc.ID))
			seen[name] = true
		}
	}
	for name, jc := range c {
		if !seen[name] {
			ids = append(ids, bus.ActuatorID(jc.ID))
		}
	}
	return ids
}

// ByID returns joint name and calibration for a given servo ID.
func (c Calibration) ByID(id bus.ActuatorID) (JointName, JointCalibration, bool) {
	for name, jc := range c {
		if bus.ActuatorID(jc.ID) == id {
			return name, jc, true
		}
	}
	return "", JointCalibration{}, false
}

// Name returns the joint name for id, or "id<N>" when it is not calibrated.
func (c Calibration) Name(id bus.ActuatorID) JointName {
	if name, _, ok := c.ByID(id); ok {
		return name
	}
	return JointName(fmt.Sprintf("id%d", int(id)))
}

// Limits returns the joint-mode limits for id, 0, 0 when it has none.
func (c Calibration) Limits(id bus.ActuatorID) (bus.Ticks, bus.Ticks) {
	_, jc, ok := c.ByID(id)
	if !ok || !jc.Limited() {
		return 0, 0
	}
	return bus.Ticks(jc.RangeMin), bus.Ticks(jc.RangeMax)
}
