// Package robot owns the actuator registry and the arm controller: bus
// discovery, verified relative motion and status refresh, with automatic
// recovery of actuators that stop responding.
package robot

// JointName identifies a joint in the arm.
type JointName string

// Joint names for the default 7-servo chain.
const (
	Waist          JointName = "waist"
	Shoulder       JointName = "shoulder"
	ShoulderShadow JointName = "shoulder_shadow"
	Elbow          JointName = "elbow"
	WristAngle     JointName = "wrist_angle"
	WristRotate    JointName = "wrist_rotate"
	Gripper        JointName = "gripper"
)

// AllJoints returns all joint names in order (matching servo IDs 1-7).
func AllJoints() []JointName {
	return []JointName{
		Waist,
		Shoulder,
		ShoulderShadow,
		Elbow,
		WristAngle,
		WristRotate,
		Gripper,
	}
}
