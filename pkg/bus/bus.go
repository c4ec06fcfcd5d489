// Package bus defines the contract between the controller and the servo bus
// transport, plus a Feetech implementation of it.
package bus

import (
	"context"
	"errors"
	"fmt"
)

// ActuatorID addresses one servo on the bus.
type ActuatorID int

// Ticks is a position in the actuator's native unit.
type Ticks int32

const (
	// ScanCeiling is the broadcast ID and the exclusive upper bound of a scan.
	ScanCeiling = 253
	// MaxID is the highest addressable actuator.
	MaxID ActuatorID = ScanCeiling - 1
	// DefaultBaudRate is the bus speed used by the arm.
	DefaultBaudRate = 1_000_000
)

// ErrNoResponse is returned when an actuator does not answer.
var ErrNoResponse = errors.New("no response")

// Valid reports whether id is an addressable actuator.
func (id ActuatorID) Valid() bool {
	return id >= 0 && id <= MaxID
}

func (id ActuatorID) String() string {
	return fmt.Sprintf("%d", int(id))
}

// Driver is a session on one half-duplex servo bus. Every call is
// synchronous; a non-nil error carries the diagnostic text.
type Driver interface {
	// Open initialises the session. Calling it again reopens the bus.
	Open(ctx context.Context, port string, baud int) error
	// Scan returns the IDs in [0, ceiling) that answered.
	Scan(ctx context.Context, ceiling int) ([]ActuatorID, error)
	// Ping checks that id answers and returns its model number when known.
	Ping(ctx context.Context, id ActuatorID) (int, error)
	Reboot(ctx context.Context, id ActuatorID) error
	SetTorque(ctx context.Context, id ActuatorID, on bool) error
	// SetJointMode puts id into position control. min == max means no limits.
	SetJointMode(ctx context.Context, id ActuatorID, min, max Ticks) error
	SetGoalPosition(ctx context.Context, id ActuatorID, pos Ticks) error
	PresentPosition(ctx context.Context, id ActuatorID) (Ticks, error)
	ModelName(ctx context.Context, id ActuatorID) string
	Close() error
}
