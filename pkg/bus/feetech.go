package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

var errNotOpen = errors.New("bus not open")

type limits struct {
	min, max Ticks
}

// Feetech drives STS servos through the feetech transport.
type Feetech struct {
	timeout   time.Duration
	transport feetech.Transport // replaces the serial port when set
	bus       *feetech.Bus
	found     map[ActuatorID]feetech.FoundServo
	limits    map[ActuatorID]limits
}

// NewFeetech returns a driver whose per-packet timeout is timeout. The bus
// is opened by Open.
func NewFeetech(timeout time.Duration) *Feetech {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &Feetech{
		timeout: timeout,
		found:   make(map[ActuatorID]feetech.FoundServo),
		limits:  make(map[ActuatorID]limits),
	}
}

func (f *Feetech) Open(ctx context.Context, port string, baud int) error {
	if f.bus != nil {
		f.bus.Close()
		f.bus = nil
	}
	if port == "" && f.transport == nil {
		return errors.New("no port configured")
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Transport: f.transport,
		Port:      port,
		BaudRate:  baud,
		Protocol:  feetech.ProtocolSTS,
		Timeout:   f.timeout,
	})
	if err != nil {
		return fmt.Errorf("open bus: %w", err)
	}
	f.bus = bus
	return nil
}

func (f *Feetech) Scan(ctx context.Context, ceiling int) ([]ActuatorID, error) {
	if f.bus == nil {
		return nil, errNotOpen
	}
	if ceiling > ScanCeiling {
		ceiling = ScanCeiling
	}
	servos, err := f.bus.Scan(ctx, 0, ceiling-1)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	ids := make([]ActuatorID, 0, len(servos))
	for _, s := range servos {
		id := ActuatorID(s.ID)
		f.found[id] = s
		ids = append(ids, id)
	}
	return ids, nil
}

// Ping checks that id answers and returns the model number it reports.
func (f *Feetech) Ping(ctx context.Context, id ActuatorID) (int, error) {
	if f.bus == nil {
		return 0, errNotOpen
	}
	model, err := f.bus.Ping(ctx, int(id))
	if err != nil {
		return 0, fmt.Errorf("ping %d: %w", id, err)
	}
	if _, ok := f.found[id]; !ok {
		known, _ := feetech.GetModelByNumber(model)
		f.found[id] = feetech.FoundServo{ID: int(id), ModelNumber: model, Model: known}
	}
	return model, nil
}

// Reboot releases torque and forgets software limits, leaving the servo in
// the state a power cycle would: alive, torque off, no goal held.
func (f *Feetech) Reboot(ctx context.Context, id ActuatorID) error {
	if f.bus == nil {
		return errNotOpen
	}
	delete(f.limits, id)
	if err := f.group(id).DisableAll(ctx); err != nil {
		return fmt.Errorf("reboot %d: %w", id, err)
	}
	return nil
}

func (f *Feetech) SetTorque(ctx context.Context, id ActuatorID, on bool) error {
	if f.bus == nil {
		return errNotOpen
	}
	var err error
	if on {
		err = f.group(id).EnableAll(ctx)
	} else {
		err = f.group(id).DisableAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("torque %d: %w", id, err)
	}
	return nil
}

// SetJointMode enables torque and holds the present position. STS servos
// power up in position mode, so holding proves the servo accepts goals.
func (f *Feetech) SetJointMode(ctx context.Context, id ActuatorID, min, max Ticks) error {
	if f.bus == nil {
		return errNotOpen
	}
	group := f.group(id)
	if err := group.EnableAll(ctx); err != nil {
		return fmt.Errorf("joint mode %d: enable: %w", id, err)
	}
	positions, err := group.Positions(ctx)
	if err != nil {
		return fmt.Errorf("joint mode %d: read: %w", id, err)
	}
	pos, ok := positions[int(id)]
	if !ok {
		return fmt.Errorf("joint mode %d: %w", id, ErrNoResponse)
	}
	if err := group.SetPositions(ctx, feetech.PositionMap{int(id): pos}); err != nil {
		return fmt.Errorf("joint mode %d: hold: %w", id, err)
	}

	if min < max {
		f.limits[id] = limits{min: min, max: max}
	} else {
		delete(f.limits, id)
	}
	return nil
}

func (f *Feetech) SetGoalPosition(ctx context.Context, id ActuatorID, pos Ticks) error {
	if f.bus == nil {
		return errNotOpen
	}
	if l, ok := f.limits[id]; ok {
		pos = max(l.min, min(l.max, pos))
	}
	if err := f.group(id).SetPositions(ctx, feetech.PositionMap{int(id): int(pos)}); err != nil {
		return fmt.Errorf("goal %d: %w", id, err)
	}
	return nil
}

func (f *Feetech) PresentPosition(ctx context.Context, id ActuatorID) (Ticks, error) {
	if f.bus == nil {
		return 0, errNotOpen
	}
	positions, err := f.group(id).Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("read %d: %w", id, err)
	}
	pos, ok := positions[int(id)]
	if !ok {
		return 0, fmt.Errorf("read %d: %w", id, ErrNoResponse)
	}
	return Ticks(pos), nil
}

// ModelName returns the model name found by Scan or Ping, "model N" for
// model numbers the transport does not know and "unknown" for unseen IDs.
func (f *Feetech) ModelName(ctx context.Context, id ActuatorID) string {
	s, ok := f.found[id]
	if !ok {
		return "unknown"
	}
	return modelName(s)
}

func modelName(s feetech.FoundServo) string {
	if s.Model != nil && s.Model.Name != "" {
		return s.Model.Name
	}
	return fmt.Sprintf("model %d", s.ModelNumber)
}

// Close closes the bus connection.
func (f *Feetech) Close() error {
	if f.bus == nil {
		return nil
	}
	err := f.bus.Close()
	f.bus = nil
	return err
}

func (f *Feetech) group(id ActuatorID) *feetech.ServoGroup {
	return feetech.NewServoGroupByIDs(f.bus, int(id))
}
