// Package bustest provides a scripted in-memory bus.Driver for tests.
package bustest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gwillem/armctl/pkg/bus"
)

// Op names a Driver call.
type Op string

const (
	OpOpen      Op = "open"
	OpScan      Op = "scan"
	OpPing      Op = "ping"
	OpReboot    Op = "reboot"
	OpTorque    Op = "torque"
	OpJointMode Op = "joint_mode"
	OpGoal      Op = "goal"
	OpRead      Op = "read"
	OpClose     Op = "close"
)

// AnyID matches every actuator in failure rules.
const AnyID bus.ActuatorID = -1

// ErrInjected is returned by calls scripted to fail.
var ErrInjected = errors.New("injected failure")

// Call records one Driver call.
type Call struct {
	Op  Op
	ID  bus.ActuatorID
	Arg bus.Ticks
}

type failKey struct {
	op Op
	id bus.ActuatorID
}

// Fake is a bus with a fixed roster of actuators. Goals move an actuator
// instantly unless it is stuck. It is safe for concurrent use.
type Fake struct {
	mu        sync.Mutex
	present   map[bus.ActuatorID]bool
	positions map[bus.ActuatorID]bus.Ticks
	stuck     map[bus.ActuatorID]bool
	reads     map[bus.ActuatorID][]bus.Ticks
	scans     [][]bus.ActuatorID
	fails     map[failKey]int
	calls     []Call
	open      bool
}

// NewFake returns a bus on which ids answer, all at position 0.
func NewFake(ids ...bus.ActuatorID) *Fake {
	f := &Fake{
		present:   make(map[bus.ActuatorID]bool),
		positions: make(map[bus.ActuatorID]bus.Ticks),
		stuck:     make(map[bus.ActuatorID]bool),
		reads:     make(map[bus.ActuatorID][]bus.Ticks),
		fails:     make(map[failKey]int),
	}
	for _, id := range ids {
		f.present[id] = true
	}
	return f
}

// FailNext makes the next n calls of op fail for any actuator.
func (f *Fake) FailNext(op Op, n int) {
	f.Fail(op, AnyID, n)
}

// Fail makes the next n calls of op on id fail. n < 0 fails forever.
func (f *Fake) Fail(op Op, id bus.ActuatorID, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[failKey{op, id}] = n
}

// SetPosition places id at pos.
func (f *Fake) SetPosition(id bus.ActuatorID, pos bus.Ticks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[id] = pos
}

// Position returns the simulated position of id.
func (f *Fake) Position(id bus.ActuatorID) bus.Ticks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions[id]
}

// Stick makes id ignore goal positions.
func (f *Fake) Stick(id bus.ActuatorID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stuck[id] = true
}

// QueueReads scripts the values returned by the next reads of id. Once the
// queue is drained reads return the simulated position again.
func (f *Fake) QueueReads(id bus.ActuatorID, values ...bus.Ticks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[id] = append(f.reads[id], values...)
}

// QueueScans scripts the rosters returned by successive scans. Once the
// queue is drained scans return the present actuators.
func (f *Fake) QueueScans(rosters ...[]bus.ActuatorID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, rosters...)
}

// Calls counts the calls of op.
func (f *Fake) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Goals returns the goal positions sent to id, in order.
func (f *Fake) Goals(id bus.ActuatorID) []bus.Ticks {
	f.mu.Lock()
	defer f.mu.Unlock()
	var goals []bus.Ticks
	for _, c := range f.calls {
		if c.Op == OpGoal && c.ID == id {
			goals = append(goals, c.Arg)
		}
	}
	return goals
}

// Log returns every call made so far.
func (f *Fake) Log() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *Fake) Open(ctx context.Context, port string, baud int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpOpen, AnyID, 0); err != nil {
		return err
	}
	f.open = true
	return nil
}

func (f *Fake) Scan(ctx context.Context, ceiling int) ([]bus.ActuatorID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpScan, AnyID, 0); err != nil {
		return nil, err
	}
	if len(f.scans) > 0 {
		roster := f.scans[0]
		f.scans = f.scans[1:]
		return slices.Clone(roster), nil
	}

	var ids []bus.ActuatorID
	for id := range f.present {
		if int(id) < ceiling {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *Fake) Ping(ctx context.Context, id bus.ActuatorID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpPing, id, 0); err != nil {
		return 0, err
	}
	return 1020, nil
}

func (f *Fake) Reboot(ctx context.Context, id bus.ActuatorID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(OpReboot, id, 0)
}

func (f *Fake) SetTorque(ctx context.Context, id bus.ActuatorID, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var arg bus.Ticks
	if on {
		arg = 1
	}
	return f.record(OpTorque, id, arg)
}

func (f *Fake) SetJointMode(ctx context.Context, id bus.ActuatorID, min, max bus.Ticks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(OpJointMode, id, 0)
}

func (f *Fake) SetGoalPosition(ctx context.Context, id bus.ActuatorID, pos bus.Ticks) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpGoal, id, pos); err != nil {
		return err
	}
	if !f.stuck[id] {
		f.positions[id] = pos
	}
	return nil
}

func (f *Fake) PresentPosition(ctx context.Context, id bus.ActuatorID) (bus.Ticks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(OpRead, id, 0); err != nil {
		return 0, err
	}
	if queued := f.reads[id]; len(queued) > 0 {
		f.reads[id] = queued[1:]
		return queued[0], nil
	}
	return f.positions[id], nil
}

func (f *Fake) ModelName(ctx context.Context, id bus.ActuatorID) string {
	return "FAKE-1020"
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return f.record(OpClose, AnyID, 0)
}

// record logs the call and decides whether it fails. Callers hold f.mu.
func (f *Fake) record(op Op, id bus.ActuatorID, arg bus.Ticks) error {
	f.calls = append(f.calls, Call{Op: op, ID: id, Arg: arg})

	for _, key := range []failKey{{op, id}, {op, AnyID}} {
		n, ok := f.fails[key]
		if !ok || n == 0 {
			continue
		}
		if n > 0 {
			f.fails[key] = n - 1
		}
		return fmt.Errorf("%s %d: %w", op, id, ErrInjected)
	}

	if id != AnyID && !f.present[id] {
		return fmt.Errorf("%s %d: %w", op, id, bus.ErrNoResponse)
	}
	if op != OpOpen && op != OpClose && !f.open {
		return fmt.Errorf("%s: bus not open", op)
	}
	return nil
}
