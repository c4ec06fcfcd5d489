// Package monitor polls an arm at a fixed rate and serialises operator
// commands with the polling so that only one goroutine talks to the bus.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gwillem/armctl/pkg/bus"
	"github.com/gwillem/armctl/pkg/robot"
)

var ErrRunning = errors.New("monitor already running")

// FullScale is the tick range assumed for joints without a recorded range.
const FullScale = 4095

// State is one poll of the arm.
type State struct {
	Report robot.Report
	// Normalized maps each readable joint to its calibrated position in
	// the range [-100, 100].
	Normalized map[robot.JointName]float64
}

// Action is an operator command run between polls.
type Action int

const (
	ActionMove Action = iota
	ActionReset
	ActionForceEnable
)

func (a Action) String() string {
	switch a {
	case ActionMove:
		return "move"
	case ActionReset:
		return "reset"
	case ActionForceEnable:
		return "force-enable"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Command asks the poller to act on one actuator.
type Command struct {
	Action Action
	ID     bus.ActuatorID
	Delta  bus.Ticks
}

// Poller refreshes every registered actuator at Hz and runs submitted
// commands in between.
type Poller struct {
	arm *robot.Arm
	hz  int
	log *slog.Logger

	mu      sync.Mutex
	running bool
	stateCh chan State
	cmdCh   chan Command
}

// New returns a poller for arm. hz <= 0 selects 10 Hz.
func New(arm *robot.Arm, hz int, log *slog.Logger) *Poller {
	if hz <= 0 {
		hz = 10
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Poller{
		arm:     arm,
		hz:      hz,
		log:     log,
		stateCh: make(chan State, 1),
		cmdCh:   make(chan Command, 8),
	}
}

// States returns a channel that receives the latest poll. Stale states are
// replaced, never queued.
func (p *Poller) States() <-chan State {
	return p.stateCh
}

// Hz returns the polling frequency.
func (p *Poller) Hz() int {
	return p.hz
}

// Submit queues cmd. It reports false when the queue is full.
func (p *Poller) Submit(cmd Command) bool {
	select {
	case p.cmdCh <- cmd:
		return true
	default:
		p.log.Warn("command dropped, queue full", "action", cmd.Action.String(), "actuator", int(cmd.ID))
		return false
	}
}

// Start polls until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrRunning
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.log.Info("monitor started", "hz", p.hz, "actuators", p.arm.Registry().Len())

	ticker := time.NewTicker(time.Second / time.Duration(p.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("monitor stopped")
			return ctx.Err()
		case cmd := <-p.cmdCh:
			p.run(ctx, cmd)
		case <-ticker.C:
			p.step(ctx)
		}
	}
}

func (p *Poller) run(ctx context.Context, cmd Command) {
	var err error
	switch cmd.Action {
	case ActionMove:
		err = p.arm.MoveJoint(ctx, cmd.ID, cmd.Delta)
	case ActionReset:
		err = p.arm.ResetActuator(ctx, cmd.ID)
	case ActionForceEnable:
		err = p.arm.ForceEnable(ctx, cmd.ID)
	default:
		err = fmt.Errorf("unknown action %d", int(cmd.Action))
	}
	if err != nil {
		p.log.Error("command failed", "action", cmd.Action.String(), "actuator", int(cmd.ID), "error", err)
		return
	}
	p.log.Info("command done", "action", cmd.Action.String(), "actuator", int(cmd.ID))
}

func (p *Poller) step(ctx context.Context) {
	report := p.arm.RefreshAll(ctx)
	joints := p.arm.Config().Joints

	normalized := make(map[robot.JointName]float64, len(report.Joints))
	for _, j := range report.Joints {
		if !j.HasPosition {
			continue
		}
		cal, ok := joints[j.Name]
		if !ok || !cal.Limited() {
			cal = robot.JointCalibration{ID: int(j.ID), RangeMax: FullScale}
		}
		normalized[j.Name] = cal.Normalize(j.Position)
	}

	p.sendState(State{Report: report, Normalized: normalized})
}

func (p *Poller) sendState(s State) {
	select {
	case p.stateCh <- s:
	default:
		select {
		case <-p.stateCh:
		default:
		}
		p.stateCh <- s
	}
}
