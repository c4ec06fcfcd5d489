package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/gwillem/armctl/pkg/bus"
)

// Reset reboots the actuator, waits for it to boot and puts it back into
// joint mode.
type Reset struct {
	Settle time.Duration
	Sleep  func(time.Duration)
	Limits LimitFunc
}

func (Reset) Name() string { return "reset" }

func (r Reset) Attempt(ctx context.Context, d bus.Driver, id bus.ActuatorID) Outcome {
	if err := d.Reboot(ctx, id); err != nil {
		return Outcome{Err: fmt.Errorf("%w: %w", ErrReboot, err)}
	}

	sleeper(r.Sleep)(r.Settle)

	if _, err := d.Ping(ctx, id); err != nil {
		return Outcome{Err: fmt.Errorf("%w: %w", ErrUnresponsive, err)}
	}

	limits := r.Limits
	if limits == nil {
		limits = noLimits
	}
	lo, hi := limits(id)
	if err := d.SetJointMode(ctx, id, lo, hi); err != nil {
		return Outcome{Err: fmt.Errorf("%w: %w", ErrModeEstablish, err)}
	}

	var out Outcome
	if pos, err := d.PresentPosition(ctx, id); err == nil {
		out.observe(pos)
	}
	return out
}

// Verify forces torque and joint mode on, then commands a small offset and
// requires the actuator to physically move. An actuator that acknowledges
// commands but stays put is reported as ErrStuck.
type Verify struct {
	Settle time.Duration
	Offset bus.Ticks
	Sleep  func(time.Duration)
	Limits LimitFunc
}

func (Verify) Name() string { return "verify" }

func (v Verify) Attempt(ctx context.Context, d bus.Driver, id bus.ActuatorID) Outcome {
	if _, err := d.Ping(ctx, id); err != nil {
		return Outcome{Err: fmt.Errorf("%w: %w", ErrUnresponsive, err)}
	}
	if err := d.SetTorque(ctx, id, true); err != nil {
		return Outcome{Err: fmt.Errorf("%w: %w", ErrTorque, err)}
	}

	limits := v.Limits
	if limits == nil {
		limits = noLimits
	}
	lo, hi := limits(id)
	if err := d.SetJointMode(ctx, id, lo, hi); err != nil {
		return Outcome{Err: fmt.Errorf("%w: %w", ErrModeEstablish, err)}
	}

	var out Outcome
	before, err := d.PresentPosition(ctx, id)
	if err != nil {
		out.Err = fmt.Errorf("%w: read: %w", ErrCommand, err)
		return out
	}
	out.observe(before)

	if err := d.SetGoalPosition(ctx, id, before+v.Offset); err != nil {
		out.Err = fmt.Errorf("%w: test move: %w", ErrCommand, err)
		return out
	}

	sleeper(v.Sleep)(v.Settle)

	after, err := d.PresentPosition(ctx, id)
	if err != nil {
		out.Err = fmt.Errorf("%w: read back: %w", ErrCommand, err)
		return out
	}
	out.observe(after)

	if after == before {
		out.Err = fmt.Errorf("%w: position stayed at %d", ErrStuck, after)
	}
	return out
}
