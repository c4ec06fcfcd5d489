// Package recovery restores actuators that stopped responding or refuse
// commands.
//
// Recovery is an ordered list of strategies, cheapest first. Tier 1 (Reset)
// reboots the actuator and re-establishes joint mode. Tier 2 (ForceEnable)
// runs tier 1 and, if that fails, falls back to Verify: torque on, joint
// mode, and a small test move that must be observed as real movement.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gwillem/armctl/pkg/bus"
)

var (
	ErrReboot            = errors.New("reboot failed")
	ErrUnresponsive      = errors.New("actuator unresponsive")
	ErrTorque            = errors.New("torque enable failed")
	ErrModeEstablish     = errors.New("joint mode not established")
	ErrCommand           = errors.New("command failed")
	ErrStuck             = errors.New("actuator did not move")
	ErrRecoveryExhausted = errors.New("recovery exhausted")
)

// Outcome is the result of one recovery attempt. Position is the latest
// successful read taken during the attempt, valid when HasPosition is set.
type Outcome struct {
	Strategy    string
	Err         error
	Position    bus.Ticks
	HasPosition bool
}

// Recovered reports whether the actuator is commandable again.
func (o Outcome) Recovered() bool {
	return o.Err == nil
}

func (o *Outcome) observe(pos bus.Ticks) {
	o.Position = pos
	o.HasPosition = true
}

// Strategy is one recovery tier.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, d bus.Driver, id bus.ActuatorID) Outcome
}

// LimitFunc returns the joint-mode limits for id. Equal values mean none.
type LimitFunc func(id bus.ActuatorID) (min, max bus.Ticks)

func noLimits(bus.ActuatorID) (bus.Ticks, bus.Ticks) { return 0, 0 }

// Chain runs strategies in order until one recovers the actuator.
type Chain []Strategy

// Run returns the first recovered outcome. When every strategy fails the
// last failure is returned joined with ErrRecoveryExhausted, carrying the
// most recent position any strategy observed.
func (c Chain) Run(ctx context.Context, d bus.Driver, id bus.ActuatorID, log *slog.Logger) Outcome {
	last := Outcome{Err: ErrRecoveryExhausted}
	var seen Outcome

	for _, s := range c {
		log.Debug("recovery attempt", "strategy", s.Name())
		out := s.Attempt(ctx, d, id)
		out.Strategy = s.Name()
		if out.Recovered() {
			log.Info("recovery succeeded", "strategy", s.Name())
			return out
		}
		log.Warn("recovery strategy failed", "strategy", s.Name(), "error", out.Err)
		if out.HasPosition {
			seen = out
		}
		last = out
	}

	if len(c) > 0 {
		last.Err = errors.Join(ErrRecoveryExhausted, last.Err)
	}
	if !last.HasPosition && seen.HasPosition {
		last.observe(seen.Position)
	}
	return last
}

func sleeper(sleep func(time.Duration)) func(time.Duration) {
	if sleep == nil {
		return time.Sleep
	}
	return sleep
}
