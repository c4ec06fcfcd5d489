package robot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gwillem/armctl/pkg/bus"
	"github.com/gwillem/armctl/pkg/recovery"
)

var (
	ErrSessionInit   = errors.New("bus session init failed")
	ErrScan          = errors.New("bus scan failed")
	ErrInsufficient  = errors.New("not enough actuators")
	ErrModeEstablish = recovery.ErrModeEstablish
)

// Arm drives a chain of actuators on one bus. Its methods are not safe for
// concurrent use: callers issue one command at a time.
type Arm struct {
	cfg       *Config
	driver    bus.Driver
	registry  *Registry
	recoverer *recovery.Recoverer
	log       *slog.Logger
	sleep     func(time.Duration)
}

// NewArm creates an arm controller on driver. The bus is opened by Discover.
func NewArm(cfg *Config, driver bus.Driver, log *slog.Logger) *Arm {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	a := &Arm{
		cfg:      cfg,
		driver:   driver,
		registry: NewRegistry(cfg.Registry.Capacity),
		log:      log,
		sleep:    time.Sleep,
	}
	a.recoverer = recovery.New(recovery.Config{
		Driver:       driver,
		RebootSettle: cfg.Timing.RebootSettle(),
		VerifySettle: cfg.Timing.VerifySettle(),
		VerifyOffset: bus.Ticks(cfg.Timing.VerifyOffset),
		Limits:       cfg.Joints.Limits,
		Sleep:        func(d time.Duration) { a.sleep(d) },
		Logger:       log,
	})
	return a
}

// SetSleep replaces the blocking wait used for settle delays.
func (a *Arm) SetSleep(sleep func(time.Duration)) {
	a.sleep = sleep
}

// Registry returns the arm's actuator registry.
func (a *Arm) Registry() *Registry {
	return a.registry
}

// Config returns the configuration the arm was created with.
func (a *Arm) Config() *Config {
	return a.cfg
}

// JointName returns the configured name of id.
func (a *Arm) JointName(id bus.ActuatorID) JointName {
	return a.cfg.Joints.Name(id)
}

// Close closes the bus connection.
func (a *Arm) Close() error {
	return a.driver.Close()
}

func (a *Arm) jointLog(id bus.ActuatorID) *slog.Logger {
	return a.log.With("actuator", int(id), "joint", string(a.JointName(id)))
}

// Discover opens the bus, scans it and registers what it finds.
//
// With waitForMinimum set, a scan that finds fewer than the configured
// minimum returns the count and leaves the registry empty so the caller can
// rescan. Actuators whose position cannot be read are force-enabled; one
// bad actuator does not abort the pass.
func (a *Arm) Discover(ctx context.Context, waitForMinimum bool) (int, error) {
	if err := a.driver.Open(ctx, a.cfg.Bus.Port, a.cfg.Bus.BaudRate); err != nil {
		a.log.Error("failed to open bus", "port", a.cfg.Bus.Port, "error", err)
		return 0, fmt.Errorf("%w: %w", ErrSessionInit, err)
	}
	a.log.Info("bus open", "port", a.cfg.Bus.Port, "baud", a.cfg.Bus.BaudRate)

	a.registry.Clear()

	ids, err := a.driver.Scan(ctx, a.cfg.Bus.ScanCeiling)
	if err != nil {
		a.log.Error("scan failed", "error", err)
		return 0, fmt.Errorf("%w: %w", ErrScan, err)
	}
	if len(ids) > ScanBufferSize {
		a.log.Warn("scan returned more candidates than the buffer holds", "found", len(ids), "kept", ScanBufferSize)
		ids = ids[:ScanBufferSize]
	}
	count := len(ids)
	a.log.Info("scan complete", "found", count)

	if waitForMinimum && count < a.cfg.Registry.MinRequired {
		a.log.Warn("not enough actuators, rescan needed", "found", count, "want", a.cfg.Registry.MinRequired)
		return count, nil
	}

	if err := a.registry.Replace(ids); err != nil {
		a.log.Error("scan result rejected", "error", err)
		return count, err
	}

	for _, id := range ids {
		log := a.jointLog(id)
		pos, err := a.driver.PresentPosition(ctx, id)
		if err != nil {
			log.Warn("position read failed", "model", a.driver.ModelName(ctx, id), "error", err)
			a.registry.SetState(id, StateSuspect)
			a.applyRecovery(id, a.recoverer.ForceEnable(ctx, id), StateUnrecoverable)
			continue
		}
		if err := a.registry.SetPosition(id, pos); err != nil {
			log.Error("position not recorded", "error", err)
		}
		log.Info("actuator found", "model", a.driver.ModelName(ctx, id), "position", int(pos))
	}

	return count, nil
}

// DiscoverUntil rescans until at least minimum actuators are registered or
// the attempt limit is reached, waiting between attempts for actuators to
// power up. It returns the number of attempts made and ErrInsufficient on a
// shortfall; the registry then holds the partial fleet of the last pass.
// ErrCapacityExceeded is a configuration error and stops the loop at once.
func (a *Arm) DiscoverUntil(ctx context.Context, minimum int) (int, error) {
	maxAttempts := a.cfg.Timing.MaxAttempts
	attempts := 0

	for a.registry.Len() < minimum && attempts < maxAttempts {
		a.log.Info("scan attempt",
			"attempt", attempts+1,
			"max", maxAttempts,
			"found", a.registry.Len(),
			"want", minimum,
		)

		_, err := a.Discover(ctx, false)
		attempts++
		if errors.Is(err, ErrCapacityExceeded) {
			a.log.Error("discovery stopped, bus holds more actuators than configured", "error", err)
			return attempts, err
		}
		if err != nil {
			a.log.Warn("discovery pass failed", "error", err)
		}

		if a.registry.Len() < minimum && attempts < maxAttempts {
			a.log.Info("waiting before next scan attempt", "delay", a.cfg.Timing.DiscoverySettle())
			a.sleep(a.cfg.Timing.DiscoverySettle())
		}
	}

	found := a.registry.Len()
	if found >= minimum {
		a.log.Info("discovery complete", "found", found, "attempts", attempts)
		return attempts, nil
	}
	a.log.Warn("discovery gave up", "found", found, "want", minimum, "attempts", attempts)
	return attempts, fmt.Errorf("%w: found %d of %d", ErrInsufficient, found, minimum)
}

// MoveJoint moves id by delta ticks in a short closed loop: each iteration
// adds delta to the tracked target, commands it, waits for the actuator to
// settle and replaces the target with the measured position when the read
// succeeds. Read and goal failures are tolerated; the call only fails when
// joint mode cannot be established, even after recovery.
func (a *Arm) MoveJoint(ctx context.Context, id bus.ActuatorID, delta bus.Ticks) error {
	log := a.jointLog(id)

	if err := a.establishMode(ctx, id, log); err != nil {
		return fmt.Errorf("move %d: %w", id, err)
	}

	target := a.trackedPosition(ctx, id)
	log.Info("moving joint", "from", int(target), "delta", int(delta))

	for i := 0; i < a.cfg.Timing.MotionIterations; i++ {
		target += delta
		a.track(id, target)

		if err := a.driver.SetGoalPosition(ctx, id, target); err != nil {
			log.Warn("goal position failed", "iteration", i+1, "target", int(target), "error", err)
		}

		a.sleep(a.cfg.Timing.MotionSettle())

		pos, err := a.driver.PresentPosition(ctx, id)
		if err != nil {
			log.Warn("position read failed", "iteration", i+1, "target", int(target), "error", err)
			continue
		}
		log.Debug("position read", "iteration", i+1, "target", int(target), "current", int(pos))
		target = pos
		a.track(id, pos)
	}

	return nil
}

func (a *Arm) establishMode(ctx context.Context, id bus.ActuatorID, log *slog.Logger) error {
	lo, hi := a.cfg.Joints.Limits(id)
	err := a.driver.SetJointMode(ctx, id, lo, hi)
	if err == nil {
		a.setState(id, StateCommandable)
		return nil
	}

	log.Warn("failed to set joint mode", "error", err)
	a.setState(id, StateSuspect)

	out := a.recoverer.ForceEnable(ctx, id)
	a.applyRecovery(id, out, StateUnrecoverable)
	if !out.Recovered() {
		return fmt.Errorf("%w: %w", ErrModeEstablish, out.Err)
	}

	if err := a.driver.SetJointMode(ctx, id, lo, hi); err != nil {
		log.Error("joint mode refused after recovery", "error", err)
		a.setState(id, StateUnrecoverable)
		return fmt.Errorf("%w: after recovery: %w", ErrModeEstablish, err)
	}
	return nil
}

// trackedPosition returns the registry's belief about id. A slot that has
// never been read or commanded is seeded from the actuator.
func (a *Arm) trackedPosition(ctx context.Context, id bus.ActuatorID) bus.Ticks {
	if pos, ok := a.registry.Position(id); ok {
		return pos
	}
	pos, err := a.driver.PresentPosition(ctx, id)
	if err != nil {
		return 0
	}
	a.track(id, pos)
	return pos
}

// track stores pos for registered IDs only; other IDs are tracked by the
// caller for the length of one call.
func (a *Arm) track(id bus.ActuatorID, pos bus.Ticks) {
	if !a.registry.Contains(id) {
		return
	}
	if err := a.registry.SetPosition(id, pos); err != nil {
		a.jointLog(id).Error("position not recorded", "error", err)
	}
}

func (a *Arm) setState(id bus.ActuatorID, s JointState) {
	if a.registry.Contains(id) {
		a.registry.SetState(id, s)
	}
}

// applyRecovery records what a recovery attempt learned. failed is the
// state given to the actuator when the attempt did not recover it.
func (a *Arm) applyRecovery(id bus.ActuatorID, out recovery.Outcome, failed JointState) {
	if out.HasPosition {
		a.track(id, out.Position)
	}
	if out.Recovered() {
		a.setState(id, StateCommandable)
	} else {
		a.setState(id, failed)
	}
}

// ResetActuator runs tier-1 recovery on id: reboot, wait, ping, joint mode.
func (a *Arm) ResetActuator(ctx context.Context, id bus.ActuatorID) error {
	out := a.recoverer.ResetActuator(ctx, id)
	a.applyRecovery(id, out, StateSuspect)
	if !out.Recovered() {
		return fmt.Errorf("reset %d: %w", id, out.Err)
	}
	return nil
}

// ForceEnable runs tier-2 recovery on id, which starts with tier 1.
func (a *Arm) ForceEnable(ctx context.Context, id bus.ActuatorID) error {
	out := a.recoverer.ForceEnable(ctx, id)
	a.applyRecovery(id, out, StateUnrecoverable)
	if !out.Recovered() {
		return fmt.Errorf("force enable %d: %w", id, out.Err)
	}
	return nil
}
