package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/gwillem/armctl/pkg/bus"
)

// Config holds the settings of a Recoverer.
type Config struct {
	Driver       bus.Driver
	RebootSettle time.Duration
	VerifySettle time.Duration
	VerifyOffset bus.Ticks
	Limits       LimitFunc
	Sleep        func(time.Duration) // defaults to time.Sleep
	Logger       *slog.Logger
}

// Recoverer applies the two recovery tiers to single actuators.
type Recoverer struct {
	driver bus.Driver
	log    *slog.Logger
	tier1  Chain
	tier2  Chain
}

// New builds a Recoverer from cfg.
func New(cfg Config) *Recoverer {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.VerifyOffset == 0 {
		cfg.VerifyOffset = 10
	}

	reset := Reset{
		Settle: cfg.RebootSettle,
		Sleep:  cfg.Sleep,
		Limits: cfg.Limits,
	}
	verify := Verify{
		Settle: cfg.VerifySettle,
		Offset: cfg.VerifyOffset,
		Sleep:  cfg.Sleep,
		Limits: cfg.Limits,
	}

	return &Recoverer{
		driver: cfg.Driver,
		log:    log,
		tier1:  Chain{reset},
		tier2:  Chain{reset, verify},
	}
}

// ResetActuator runs tier 1.
func (r *Recoverer) ResetActuator(ctx context.Context, id bus.ActuatorID) Outcome {
	log := r.log.With("actuator", int(id), "tier", 1)
	log.Info("resetting actuator")
	return r.tier1.Run(ctx, r.driver, id, log)
}

// ForceEnable runs tier 1 and escalates to a verified re-enable.
func (r *Recoverer) ForceEnable(ctx context.Context, id bus.ActuatorID) Outcome {
	log := r.log.With("actuator", int(id), "tier", 2)
	log.Info("force enabling actuator")
	return r.tier2.Run(ctx, r.driver, id, log)
}
