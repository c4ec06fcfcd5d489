package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/gwillem/armctl/pkg/bus"
	"github.com/gwillem/armctl/pkg/logging"
	"github.com/gwillem/armctl/pkg/robot"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"armctl.json" description:"Configuration file"`
	Port     string `short:"p" long:"port" description:"Serial port (overrides config)"`
	LogLevel string `short:"l" long:"log-level" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level (overrides config)"`

	Ports       PortsCommand       `command:"ports" description:"List serial ports and the actuators answering on them"`
	Setup       SetupCommand       `command:"setup" description:"Select the arm's port and record joint ranges"`
	Scan        ScanCommand        `command:"scan" alias:"discover" description:"Discover actuators, retrying until the arm is complete"`
	Move        MoveCommand        `command:"move" description:"Move one joint by a relative number of ticks"`
	Reset       ResetCommand       `command:"reset" description:"Reboot an actuator and restore joint mode"`
	ForceEnable ForceEnableCommand `command:"force-enable" description:"Reset an actuator, then force torque and verify it moves"`
	Status      StatusCommand      `command:"status" description:"Read every actuator once"`
	Monitor     MonitorCommand     `command:"monitor" description:"Live position chart with joint control"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "armctl - servo chain control for WX250-class arms"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Port != "" {
		cfg.Bus.Port = opts.Port
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	return cfg, nil
}

// newLogger logs to stderr and, when configured, to the JSON log file.
func newLogger(cfg *robot.Config, ch *logging.ChannelHandler) (*logging.Logger, error) {
	o := logging.Options{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Channel: ch,
	}
	if ch == nil {
		o.Console = os.Stderr
	}
	return logging.New(o)
}

// session is a configured arm with its logger.
type session struct {
	cfg *robot.Config
	log *logging.Logger
	arm *robot.Arm
}

func openSession(ch *logging.ChannelHandler) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Bus.Port == "" {
		return nil, fmt.Errorf("no serial port configured; run 'armctl setup' or pass --port")
	}
	log, err := newLogger(cfg, ch)
	if err != nil {
		return nil, err
	}
	driver := bus.NewFeetech(cfg.Bus.Timeout())
	return &session{
		cfg: cfg,
		log: log,
		arm: robot.NewArm(cfg, driver, log.Logger),
	}, nil
}

// discover registers whatever answers on the bus.
func (s *session) discover(ctx context.Context) error {
	n, err := s.arm.Discover(ctx, false)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no actuators found on %s", s.cfg.Bus.Port)
	}
	return nil
}

func (s *session) Close() {
	s.arm.Close()
	s.log.Close()
}
