package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gwillem/armctl/pkg/bus"
)

const DefaultConfigFile = "armctl.json"

// EnvPrefix prefixes environment overrides, e.g. ARMCTL_BUS_PORT.
const EnvPrefix = "ARMCTL"

// Config holds the controller configuration
type Config struct {
	Bus      BusConfig      `json:"bus" mapstructure:"bus"`
	Registry RegistryConfig `json:"registry" mapstructure:"registry"`
	Timing   TimingConfig   `json:"timing" mapstructure:"timing"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Joints   Calibration    `json:"joints,omitempty" mapstructure:"joints"`
}

// BusConfig selects and tunes the servo bus
type BusConfig struct {
	Port        string `json:"port" mapstructure:"port"`
	BaudRate    int    `json:"baud_rate" mapstructure:"baud_rate"`
	TimeoutMs   int    `json:"timeout_ms" mapstructure:"timeout_ms"`
	ScanCeiling int    `json:"scan_ceiling" mapstructure:"scan_ceiling"`
}

// RegistryConfig bounds the actuator registry
type RegistryConfig struct {
	// Capacity is the most actuators the registry will track
	Capacity int `json:"capacity" mapstructure:"capacity"`
	// MinRequired is the fleet size a waiting discovery insists on
	MinRequired int `json:"min_required" mapstructure:"min_required"`
}

// TimingConfig holds settle delays and retry bounds
type TimingConfig struct {
	MotionSettleMs    int `json:"motion_settle_ms" mapstructure:"motion_settle_ms"`
	RebootSettleMs    int `json:"reboot_settle_ms" mapstructure:"reboot_settle_ms"`
	VerifySettleMs    int `json:"verify_settle_ms" mapstructure:"verify_settle_ms"`
	DiscoverySettleMs int `json:"discovery_settle_ms" mapstructure:"discovery_settle_ms"`
	MaxAttempts       int `json:"max_attempts" mapstructure:"max_attempts"`
	MotionIterations  int `json:"motion_iterations" mapstructure:"motion_iterations"`
	// VerifyOffset is the test move used to confirm a recovered actuator
	VerifyOffset int `json:"verify_offset" mapstructure:"verify_offset"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	// File receives JSON records when set
	File string `json:"file,omitempty" mapstructure:"file"`
}

// DefaultConfig returns the configuration of the stock arm.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			BaudRate:    bus.DefaultBaudRate,
			TimeoutMs:   100,
			ScanCeiling: bus.ScanCeiling,
		},
		Registry: RegistryConfig{
			Capacity:    8,
			MinRequired: 4,
		},
		Timing: TimingConfig{
			MotionSettleMs:    100,
			RebootSettleMs:    1000,
			VerifySettleMs:    500,
			DiscoverySettleMs: 2000,
			MaxAttempts:       10,
			MotionIterations:  3,
			VerifyOffset:      10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Joints: DefaultCalibration(),
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Timeout returns the per-packet bus timeout
func (c BusConfig) Timeout() time.Duration { return ms(c.TimeoutMs) }

// MotionSettle returns the wait between a goal and its read-back
func (c TimingConfig) MotionSettle() time.Duration { return ms(c.MotionSettleMs) }

// RebootSettle returns the boot wait of tier-1 recovery
func (c TimingConfig) RebootSettle() time.Duration { return ms(c.RebootSettleMs) }

// VerifySettle returns the test-move wait of tier-2 recovery
func (c TimingConfig) VerifySettle() time.Duration { return ms(c.VerifySettleMs) }

// DiscoverySettle returns the wait between discovery attempts
func (c TimingConfig) DiscoverySettle() time.Duration { return ms(c.DiscoverySettleMs) }

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("bus.port", defaults.Bus.Port)
	v.SetDefault("bus.baud_rate", defaults.Bus.BaudRate)
	v.SetDefault("bus.timeout_ms", defaults.Bus.TimeoutMs)
	v.SetDefault("bus.scan_ceiling", defaults.Bus.ScanCeiling)

	v.SetDefault("registry.capacity", defaults.Registry.Capacity)
	v.SetDefault("registry.min_required", defaults.Registry.MinRequired)

	v.SetDefault("timing.motion_settle_ms", defaults.Timing.MotionSettleMs)
	v.SetDefault("timing.reboot_settle_ms", defaults.Timing.RebootSettleMs)
	v.SetDefault("timing.verify_settle_ms", defaults.Timing.VerifySettleMs)
	v.SetDefault("timing.discovery_settle_ms", defaults.Timing.DiscoverySettleMs)
	v.SetDefault("timing.max_attempts", defaults.Timing.MaxAttempts)
	v.SetDefault("timing.motion_iterations", defaults.Timing.MotionIterations)
	v.SetDefault("timing.verify_offset", defaults.Timing.VerifyOffset)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from path, layered over the defaults
// and under ARMCTL_* environment variables. A missing file is not an error.
func LoadConfigFrom(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Joints) == 0 {
		cfg.Joints = DefaultCalibration()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the controller cannot use.
func (c *Config) Validate() error {
	var errs []error
	if c.Bus.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("bus.baud_rate must be positive, got %d", c.Bus.BaudRate))
	}
	if c.Bus.ScanCeiling < 1 || c.Bus.ScanCeiling > bus.ScanCeiling {
		errs = append(errs, fmt.Errorf("bus.scan_ceiling must be in [1, %d], got %d", bus.ScanCeiling, c.Bus.ScanCeiling))
	}
	if c.Registry.Capacity < 1 || c.Registry.Capacity > bus.ScanCeiling {
		errs = append(errs, fmt.Errorf("registry.capacity must be in [1, %d], got %d", bus.ScanCeiling, c.Registry.Capacity))
	}
	if c.Registry.MinRequired < 0 || c.Registry.MinRequired > c.Registry.Capacity {
		errs = append(errs, fmt.Errorf("registry.min_required must be in [0, capacity], got %d", c.Registry.MinRequired))
	}
	if c.Timing.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("timing.max_attempts must be at least 1, got %d", c.Timing.MaxAttempts))
	}
	if c.Timing.MotionIterations < 1 {
		errs = append(errs, fmt.Errorf("timing.motion_iterations must be at least 1, got %d", c.Timing.MotionIterations))
	}
	for _, d := range []int{c.Timing.MotionSettleMs, c.Timing.RebootSettleMs, c.Timing.VerifySettleMs, c.Timing.DiscoverySettleMs} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("timing delays must not be negative, got %d", d))
			break
		}
	}
	for name, jc := range c.Joints {
		if !bus.ActuatorID(jc.ID).Valid() {
			errs = append(errs, fmt.Errorf("joints.%s.id %d out of range", name, jc.ID))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
