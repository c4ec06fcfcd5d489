// Package armctl controls a chain of Feetech serial-bus servos forming a
// WX250-class robot arm.
//
// It discovers the actuators on the bus, moves joints in short verified
// steps and recovers actuators that stop responding, first by rebooting them
// and then by forcing torque on and checking that they really move.
//
// # Installation
//
//	go install github.com/gwillem/armctl/cmd/armctl@latest
//
// # Usage
//
// First, run setup to find the arm's port and record joint ranges:
//
//	armctl setup
//
// Then discover the arm and drive it:
//
//	armctl scan
//	armctl move --id 5 --delta 50
//	armctl status
//	armctl monitor
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/armctl: CLI with setup, scan, move, recovery, status and monitor commands
//   - pkg/bus: Servo bus contract, Feetech driver and port probing
//   - pkg/robot: Actuator registry, arm controller, calibration, and configuration
//   - pkg/recovery: Tiered actuator recovery
//   - pkg/monitor: Polling loop for live display
//   - pkg/logging: slog fan-out to console, file and TUI
package armctl
