// Package lcr auto-configures low-cost robot arms and teleoperates them.
//
// Each arm is calibrated with a two-pose homing procedure that determines,
// per servo, a homing offset and a drive mode (direction inversion) so that
// raw encoder positions map onto a shared logical frame. Two calibrated arms
// can then be teleoperated master to puppet without any per-arm range mapping.
//
// # Installation
//
//	go install github.com/gwillem/lcr/cmd/lcr@latest
//
// # Usage
//
// Find connected arms:
//
//	lcr scan
//
// Calibrate each arm, following the on-screen pose prompts:
//
//	lcr configure --port /dev/ttyACM0 --puppet
//	lcr configure --port /dev/ttyACM1 --master
//
// Then start teleoperation:
//
//	lcr teleoperate
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/lcr: CLI with scan, configure and teleoperate commands
//   - pkg/calibrate: Angle codec, quantizer, inversion resolver, offset corrector and calibration state machine
//   - pkg/dynamixel: Dynamixel Protocol 2.0 bus
//   - pkg/robot: Servo groups, arm transport, calibration and configuration
//   - pkg/teleop: Teleoperation controller
package lcr
