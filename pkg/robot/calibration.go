package robot

import (
	"fmt"
	"math"

	"github.com/gwillem/lcr/pkg/calibrate"
)

// CountsPerTurn is the encoder resolution of all supported servos.
const CountsPerTurn = 4 * calibrate.Quantum

// MotorCalibration holds calibration data for a single motor.
type MotorCalibration struct {
	ID           int    `json:"id" yaml:"id"`
	Family       Family `json:"family" yaml:"family"`
	DriveMode    int    `json:"drive_mode" yaml:"drive_mode"`
	HomingOffset int    `json:"homing_offset" yaml:"homing_offset"`
}

// Inverted reports whether the motor turns against the logical direction.
func (c MotorCalibration) Inverted() bool {
	return c.DriveMode != 0
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// NewCalibration records a calibration result for the given servo group.
func NewCalibration(joints [calibrate.NumJoints]Joint, res calibrate.Result) Calibration {
	modes := res.Inverted.DriveModes()
	cal := make(Calibration, len(joints))
	for i, j := range joints {
		cal[j.Name] = MotorCalibration{
			ID:           j.ID,
			Family:       j.Family,
			DriveMode:    modes[i],
			HomingOffset: res.Offsets[i],
		}
	}
	return cal
}

// Validate checks that the calibration was recorded for the given group.
func (c Calibration) Validate(joints [calibrate.NumJoints]Joint) error {
	for _, j := range joints {
		mc, ok := c[j.Name]
		if !ok {
			return fmt.Errorf("no calibration for %s", j.Name)
		}
		if mc.ID != j.ID || mc.Family != j.Family {
			return fmt.Errorf("calibration for %s is for %s servo %d, arm has %s servo %d",
				j.Name, mc.Family, mc.ID, j.Family, j.ID)
		}
	}
	return nil
}

// InvertedIDs returns the IDs of the motors with an inverted drive mode.
func (c Calibration) InvertedIDs() map[int]bool {
	ids := make(map[int]bool)
	for _, mc := range c {
		if mc.Inverted() {
			ids[mc.ID] = true
		}
	}
	return ids
}

// ToDegrees converts a calibrated position in counts to degrees.
func ToDegrees(counts int) float64 {
	return float64(counts) * 360 / CountsPerTurn
}

// FromDegrees converts degrees to the nearest position in counts.
func FromDegrees(deg float64) int {
	return int(math.Round(deg * CountsPerTurn / 360))
}
