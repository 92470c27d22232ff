package robot

import (
	"context"
	"fmt"

	"github.com/gwillem/lcr/pkg/calibrate"
	"github.com/gwillem/lcr/pkg/dynamixel"
)

// Register is a logical servo parameter.
type Register int

const (
	RegTorqueEnable Register = iota
	RegOperatingMode
	RegDriveMode
	RegHomingOffset
	RegGoalPosition
)

func (r Register) String() string {
	switch r {
	case RegTorqueEnable:
		return "torque_enable"
	case RegOperatingMode:
		return "operating_mode"
	case RegDriveMode:
		return "drive_mode"
	case RegHomingOffset:
		return "homing_offset"
	case RegGoalPosition:
		return "goal_position"
	default:
		return fmt.Sprintf("Register(%d)", int(r))
	}
}

// Driver talks to the servos of one actuator family. Values and positions
// are index-aligned with ids. RegOperatingMode values are
// calibrate.OperatingMode and translated by the driver.
type Driver interface {
	ReadPositions(ctx context.Context, ids []int) ([]uint32, error)
	Write(ctx context.Context, reg Register, ids []int, values []int) error
}

// dynamixelDriver drives X-series servos over Protocol 2.0 sync instructions.
type dynamixelDriver struct {
	bus   *dynamixel.Bus
	table dynamixel.ControlTable
}

func newDynamixelDriver(bus *dynamixel.Bus, model dynamixel.Model) *dynamixelDriver {
	return &dynamixelDriver{bus: bus, table: model.Table}
}

func (d *dynamixelDriver) ReadPositions(ctx context.Context, ids []int) ([]uint32, error) {
	data, err := d.bus.SyncRead(ctx, d.table.PresentPosition, ids)
	if err != nil {
		return nil, err
	}
	pos := make([]uint32, len(data))
	for i, b := range data {
		pos[i] = dynamixel.DecodeValue(b)
	}
	return pos, nil
}

func (d *dynamixelDriver) Write(ctx context.Context, reg Register, ids []int, values []int) error {
	var entry dynamixel.Entry
	switch reg {
	case RegTorqueEnable:
		entry = d.table.TorqueEnable
	case RegDriveMode:
		entry = d.table.DriveMode
	case RegHomingOffset:
		entry = d.table.HomingOffset
	case RegGoalPosition:
		entry = d.table.GoalPosition
	case RegOperatingMode:
		entry = d.table.OperatingMode
		modes := make([]int, len(values))
		for i, v := range values {
			m, err := dynamixelOperatingMode(calibrate.OperatingMode(v))
			if err != nil {
				return err
			}
			modes[i] = m
		}
		values = modes
	default:
		return fmt.Errorf("unsupported register %s", reg)
	}
	return d.bus.SyncWrite(ctx, entry, ids, values)
}

func dynamixelOperatingMode(m calibrate.OperatingMode) (int, error) {
	switch m {
	case calibrate.ModeExtendedPosition:
		return dynamixel.OperatingModeExtendedPosition, nil
	default:
		return 0, fmt.Errorf("unsupported operating mode %s", m)
	}
}
