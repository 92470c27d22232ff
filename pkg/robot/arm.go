package robot

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/lcr/pkg/calibrate"
	"github.com/gwillem/lcr/pkg/dynamixel"
)

// familyGroup is the slice of the servo group handled by one driver.
type familyGroup struct {
	family  Family
	driver  Driver
	ids     []int
	indices []int
}

// Arm represents a robot arm with multiple servos. It implements
// calibrate.Transport by splitting every group call into one call per
// actuator family.
type Arm struct {
	variant Variant
	joints  [calibrate.NumJoints]Joint
	groups  []familyGroup
	closers []io.Closer
	logger  *zap.Logger
}

// ArmOption configures an Arm.
type ArmOption func(*Arm)

// WithArmLogger sets the logger used for bus traffic.
func WithArmLogger(logger *zap.Logger) ArmOption {
	return func(a *Arm) { a.logger = logger }
}

// NewArm creates an arm for variant from one driver per family it uses.
func NewArm(variant Variant, drivers map[Family]Driver, opts ...ArmOption) (*Arm, error) {
	joints, err := variant.Joints()
	if err != nil {
		return nil, err
	}

	a := &Arm{variant: variant, joints: joints, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}

	byFamily := make(map[Family]int)
	for i, j := range joints {
		g, ok := byFamily[j.Family]
		if !ok {
			d, ok := drivers[j.Family]
			if !ok {
				return nil, fmt.Errorf("no driver for %s servos", j.Family)
			}
			g = len(a.groups)
			byFamily[j.Family] = g
			a.groups = append(a.groups, familyGroup{family: j.Family, driver: d})
		}
		a.groups[g].ids = append(a.groups[g].ids, j.ID)
		a.groups[g].indices = append(a.groups[g].indices, i)
	}

	return a, nil
}

// OpenArm opens the serial bus on port and creates an arm for variant. The
// calibration is only needed for families that keep their drive mode in
// software and may be nil.
func OpenArm(port string, variant Variant, cal Calibration, opts ...ArmOption) (*Arm, error) {
	joints, err := variant.Joints()
	if err != nil {
		return nil, err
	}

	if joints[0].Family.Dynamixel() {
		return openDynamixelArm(port, variant, opts...)
	}
	return openFeetechArm(port, variant, cal, opts...)
}

func openDynamixelArm(port string, variant Variant, opts ...ArmOption) (*Arm, error) {
	bus, err := dynamixel.NewBus(dynamixel.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	drivers := map[Family]Driver{
		FamilyXL330: newDynamixelDriver(bus, dynamixel.XL330M288),
		FamilyXL430: newDynamixelDriver(bus, dynamixel.XL430W250),
	}
	arm, err := NewArm(variant, drivers, opts...)
	if err != nil {
		bus.Close()
		return nil, err
	}
	arm.closers = append(arm.closers, bus)
	return arm, nil
}

func openFeetechArm(port string, variant Variant, cal Calibration, opts ...ArmOption) (*Arm, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	found, err := bus.Scan(ctx, 1, calibrate.NumJoints)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("scan bus: %w", err)
	}

	drivers := map[Family]Driver{
		FamilySTS3215: newFeetechDriver(bus, found, cal),
	}
	arm, err := NewArm(variant, drivers, opts...)
	if err != nil {
		bus.Close()
		return nil, err
	}
	arm.closers = append(arm.closers, bus)
	return arm, nil
}

// Close closes the arm's bus connection.
func (a *Arm) Close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// Variant returns the arm variant.
func (a *Arm) Variant() Variant {
	return a.variant
}

// Joints returns the servo group in group order.
func (a *Arm) Joints() [calibrate.NumJoints]Joint {
	return a.joints
}

// ReadPositions reads the raw present position of every joint.
func (a *Arm) ReadPositions(ctx context.Context) (calibrate.Raw, error) {
	var raw calibrate.Raw
	for _, g := range a.groups {
		pos, err := g.driver.ReadPositions(ctx, g.ids)
		if err != nil {
			return raw, fmt.Errorf("read %s positions: %w", g.family, err)
		}
		if len(pos) != len(g.ids) {
			return raw, fmt.Errorf("read %s positions: got %d values for %d servos", g.family, len(pos), len(g.ids))
		}
		for k, i := range g.indices {
			raw[i] = pos[k]
		}
	}
	return raw, nil
}

// WriteHomingOffsets writes one homing offset per joint.
func (a *Arm) WriteHomingOffsets(ctx context.Context, offsets calibrate.Positions) error {
	return a.write(ctx, RegHomingOffset, offsets)
}

// WriteDriveModes writes the drive mode of every joint.
func (a *Arm) WriteDriveModes(ctx context.Context, inverted calibrate.Flags) error {
	return a.write(ctx, RegDriveMode, inverted.DriveModes())
}

// WriteTorqueEnable enables or disables torque on every joint.
func (a *Arm) WriteTorqueEnable(ctx context.Context, enabled bool) error {
	var v calibrate.Positions
	if enabled {
		v = calibrate.Positions{1, 1, 1, 1, 1, 1}
	}
	return a.write(ctx, RegTorqueEnable, v)
}

// WriteOperatingMode sets the operating mode of every joint.
func (a *Arm) WriteOperatingMode(ctx context.Context, mode calibrate.OperatingMode) error {
	var v calibrate.Positions
	for i := range v {
		v[i] = int(mode)
	}
	return a.write(ctx, RegOperatingMode, v)
}

// WriteGoalPositions writes the goal position of every joint.
func (a *Arm) WriteGoalPositions(ctx context.Context, goals calibrate.Positions) error {
	return a.write(ctx, RegGoalPosition, goals)
}

func (a *Arm) write(ctx context.Context, reg Register, values [calibrate.NumJoints]int) error {
	for _, g := range a.groups {
		v := make([]int, len(g.indices))
		for k, i := range g.indices {
			v[k] = values[i]
		}
		a.logger.Debug("sync write",
			zap.Stringer("register", reg),
			zap.String("family", string(g.family)),
			zap.Ints("ids", g.ids),
			zap.Ints("values", v))
		if err := g.driver.Write(ctx, reg, g.ids, v); err != nil {
			return fmt.Errorf("write %s %s: %w", g.family, reg, err)
		}
	}
	return nil
}

// Enable enables torque on all servos.
func (a *Arm) Enable(ctx context.Context) error {
	return a.WriteTorqueEnable(ctx, true)
}

// Disable disables torque on all servos.
func (a *Arm) Disable(ctx context.Context) error {
	return a.WriteTorqueEnable(ctx, false)
}

// ReadAngles reads the calibrated position of every motor in degrees.
func (a *Arm) ReadAngles(ctx context.Context) (map[MotorName]float64, error) {
	raw, err := a.ReadPositions(ctx)
	if err != nil {
		return nil, err
	}
	pos := calibrate.DecodeAll(raw)

	angles := make(map[MotorName]float64, len(a.joints))
	for i, j := range a.joints {
		angles[j.Name] = ToDegrees(pos[i])
	}
	return angles, nil
}

// WriteAngles writes goal positions in degrees. Motors missing from angles
// keep their present position.
func (a *Arm) WriteAngles(ctx context.Context, angles map[MotorName]float64) error {
	var (
		goals   calibrate.Positions
		present calibrate.Positions
		loaded  bool
	)
	for i, j := range a.joints {
		deg, ok := angles[j.Name]
		if ok {
			goals[i] = FromDegrees(deg)
			continue
		}
		if !loaded {
			raw, err := a.ReadPositions(ctx)
			if err != nil {
				return err
			}
			present = calibrate.DecodeAll(raw)
			loaded = true
		}
		goals[i] = present[i]
	}
	return a.WriteGoalPositions(ctx, goals)
}
