package robot

import (
	"context"
	"fmt"
	"sync"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/lcr/pkg/calibrate"
)

// stsOffsetRegister holds the STS3215 homing offset. The servo subtracts it
// from the encoder reading.
const stsOffsetRegister = "position_offset"

// stsGroup is the sync read/write side of a feetech.ServoGroup.
type stsGroup interface {
	Positions(ctx context.Context) (feetech.PositionMap, error)
	SetPositions(ctx context.Context, positions feetech.PositionMap) error
}

// stsServo is the single-servo side of a feetech.Servo.
type stsServo interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	SetOperatingMode(ctx context.Context, mode int) error
	WriteRegister(ctx context.Context, name string, data []byte) error
}

// feetechDriver drives STS3215 servos. The STS has no drive mode register,
// so inversion is applied here and persisted in the calibration file.
//
// Positions wrap every turn. Readings are reported centred on zero, and
// homing offsets are reduced to one turn before they reach the offset
// register. Counts the register cannot hold are kept as a residual and
// applied in software.
type feetechDriver struct {
	group  stsGroup
	servos map[int]stsServo
	turn   int

	mu       sync.Mutex
	inverted map[int]bool
	residual map[int]int
}

func newFeetechDriver(bus *feetech.Bus, found []feetech.FoundServo, cal Calibration) *feetechDriver {
	servos := make(map[int]stsServo, len(found))
	ids := make([]int, 0, len(found))
	for _, s := range found {
		servos[s.ID] = feetech.NewServo(bus, s.ID, s.Model)
		ids = append(ids, s.ID)
	}
	return newFeetechDriverWith(feetech.NewServoGroupByIDs(bus, ids...), servos, cal)
}

func newFeetechDriverWith(group stsGroup, servos map[int]stsServo, cal Calibration) *feetechDriver {
	d := &feetechDriver{
		group:    group,
		servos:   servos,
		turn:     feetech.ModelSTS3215.Resolution,
		inverted: cal.InvertedIDs(),
		residual: make(map[int]int),
	}
	for _, mc := range cal {
		_, d.residual[mc.ID] = d.splitOffset(mc.HomingOffset)
	}
	return d
}

func (d *feetechDriver) servo(id int) (stsServo, error) {
	s, ok := d.servos[id]
	if !ok {
		return nil, fmt.Errorf("servo %d not found on bus", id)
	}
	return s, nil
}

func (d *feetechDriver) state(id int) (inverted bool, residual int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inverted[id], d.residual[id]
}

func (d *feetechDriver) ReadPositions(ctx context.Context, ids []int) ([]uint32, error) {
	raw, err := d.group.Positions(ctx)
	if err != nil {
		return nil, err
	}
	pos := make([]uint32, len(ids))
	for i, id := range ids {
		p, ok := raw[id]
		if !ok {
			return nil, fmt.Errorf("no position from servo %d", id)
		}
		inverted, residual := d.state(id)
		p = wrapCentered(p+residual, d.turn)
		if inverted {
			p = -p
		}
		pos[i] = calibrate.Encode(p)
	}
	return pos, nil
}

func (d *feetechDriver) Write(ctx context.Context, reg Register, ids []int, values []int) error {
	if len(ids) != len(values) {
		return fmt.Errorf("write %s: %d ids for %d values", reg, len(ids), len(values))
	}

	switch reg {
	case RegDriveMode:
		d.mu.Lock()
		for i, id := range ids {
			d.inverted[id] = values[i] != 0
		}
		d.mu.Unlock()
		return nil

	case RegGoalPosition:
		goals := make(feetech.PositionMap, len(ids))
		for i, id := range ids {
			inverted, residual := d.state(id)
			g := values[i]
			if inverted {
				g = -g
			}
			goals[id] = wrapTurn(g-residual, d.turn)
		}
		return d.group.SetPositions(ctx, goals)
	}

	for i, id := range ids {
		s, err := d.servo(id)
		if err != nil {
			return err
		}
		if err := d.writeOne(ctx, s, id, reg, values[i]); err != nil {
			return fmt.Errorf("servo %d: %w", id, err)
		}
	}
	return nil
}

func (d *feetechDriver) writeOne(ctx context.Context, s stsServo, id int, reg Register, v int) error {
	switch reg {
	case RegTorqueEnable:
		if v != 0 {
			return s.Enable(ctx)
		}
		return s.Disable(ctx)
	case RegOperatingMode:
		if calibrate.OperatingMode(v) != calibrate.ModeExtendedPosition {
			return fmt.Errorf("unsupported operating mode %s", calibrate.OperatingMode(v))
		}
		return s.SetOperatingMode(ctx, feetech.ModePosition)
	case RegHomingOffset:
		hw, residual := d.splitOffset(v)
		// Negated: the servo subtracts its offset, the transport adds it.
		b, err := stsOffset(-hw)
		if err != nil {
			return err
		}
		if err := s.WriteRegister(ctx, stsOffsetRegister, b); err != nil {
			return err
		}
		d.mu.Lock()
		d.residual[id] = residual
		d.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("unsupported register %s", reg)
	}
}

// splitOffset reduces a homing offset to one turn and splits it into the
// part the offset register holds and the remainder.
func (d *feetechDriver) splitOffset(h int) (hw, residual int) {
	limit := stsOffsetLimit()
	w := wrapCentered(h, d.turn)
	hw = min(max(w, -limit), limit)
	return hw, w - hw
}

// wrapCentered reduces v modulo n into [-n/2, n/2).
func wrapCentered(v, n int) int {
	return wrapTurn(v+n/2, n) - n/2
}

// wrapTurn reduces v modulo n into [0, n).
func wrapTurn(v, n int) int {
	return (v%n + n) % n
}

func stsOffsetLimit() int {
	return 1<<feetech.RegPositionOffset.SignBit - 1
}

// stsOffset encodes a homing offset in the STS sign-magnitude format.
func stsOffset(v int) ([]byte, error) {
	limit := stsOffsetLimit()
	mag := v
	if mag < 0 {
		mag = -mag
	}
	if mag > limit {
		return nil, fmt.Errorf("homing offset %d out of range ±%d", v, limit)
	}
	u := uint16(mag)
	if v < 0 {
		u |= 1 << feetech.RegPositionOffset.SignBit
	}
	return []byte{byte(u), byte(u >> 8)}, nil
}
