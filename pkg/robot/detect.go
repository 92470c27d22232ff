package robot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/lcr/pkg/calibrate"
	"github.com/gwillem/lcr/pkg/dynamixel"
)

// FoundServo is a servo that answered a scan.
type FoundServo struct {
	ID     int
	Model  string
	Family Family
}

type pinger interface {
	Ping(ctx context.Context, id int) (uint16, error)
}

// ScanDynamixel pings IDs 1-6 on port.
func ScanDynamixel(ctx context.Context, port string) ([]FoundServo, error) {
	bus, err := dynamixel.NewBus(dynamixel.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Timeout:  20 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	return pingAll(ctx, bus)
}

func pingAll(ctx context.Context, bus pinger) ([]FoundServo, error) {
	var found []FoundServo
	for id := 1; id <= calibrate.NumJoints; id++ {
		number, err := bus.Ping(ctx, id)
		if errors.Is(err, dynamixel.ErrTimeout) {
			continue
		}
		if err != nil {
			return found, fmt.Errorf("ping %d: %w", id, err)
		}
		found = append(found, dynamixelServo(id, number))
	}
	return found, nil
}

func dynamixelServo(id int, number uint16) FoundServo {
	s := FoundServo{ID: id, Model: fmt.Sprintf("model %d", number)}
	m, ok := dynamixel.ModelByNumber(number)
	if !ok {
		return s
	}
	s.Model = m.Name
	switch m.Number {
	case dynamixel.XL330M077.Number, dynamixel.XL330M288.Number:
		s.Family = FamilyXL330
	case dynamixel.XL430W250.Number:
		s.Family = FamilyXL430
	}
	return s
}

// ScanFeetech scans IDs 1-6 on port using the Feetech STS protocol.
func ScanFeetech(ctx context.Context, port string) ([]FoundServo, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	servos, err := bus.Scan(ctx, 1, calibrate.NumJoints)
	if err != nil {
		return nil, err
	}

	found := make([]FoundServo, 0, len(servos))
	for _, s := range servos {
		model := fmt.Sprintf("model %d", s.ModelNumber)
		if s.Model != nil {
			model = s.Model.Name
		}
		found = append(found, FoundServo{
			ID:     s.ID,
			Model:  model,
			Family: FamilySTS3215,
		})
	}
	return found, nil
}

// MatchVariant returns the variant whose servo group matches found exactly.
func MatchVariant(found []FoundServo) (Variant, bool) {
	if len(found) != calibrate.NumJoints {
		return "", false
	}
	byID := make(map[int]Family, len(found))
	for _, s := range found {
		byID[s.ID] = s.Family
	}

	for _, v := range Variants() {
		joints, _ := v.Joints()
		match := true
		for _, j := range joints {
			if f, ok := byID[j.ID]; !ok || f != j.Family {
				match = false
				break
			}
		}
		if match {
			return v, true
		}
	}
	return "", false
}
