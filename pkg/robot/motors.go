// Package robot provides the servo groups of the supported arms and a
// transport that drives them.
package robot

import (
	"fmt"
	"strings"

	"github.com/gwillem/lcr/pkg/calibrate"
)

// MotorName identifies a motor in the arm.
type MotorName string

// Motor names, shared by all variants.
const (
	ShoulderPan  MotorName = "shoulder_pan"
	ShoulderLift MotorName = "shoulder_lift"
	ElbowFlex    MotorName = "elbow_flex"
	WristFlex    MotorName = "wrist_flex"
	WristRoll    MotorName = "wrist_roll"
	Gripper      MotorName = "gripper"
)

// AllMotors returns all motor names in group order.
func AllMotors() []MotorName {
	return []MotorName{
		ShoulderPan,
		ShoulderLift,
		ElbowFlex,
		WristFlex,
		WristRoll,
		Gripper,
	}
}

// Family identifies an actuator family. Servos of one family are addressed
// together with a single sync read or write.
type Family string

const (
	FamilyXL330   Family = "xl330"
	FamilyXL430   Family = "xl430"
	FamilySTS3215 Family = "sts3215"
)

// Dynamixel reports whether the family speaks Dynamixel Protocol 2.0.
func (f Family) Dynamixel() bool {
	return f == FamilyXL330 || f == FamilyXL430
}

// Joint binds a motor to a physical servo.
type Joint struct {
	Name   MotorName
	Family Family
	ID     int
}

// Variant names a supported arm build.
type Variant string

const (
	// VariantPuppet is the follower arm: XL430 on the two shoulder joints,
	// XL330 elsewhere.
	VariantPuppet Variant = "puppet"
	// VariantMaster is the leader arm, XL330 throughout.
	VariantMaster Variant = "master"
	// VariantSO101 is an SO-101 arm with Feetech STS3215 servos.
	VariantSO101 Variant = "so101"
)

var variantJoints = map[Variant][calibrate.NumJoints]Joint{
	VariantPuppet: {
		{ShoulderPan, FamilyXL430, 1},
		{ShoulderLift, FamilyXL430, 2},
		{ElbowFlex, FamilyXL330, 3},
		{WristFlex, FamilyXL330, 4},
		{WristRoll, FamilyXL330, 5},
		{Gripper, FamilyXL330, 6},
	},
	VariantMaster: uniformJoints(FamilyXL330),
	VariantSO101:  uniformJoints(FamilySTS3215),
}

func uniformJoints(f Family) [calibrate.NumJoints]Joint {
	var joints [calibrate.NumJoints]Joint
	for i, name := range AllMotors() {
		joints[i] = Joint{Name: name, Family: f, ID: i + 1}
	}
	return joints
}

// Variants returns the supported variants.
func Variants() []Variant {
	return []Variant{VariantPuppet, VariantMaster, VariantSO101}
}

// Joints returns the servo group of the variant in group order.
func (v Variant) Joints() ([calibrate.NumJoints]Joint, error) {
	joints, ok := variantJoints[v]
	if !ok {
		return joints, &calibrate.ConfigurationError{Reason: fmt.Sprintf("unknown arm variant %q", v)}
	}
	return joints, nil
}

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if _, err := v.Joints(); err != nil {
		return "", err
	}
	return v, nil
}

// SelectVariant picks the variant from mutually exclusive selection flags.
func SelectVariant(puppet, master, so101 bool) (Variant, error) {
	var selected []Variant
	if puppet {
		selected = append(selected, VariantPuppet)
	}
	if master {
		selected = append(selected, VariantMaster)
	}
	if so101 {
		selected = append(selected, VariantSO101)
	}

	switch len(selected) {
	case 1:
		return selected[0], nil
	case 0:
		return "", &calibrate.ConfigurationError{Reason: "select one arm: --puppet, --master or --so101"}
	default:
		return "", &calibrate.ConfigurationError{Reason: fmt.Sprintf("only one arm can be configured at a time, got %v", selected)}
	}
}
