package calibrate

import "fmt"

// NumJoints is the number of joints in every supported servo group.
const NumJoints = 6

// Raw holds one unsigned encoder reading per joint, in group order.
type Raw [NumJoints]uint32

// Positions holds one signed value per joint, in group order. It is used for
// angles, quantized positions, targets and homing offsets alike.
type Positions [NumJoints]int

// Flags holds one inversion flag per joint, in group order.
type Flags [NumJoints]bool

// DriveModes converts the flags into the firmware drive mode values
// (1 inverted, 0 normal).
func (f Flags) DriveModes() [NumJoints]int {
	var modes [NumJoints]int
	for i, inv := range f {
		if inv {
			modes[i] = 1
		}
	}
	return modes
}

// Reference poses held by the operator during calibration, in quantized units.
var (
	Pose1 = Positions{0, 0, Quantum, 0, -Quantum, 0}
	Pose2 = Positions{Quantum, Quantum, 0, -Quantum, 0, Quantum}
)

// OperatingMode is a logical servo operating mode. Transports translate it
// into the value their actuator family expects.
type OperatingMode int

const (
	// ModeExtendedPosition tracks multiple turns instead of wrapping within
	// a single rotation.
	ModeExtendedPosition OperatingMode = iota + 1
)

func (m OperatingMode) String() string {
	switch m {
	case ModeExtendedPosition:
		return "extended_position"
	default:
		return fmt.Sprintf("OperatingMode(%d)", int(m))
	}
}

// Stage identifies a step of the calibration procedure.
type Stage int

const (
	StagePrepare Stage = iota
	StageAwaitPose1
	StageHomingPass1
	StageAwaitPose2
	StageResolveDriveMode
	StageAwaitPose1Again
	StageHomingPass2
	StageMonitor
)

var stageNames = [...]string{
	StagePrepare:          "prepare",
	StageAwaitPose1:       "await_pose_1",
	StageHomingPass1:      "homing_pass_1",
	StageAwaitPose2:       "await_pose_2",
	StageResolveDriveMode: "resolve_drive_mode",
	StageAwaitPose1Again:  "await_pose_1_again",
	StageHomingPass2:      "homing_pass_2",
	StageMonitor:          "monitor",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}
