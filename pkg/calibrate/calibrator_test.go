package calibrate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// simArm models an arm whose servos report s*(p+h), where p is the physical
// encoder angle, h the homing offset and s = -1 when the drive mode is
// inverted. Joints marked in mirrored turn the opposite way from the logical
// convention.
type simArm struct {
	base     Positions
	mirrored Flags
	noise    Positions
	pose     Positions

	driveModes Flags
	offsets    Positions
	torque     bool
	mode       OperatingMode

	calls  []string
	failAt int // 1-based call number that fails, 0 for never
}

func newSimArm(mirrored Flags) *simArm {
	return &simArm{
		base:     Positions{2048, -4096, 1024, 0, 3072, -2048},
		mirrored: mirrored,
		torque:   true,
	}
}

// hold moves the arm into a reference pose with some assembly slack.
func (a *simArm) hold(pose, noise Positions) {
	a.pose = pose
	a.noise = noise
}

func (a *simArm) physical(i int) int {
	delta := a.pose[i] - Pose1[i]
	if a.mirrored[i] {
		delta = -delta
	}
	return a.base[i] + delta + a.noise[i]
}

func (a *simArm) reported() Positions {
	var pos Positions
	for i := range pos {
		v := a.physical(i) + a.offsets[i]
		if a.driveModes[i] {
			v = -v
		}
		pos[i] = v
	}
	return pos
}

func (a *simArm) call(op string) error {
	a.calls = append(a.calls, op)
	if a.failAt == len(a.calls) {
		return errors.New("timeout")
	}
	return nil
}

func (a *simArm) ReadPositions(ctx context.Context) (Raw, error) {
	if err := a.call("read"); err != nil {
		return Raw{}, err
	}
	var raw Raw
	for i, p := range a.reported() {
		raw[i] = Encode(p)
	}
	return raw, nil
}

func (a *simArm) WriteHomingOffsets(ctx context.Context, offsets Positions) error {
	if err := a.call("homing_offset"); err != nil {
		return err
	}
	a.offsets = offsets
	return nil
}

func (a *simArm) WriteDriveModes(ctx context.Context, inverted Flags) error {
	if err := a.call("drive_mode"); err != nil {
		return err
	}
	a.driveModes = inverted
	return nil
}

func (a *simArm) WriteTorqueEnable(ctx context.Context, enabled bool) error {
	if err := a.call("torque_enable"); err != nil {
		return err
	}
	a.torque = enabled
	return nil
}

func (a *simArm) WriteOperatingMode(ctx context.Context, mode OperatingMode) error {
	if err := a.call("operating_mode"); err != nil {
		return err
	}
	a.mode = mode
	return nil
}

// scriptedOperator moves the simulated arm into the pose each wait asks for.
func scriptedOperator(arm *simArm) (Operator, *[]Stage) {
	var stages []Stage
	return OperatorFunc(func(ctx context.Context, stage Stage) error {
		stages = append(stages, stage)
		switch stage {
		case StageAwaitPose1:
			arm.hold(Pose1, Positions{37, -120, 200, -15, 90, 0})
		case StageAwaitPose2:
			arm.hold(Pose2, Positions{-60, 150, -30, 100, -210, 45})
		case StageAwaitPose1Again:
			arm.hold(Pose1, Positions{10, -5, 60, -80, 30, -100})
		default:
			return fmt.Errorf("unexpected stage %s", stage)
		}
		return nil
	}), &stages
}

var calibrationCalls = []string{
	"torque_enable", "operating_mode", "drive_mode", "homing_offset", // prepare
	"homing_offset", "read", "homing_offset", // homing pass 1
	"read", "drive_mode", // resolve drive mode
	"homing_offset", "read", "homing_offset", // homing pass 2
}

func TestCalibrator_Calibrate(t *testing.T) {
	mirrorPatterns := []Flags{
		{},
		{true, false, false, false, false, false},
		{false, false, true, false, true, false},
		{true, true, true, true, true, true},
	}

	for _, mirrored := range mirrorPatterns {
		t.Run(fmt.Sprint(mirrored), func(t *testing.T) {
			arm := newSimArm(mirrored)
			op, stages := scriptedOperator(arm)

			res, err := New(arm, op).Calibrate(context.Background())
			require.NoError(t, err)

			assert.Equal(t, []Stage{StageAwaitPose1, StageAwaitPose2, StageAwaitPose1Again}, *stages)
			assert.Equal(t, calibrationCalls, arm.calls)
			assert.False(t, arm.torque)
			assert.Equal(t, ModeExtendedPosition, arm.mode)

			assert.Equal(t, mirrored, res.Inverted)
			assert.Equal(t, mirrored, arm.driveModes)
			assert.Equal(t, res.Offsets, arm.offsets)

			// Reading pose 1 through the final offsets lands exactly on target.
			assert.Equal(t, Pose1, QuantizeAll(arm.reported()))

			arm.hold(Pose2, Positions{})
			assert.Equal(t, Pose2, arm.reported())
		})
	}
}

func TestCalibrator_TransportFailure(t *testing.T) {
	for n := 1; n <= len(calibrationCalls); n++ {
		t.Run(fmt.Sprintf("call %d %s", n, calibrationCalls[n-1]), func(t *testing.T) {
			arm := newSimArm(Flags{false, true, false, false, false, true})
			arm.failAt = n
			op, _ := scriptedOperator(arm)

			_, err := New(arm, op).Calibrate(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCommunication)

			var commErr *CommunicationError
			require.ErrorAs(t, err, &commErr)
			assert.EqualError(t, commErr.Err, "timeout")

			// Nothing is issued after the failing call.
			assert.Len(t, arm.calls, n)
		})
	}
}

func TestCalibrator_FailureStage(t *testing.T) {
	tests := []struct {
		failAt int
		stage  Stage
		op     string
	}{
		{1, StagePrepare, "disable torque"},
		{4, StagePrepare, "reset homing offsets"},
		{6, StageHomingPass1, "read positions"},
		{9, StageResolveDriveMode, "write drive modes"},
		{12, StageHomingPass2, "write homing offsets"},
	}

	for _, tt := range tests {
		arm := newSimArm(Flags{})
		arm.failAt = tt.failAt
		op, _ := scriptedOperator(arm)

		_, err := New(arm, op).Calibrate(context.Background())

		var commErr *CommunicationError
		require.ErrorAs(t, err, &commErr)
		assert.Equal(t, tt.stage, commErr.Stage)
		assert.Equal(t, tt.op, commErr.Op)
	}
}

func TestCalibrator_OperatorAbort(t *testing.T) {
	arm := newSimArm(Flags{})
	scripted, _ := scriptedOperator(arm)
	abort := errors.New("user aborted")

	op := OperatorFunc(func(ctx context.Context, stage Stage) error {
		if stage == StageAwaitPose2 {
			return abort
		}
		return scripted.Confirm(ctx, stage)
	})

	_, err := New(arm, op).Calibrate(context.Background())
	require.ErrorIs(t, err, abort)
	assert.NotErrorIs(t, err, ErrCommunication)
	assert.Equal(t, calibrationCalls[:7], arm.calls)
}

func TestCalibrator_Logging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	arm := newSimArm(Flags{})
	arm.failAt = 9
	op, _ := scriptedOperator(arm)

	_, err := New(arm, op, WithLogger(zap.New(core))).Calibrate(context.Background())
	require.Error(t, err)

	var stages []string
	for _, e := range logs.FilterMessage("entering stage").All() {
		stages = append(stages, e.ContextMap()["stage"].(string))
	}
	assert.Equal(t, []string{
		"prepare", "await_pose_1", "homing_pass_1", "await_pose_2", "resolve_drive_mode",
	}, stages)

	failures := logs.FilterMessage("transport failure").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "write drive modes", failures[0].ContextMap()["op"])
	assert.Equal(t, "resolve_drive_mode", failures[0].ContextMap()["stage"])
}

func TestCalibrator_Monitor(t *testing.T) {
	arm := newSimArm(Flags{})
	arm.hold(Pose2, Positions{1, -2, 3, -4, 5, -6})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reports []Positions
	reporter := ReporterFunc(func(pos Positions) {
		reports = append(reports, pos)
		if len(reports) == 3 {
			cancel()
		}
	})

	c := New(arm, OperatorFunc(func(context.Context, Stage) error { return nil }),
		WithMonitorInterval(time.Millisecond))
	err := c.Monitor(ctx, reporter)

	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, reports, 3)
	for _, r := range reports {
		assert.Equal(t, arm.reported(), r)
	}
}

func TestCalibrator_MonitorFailure(t *testing.T) {
	arm := newSimArm(Flags{})
	arm.failAt = 2

	var reports int
	c := New(arm, nil, WithMonitorInterval(time.Millisecond))
	err := c.Monitor(context.Background(), ReporterFunc(func(Positions) { reports++ }))

	var commErr *CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, StageMonitor, commErr.Stage)
	assert.Equal(t, 1, reports)
}

func TestCalibrator_Run(t *testing.T) {
	arm := newSimArm(Flags{false, false, false, true, false, false})
	op, _ := scriptedOperator(arm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var last Positions
	reporter := ReporterFunc(func(pos Positions) {
		last = pos
		cancel()
	})

	res, err := New(arm, op, WithMonitorInterval(time.Millisecond)).Run(ctx, reporter)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Flags{false, false, false, true, false, false}, res.Inverted)
	assert.Equal(t, Pose1, QuantizeAll(last))
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "resolve_drive_mode", StageResolveDriveMode.String())
	assert.Equal(t, "monitor", StageMonitor.String())
	assert.Equal(t, "Stage(42)", Stage(42).String())
}
