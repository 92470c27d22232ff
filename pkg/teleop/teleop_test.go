package teleop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gwillem/lcr/pkg/robot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeArm struct {
	mu       sync.Mutex
	angles   map[robot.MotorName]float64
	readErr  error
	torque   bool
	disabled int
	written  []map[robot.MotorName]float64
}

func (a *fakeArm) Enable(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.torque = true
	return nil
}

func (a *fakeArm) Disable(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.torque = false
	a.disabled++
	return nil
}

func (a *fakeArm) ReadAngles(ctx context.Context) (map[robot.MotorName]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.readErr != nil {
		return nil, a.readErr
	}
	return a.angles, nil
}

func (a *fakeArm) WriteAngles(ctx context.Context, angles map[robot.MotorName]float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.written = append(a.written, angles)
	return nil
}

func (a *fakeArm) writes() []map[robot.MotorName]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]map[robot.MotorName]float64(nil), a.written...)
}

// runUntilState starts the controller and stops it after the first state.
func runUntilState(t *testing.T, ctrl *Controller) State {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Start(ctx) }()

	var st State
	select {
	case st = <-ctrl.States():
	case <-time.After(2 * time.Second):
		t.Fatal("no state received")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	return st
}

func TestController_FollowsLeader(t *testing.T) {
	leader := &fakeArm{torque: true, angles: map[robot.MotorName]float64{
		robot.ShoulderPan: 12.5,
		robot.WristRoll:   -30,
		robot.Gripper:     45,
	}}
	follower := &fakeArm{}

	ctrl := NewController(leader, follower, Config{Hz: 200})
	st := runUntilState(t, ctrl)

	assert.NoError(t, st.Error)
	assert.Equal(t, leader.angles, st.Positions)
	assert.False(t, leader.torque, "leader must be passive")

	writes := follower.writes()
	require.NotEmpty(t, writes)
	assert.Equal(t, leader.angles, writes[0])
	assert.False(t, follower.torque, "follower torque is released on shutdown")
	assert.Equal(t, 1, follower.disabled)
}

func TestController_Mirror(t *testing.T) {
	leader := &fakeArm{angles: map[robot.MotorName]float64{
		robot.ShoulderPan:  12.5,
		robot.ShoulderLift: 20,
		robot.WristRoll:    -30,
	}}
	follower := &fakeArm{}

	ctrl := NewController(leader, follower, Config{Hz: 200, Mirror: true})
	runUntilState(t, ctrl)

	writes := follower.writes()
	require.NotEmpty(t, writes)
	assert.Equal(t, map[robot.MotorName]float64{
		robot.ShoulderPan:  -12.5,
		robot.ShoulderLift: 20,
		robot.WristRoll:    30,
	}, writes[0])
}

func TestController_ReadError(t *testing.T) {
	leader := &fakeArm{readErr: errors.New("timeout")}
	follower := &fakeArm{}

	ctrl := NewController(leader, follower, Config{Hz: 200})
	st := runUntilState(t, ctrl)

	assert.ErrorIs(t, st.Error, leader.readErr)
	assert.Empty(t, follower.writes())

	select {
	case msg := <-ctrl.Logs():
		assert.Contains(t, msg, "Leader arm")
	default:
		t.Error("expected log messages")
	}
}

func TestController_AlreadyRunning(t *testing.T) {
	ctrl := NewController(&fakeArm{}, &fakeArm{}, Config{})
	assert.Equal(t, 60, ctrl.Hz())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Start(ctx) }()

	require.Eventually(t, func() bool {
		ctrl.mu.RLock()
		defer ctrl.mu.RUnlock()
		return ctrl.running
	}, time.Second, time.Millisecond)

	assert.Error(t, ctrl.Start(ctx))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNewController_Hz(t *testing.T) {
	tests := []struct {
		hz       int
		expected int
	}{
		{0, 60},
		{-5, 60},
		{200, 200},
		{MaxHz, MaxHz},
		{2_000_000_000, MaxHz},
	}

	for _, tt := range tests {
		ctrl := NewController(&fakeArm{}, &fakeArm{}, Config{Hz: tt.hz})
		assert.Equal(t, tt.expected, ctrl.Hz(), "Hz %d", tt.hz)
	}
}

func TestController_HugeHz(t *testing.T) {
	leader := &fakeArm{angles: map[robot.MotorName]float64{robot.Gripper: 10}}
	ctrl := NewController(leader, &fakeArm{}, Config{Hz: 2_000_000_000})

	st := runUntilState(t, ctrl)
	assert.NoError(t, st.Error)
}
