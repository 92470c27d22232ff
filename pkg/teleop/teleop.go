// Package teleop mirrors a leader arm onto a follower arm in real time.
package teleop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gwillem/lcr/pkg/robot"
)

// Leader is the arm moved by hand.
type Leader interface {
	Disable(ctx context.Context) error
	ReadAngles(ctx context.Context) (map[robot.MotorName]float64, error)
}

// Follower is the arm that tracks the leader.
type Follower interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	WriteAngles(ctx context.Context, angles map[robot.MotorName]float64) error
}

// State represents the current state of teleoperation.
type State struct {
	Positions map[robot.MotorName]float64
	Timestamp time.Time
	Error     error
}

// Controller manages the teleoperation control loop.
type Controller struct {
	leader   Leader
	follower Follower
	hz       int
	mirror   bool
	logger   *zap.Logger

	mu      sync.RWMutex
	running bool
	stateCh chan State
	logCh   chan string
}

// MaxHz is the highest control frequency. Higher requests are clamped.
const MaxHz = 1000

// Config holds configuration for the controller.
type Config struct {
	Hz     int
	Mirror bool // Invert shoulder_pan and wrist_roll
	Logger *zap.Logger
}

// NewController creates a new teleoperation controller. Both arms must be
// calibrated into the same logical frame.
func NewController(leader Leader, follower Follower, cfg Config) *Controller {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	cfg.Hz = min(cfg.Hz, MaxHz)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Controller{
		leader:   leader,
		follower: follower,
		hz:       cfg.Hz,
		mirror:   cfg.Mirror,
		logger:   cfg.Logger,
		stateCh:  make(chan State, 1),
		logCh:    make(chan string, 10),
	}
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

func (c *Controller) log(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.logger.Info(text)

	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), text)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the control loop until ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	if err := c.leader.Disable(ctx); err != nil {
		c.log("Warning: failed to disable leader: %v", err)
	} else {
		c.log("Leader arm: torque disabled (passive mode)")
	}

	if err := c.follower.Enable(ctx); err != nil {
		c.log("Warning: failed to enable follower: %v", err)
	} else {
		c.log("Follower arm: torque enabled")
	}

	c.log("Teleoperation started at %d Hz", c.hz)

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.step(ctx)
		}
	}
}

func (c *Controller) step(ctx context.Context) {
	positions, err := c.leader.ReadAngles(ctx)
	if err != nil {
		c.log("Read error: %v", err)
		c.sendState(State{Error: err, Timestamp: time.Now()})
		return
	}

	if err := c.follower.WriteAngles(ctx, c.followerAngles(positions)); err != nil {
		c.log("Write error: %v", err)
	}

	c.sendState(State{
		Positions: positions,
		Timestamp: time.Now(),
	})
}

// followerAngles applies mirroring. The calibrated frames put zero at the
// same pose on both arms, so mirroring is a sign flip.
func (c *Controller) followerAngles(positions map[robot.MotorName]float64) map[robot.MotorName]float64 {
	if !c.mirror {
		return positions
	}
	out := make(map[robot.MotorName]float64, len(positions))
	for name, pos := range positions {
		if name == robot.ShoulderPan || name == robot.WristRoll {
			out[name] = -pos
		} else {
			out[name] = pos
		}
	}
	return out
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	ctx := context.Background()
	if err := c.follower.Disable(ctx); err != nil {
		c.log("Warning: failed to disable follower: %v", err)
	} else {
		c.log("Follower arm: torque disabled")
	}
	c.log("Teleoperation stopped")
}
