package calibrate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultMonitorInterval is the period between monitor readings.
const DefaultMonitorInterval = time.Second

// Transport gives group-level access to the servos of one arm. Every call
// addresses all NumJoints joints in group order and blocks until the bus
// answers or times out.
type Transport interface {
	ReadPositions(ctx context.Context) (Raw, error)
	WriteHomingOffsets(ctx context.Context, offsets Positions) error
	WriteDriveModes(ctx context.Context, inverted Flags) error
	WriteTorqueEnable(ctx context.Context, enabled bool) error
	WriteOperatingMode(ctx context.Context, mode OperatingMode) error
}

// Operator blocks until the person handling the arm confirms it is in the
// pose the given stage waits for.
type Operator interface {
	Confirm(ctx context.Context, stage Stage) error
}

// OperatorFunc adapts a function to the Operator interface.
type OperatorFunc func(ctx context.Context, stage Stage) error

func (f OperatorFunc) Confirm(ctx context.Context, stage Stage) error { return f(ctx, stage) }

// Reporter receives the decoded positions once per monitor tick.
type Reporter interface {
	Report(pos Positions)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(pos Positions)

func (f ReporterFunc) Report(pos Positions) { f(pos) }

// Result is the outcome of a calibration run.
type Result struct {
	Inverted Flags
	Offsets  Positions
}

// Calibrator sequences the calibration procedure against one arm.
type Calibrator struct {
	transport Transport
	operator  Operator
	logger    *zap.Logger
	interval  time.Duration
}

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithLogger sets the logger used for stage transitions and results.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Calibrator) { c.logger = logger }
}

// WithMonitorInterval sets the period between monitor readings.
func WithMonitorInterval(d time.Duration) Option {
	return func(c *Calibrator) { c.interval = d }
}

// New creates a Calibrator. The transport must be exclusively owned by the
// calibrator for the duration of the run.
func New(transport Transport, operator Operator, opts ...Option) *Calibrator {
	c := &Calibrator{
		transport: transport,
		operator:  operator,
		logger:    zap.NewNop(),
		interval:  DefaultMonitorInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run calibrates the arm and then monitors it until ctx is cancelled.
func (c *Calibrator) Run(ctx context.Context, reporter Reporter) (Result, error) {
	res, err := c.Calibrate(ctx)
	if err != nil {
		return Result{}, err
	}
	return res, c.Monitor(ctx, reporter)
}

// Calibrate runs every stage up to and including the second homing pass.
// Any transport failure aborts the run immediately.
func (c *Calibrator) Calibrate(ctx context.Context) (Result, error) {
	if err := c.prepare(ctx); err != nil {
		return Result{}, err
	}

	if err := c.await(ctx, StageAwaitPose1); err != nil {
		return Result{}, err
	}

	// First pass assumes every joint turns the right way.
	if _, err := c.configureHoming(ctx, StageHomingPass1, Flags{}); err != nil {
		return Result{}, err
	}

	if err := c.await(ctx, StageAwaitPose2); err != nil {
		return Result{}, err
	}

	inverted, err := c.configureDriveMode(ctx)
	if err != nil {
		return Result{}, err
	}

	if err := c.await(ctx, StageAwaitPose1Again); err != nil {
		return Result{}, err
	}

	offsets, err := c.configureHoming(ctx, StageHomingPass2, inverted)
	if err != nil {
		return Result{}, err
	}

	c.logger.Info("calibration done",
		zap.Ints("drive_modes", driveModes(inverted)),
		zap.Ints("homing_offsets", offsets[:]))

	return Result{Inverted: inverted, Offsets: offsets}, nil
}

// Monitor reads and reports positions every interval until ctx is done,
// returning ctx.Err(). A transport failure ends monitoring with that error.
func (c *Calibrator) Monitor(ctx context.Context, reporter Reporter) error {
	c.enter(StageMonitor)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		raw, err := c.transport.ReadPositions(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return c.commError(StageMonitor, "read positions", err)
		}
		reporter.Report(DecodeAll(raw))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Calibrator) prepare(ctx context.Context) error {
	c.enter(StagePrepare)

	// Mode and offset registers are only writable with torque off.
	if err := c.transport.WriteTorqueEnable(ctx, false); err != nil {
		return c.commError(StagePrepare, "disable torque", err)
	}

	// Extended position mode keeps a joint whose zero crossing ended up near
	// a working angle from wrapping.
	if err := c.transport.WriteOperatingMode(ctx, ModeExtendedPosition); err != nil {
		return c.commError(StagePrepare, "write operating mode", err)
	}

	if err := c.transport.WriteDriveModes(ctx, Flags{}); err != nil {
		return c.commError(StagePrepare, "reset drive modes", err)
	}

	if err := c.transport.WriteHomingOffsets(ctx, Positions{}); err != nil {
		return c.commError(StagePrepare, "reset homing offsets", err)
	}

	return nil
}

func (c *Calibrator) configureHoming(ctx context.Context, stage Stage, inverted Flags) (Positions, error) {
	c.enter(stage)

	if err := c.transport.WriteHomingOffsets(ctx, Positions{}); err != nil {
		return Positions{}, c.commError(stage, "reset homing offsets", err)
	}

	quantized, err := c.readQuantized(ctx, stage)
	if err != nil {
		return Positions{}, err
	}

	offsets := Corrections(quantized, inverted, Pose1)
	c.logger.Debug("homing offsets computed",
		zap.Stringer("stage", stage),
		zap.Ints("quantized", quantized[:]),
		zap.Ints("offsets", offsets[:]))

	if err := c.transport.WriteHomingOffsets(ctx, offsets); err != nil {
		return Positions{}, c.commError(stage, "write homing offsets", err)
	}

	return offsets, nil
}

func (c *Calibrator) configureDriveMode(ctx context.Context) (Flags, error) {
	c.enter(StageResolveDriveMode)

	quantized, err := c.readQuantized(ctx, StageResolveDriveMode)
	if err != nil {
		return Flags{}, err
	}

	inverted := ResolveInversions(quantized, Pose2)
	c.logger.Debug("drive modes resolved",
		zap.Ints("quantized", quantized[:]),
		zap.Ints("drive_modes", driveModes(inverted)))

	if err := c.transport.WriteDriveModes(ctx, inverted); err != nil {
		return Flags{}, c.commError(StageResolveDriveMode, "write drive modes", err)
	}

	return inverted, nil
}

func (c *Calibrator) readQuantized(ctx context.Context, stage Stage) (Positions, error) {
	raw, err := c.transport.ReadPositions(ctx)
	if err != nil {
		return Positions{}, c.commError(stage, "read positions", err)
	}
	return QuantizeAll(DecodeAll(raw)), nil
}

func (c *Calibrator) await(ctx context.Context, stage Stage) error {
	c.enter(stage)
	if err := c.operator.Confirm(ctx, stage); err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return nil
}

func (c *Calibrator) enter(stage Stage) {
	c.logger.Info("entering stage", zap.Stringer("stage", stage))
}

func (c *Calibrator) commError(stage Stage, op string, err error) error {
	c.logger.Error("transport failure",
		zap.Stringer("stage", stage),
		zap.String("op", op),
		zap.Error(err))
	return &CommunicationError{Stage: stage, Op: op, Err: err}
}

func driveModes(f Flags) []int {
	modes := f.DriveModes()
	return modes[:]
}
