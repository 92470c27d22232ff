package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/zap"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/lcr/pkg/calibrate"
	"github.com/gwillem/lcr/pkg/robot"
	"github.com/gwillem/lcr/pkg/teleop"
)

type TeleoperateCommand struct {
	Hz       int    `long:"hz" default:"60" description:"Control loop frequency"`
	Mirror   bool   `long:"mirror" description:"Mirror mode: invert shoulder_pan and wrist_roll positions"`
	Leader   string `long:"leader" default:"master" description:"Name of the leader arm in the config file"`
	Follower string `long:"follower" default:"puppet" description:"Name of the follower arm in the config file"`
}

const (
	headerHeight = 2  // title + blank line
	jointsHeight = 11 // joint table + blank line
	footerHeight = 7  // log box height
	maxLogs      = 5
	borderSize   = 2
	chartTurns   = 2 // the chart spans this many quarter turns either side of zero
)

var motorColors = map[robot.MotorName]string{
	robot.ShoulderPan:  "196",
	robot.ShoulderLift: "208",
	robot.ElbowFlex:    "226",
	robot.WristFlex:    "46",
	robot.WristRoll:    "51",
	robot.Gripper:      "201",
}

var (
	chartStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	poseHitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// referencePoses are the calibration poses. Both arms read the same quarter
// turns in them when their calibrations agree.
var referencePoses = []struct {
	name string
	pos  calibrate.Positions
}{
	{"pose 1", calibrate.Pose1},
	{"pose 2", calibrate.Pose2},
}

// quarterTurns returns the nearest whole number of quarter turns.
func quarterTurns(deg float64) int {
	return calibrate.Quantize(robot.FromDegrees(deg)) / calibrate.Quantum
}

// matchedPose returns the reference pose the arm is closest to, or "" when
// some joint is a quarter turn or more away from every pose.
func matchedPose(angles map[robot.MotorName]float64) string {
	if len(angles) == 0 {
		return ""
	}
	for _, ref := range referencePoses {
		match := true
		for i, name := range robot.AllMotors() {
			if quarterTurns(angles[name]) != ref.pos[i]/calibrate.Quantum {
				match = false
				break
			}
		}
		if match {
			return ref.name
		}
	}
	return ""
}

type teleopModel struct {
	ctrl     *teleop.Controller
	title    string
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	quitting bool
	angles   map[robot.MotorName]float64
	readErr  error
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// moved reports whether any joint differs from the last drawn state. The
// chart only scrolls while the leader moves.
func (m *teleopModel) moved(angles map[robot.MotorName]float64) bool {
	if m.angles == nil {
		return true
	}
	for name, deg := range angles {
		if last, ok := m.angles[name]; !ok || deg != last {
			return true
		}
	}
	return false
}

type stateMsg teleop.State
type logMsg string

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 12
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-jointsHeight-footerHeight-borderSize, 8)
	return width, height
}

func initialTeleopModel(ctrl *teleop.Controller, title string) teleopModel {
	// Leader angles in quarter turns, so every calibrated pose sits on a
	// whole number.
	chart := streamlinechart.New(80, 12,
		streamlinechart.WithYRange(-chartTurns, chartTurns),
	)
	for _, name := range robot.AllMotors() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColors[name]))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return teleopModel{
		ctrl:  ctrl,
		title: title,
		chart: &chart,
	}
}

func (m teleopModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		m.readErr = msg.Error
		if msg.Positions != nil && m.moved(msg.Positions) {
			for name, deg := range msg.Positions {
				m.chart.PushDataSet(string(name), deg/90)
			}
			m.chart.DrawAll()
			m.angles = msg.Positions
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(headerStyle.Render(m.title))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.ctrl.Hz()))
	if pose := matchedPose(m.angles); pose != "" {
		sb.WriteString(successStyle.Render("  at " + pose))
	}
	if m.readErr != nil {
		sb.WriteString(errorStyle.Render("  " + m.readErr.Error()))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderJoints(m.angles))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Foreground(lipgloss.Color("9"))
	if m.width > 0 {
		logStyle = logStyle.Width(m.width - 4)
	}

	logLines := statusStyle.Render("Press 'q' to quit")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

// renderJoints lists the leader angles with their distance to each reference
// pose. A distance is highlighted when the joint is on the pose's quarter turn.
func renderJoints(angles map[robot.MotorName]float64) string {
	headers := []string{"Motor", "Angle", "Quarter turns"}
	for _, ref := range referencePoses {
		headers = append(headers, "Δ "+ref.name)
	}

	motors := robot.AllMotors()
	rows := make([][]string, 0, len(motors))
	hits := make([][]bool, 0, len(motors))
	for i, name := range motors {
		deg, ok := angles[name]
		if !ok {
			row := []string{string(name)}
			for range headers[1:] {
				row = append(row, "-")
			}
			rows = append(rows, row)
			hits = append(hits, nil)
			continue
		}

		row := []string{string(name), fmt.Sprintf("%.1f°", deg), fmt.Sprintf("%+d", quarterTurns(deg))}
		hit := make([]bool, len(headers))
		for k, ref := range referencePoses {
			row = append(row, fmt.Sprintf("%+.1f°", deg-robot.ToDegrees(ref.pos[i])))
			hit[3+k] = quarterTurns(deg) == ref.pos[i]/calibrate.Quantum
		}
		rows = append(rows, row)
		hits = append(hits, hit)
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return cellStyle.Bold(true).Foreground(lipgloss.Color("12"))
			case col == 0:
				return cellStyle.Foreground(lipgloss.Color(motorColors[motors[row]]))
			case row < len(hits) && col < len(hits[row]) && hits[row][col]:
				return poseHitStyle
			default:
				return cellStyle
			}
		}).
		Render()
}

// openConfiguredArm opens a calibrated arm from the config file.
func openConfiguredArm(cfg *robot.Config, name string, logger *zap.Logger) (*robot.Arm, error) {
	armCfg, ok := cfg.Arm(name)
	if !ok {
		return nil, fmt.Errorf("arm %q not configured (have: %s), run 'lcr configure' first",
			name, strings.Join(cfg.Names(), ", "))
	}
	if !armCfg.IsCalibrated() {
		return nil, fmt.Errorf("arm %q not calibrated, run 'lcr configure' first", name)
	}

	joints, err := armCfg.Variant.Joints()
	if err != nil {
		return nil, err
	}
	if err := armCfg.Calibration.Validate(joints); err != nil {
		return nil, fmt.Errorf("arm %q: %w", name, err)
	}

	return robot.OpenArm(armCfg.Port, armCfg.Variant, armCfg.Calibration,
		robot.WithArmLogger(logger.With(zap.String("arm", name))))
}

func (c *TeleoperateCommand) Execute(args []string) error {
	if !robot.ConfigExists(opts.Config) {
		return fmt.Errorf("no configuration found in %s, run 'lcr configure' first", opts.Config)
	}
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	leader, err := openConfiguredArm(cfg, c.Leader, logger)
	if err != nil {
		return err
	}
	defer leader.Close()

	follower, err := openConfiguredArm(cfg, c.Follower, logger)
	if err != nil {
		return err
	}
	defer follower.Close()

	fmt.Printf("Loaded configuration from %s\n", opts.Config)

	ctrl := teleop.NewController(leader, follower, teleop.Config{
		Hz:     c.Hz,
		Mirror: c.Mirror,
		Logger: logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ctrl.Start(ctx) }()

	title := fmt.Sprintf("lcr teleoperate: %s → %s", c.Leader, c.Follower)
	_, runErr := tea.NewProgram(initialTeleopModel(ctrl, title), tea.WithAltScreen()).Run()

	// Wait for the follower to be released before closing the buses.
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("controller: %w", err)
	}
	return runErr
}
