package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/zap"

	"github.com/gwillem/lcr/pkg/calibrate"
	"github.com/gwillem/lcr/pkg/robot"
)

type ConfigureCommand struct {
	Port      string        `long:"port" required:"true" description:"Serial port the arm is connected to"`
	Puppet    bool          `long:"puppet" description:"Configure the puppet arm"`
	Master    bool          `long:"master" description:"Configure the master arm"`
	SO101     bool          `long:"so101" description:"Configure an SO-101 arm (Feetech servos)"`
	Name      string        `long:"name" description:"Name to save the arm under (defaults to the variant)"`
	Interval  time.Duration `long:"interval" default:"1s" description:"Position refresh interval after calibration"`
	NoMonitor bool          `long:"no-monitor" description:"Exit after calibration instead of showing live positions"`
}

func (c *ConfigureCommand) Execute(args []string) error {
	// Only one arm can be configured per run.
	variant, err := robot.SelectVariant(c.Puppet, c.Master, c.SO101)
	if err != nil {
		return err
	}
	name := c.Name
	if name == "" {
		name = string(variant)
	}

	cfg, err := robot.LoadOrNewConfig(opts.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	arm, err := robot.OpenArm(c.Port, variant, nil, robot.WithArmLogger(logger))
	if err != nil {
		return fmt.Errorf("connect to arm: %w", err)
	}
	defer arm.Close()

	fmt.Println(headerStyle.Render(fmt.Sprintf("Configuring %s arm on %s", variant, c.Port)))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))

	cal := calibrate.New(arm, terminalOperator{},
		calibrate.WithLogger(logger.With(zap.String("arm", name))),
		calibrate.WithMonitorInterval(c.Interval))

	res, err := cal.Calibrate(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		fmt.Println(dimStyle.Render("Configuration aborted."))
		return err
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Configuration failed, restart it from the beginning."))
		return err
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Configuration done!"))
	fmt.Println(renderResult(arm.Joints(), res))

	cfg.SetArm(name, robot.ArmConfig{
		Port:        c.Port,
		Variant:     variant,
		Calibration: robot.NewCalibration(arm.Joints(), res),
	})
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Calibration saved to %s as %q\n", opts.Config, name)

	if c.NoMonitor {
		return nil
	}

	fmt.Println("Make sure everything is working as expected by moving the arm and checking the position values:")
	return runMonitor(ctx, cal, arm.Joints())
}

func renderResult(joints [calibrate.NumJoints]robot.Joint, res calibrate.Result) string {
	modes := res.Inverted.DriveModes()
	rows := make([][]string, 0, len(joints))
	for i, j := range joints {
		rows = append(rows, []string{
			string(j.Name),
			fmt.Sprintf("%s #%d", j.Family, j.ID),
			fmt.Sprintf("%d", modes[i]),
			fmt.Sprintf("%d", res.Offsets[i]),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Servo", "Drive mode", "Homing offset").
		Rows(rows...).
		Render()
}

// runMonitor shows live positions until the user quits or ctx is done.
func runMonitor(ctx context.Context, cal *calibrate.Calibrator, joints [calibrate.NumJoints]robot.Joint) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newMonitorModel(joints), tea.WithContext(ctx))

	done := make(chan error, 1)
	go func() {
		err := cal.Monitor(ctx, calibrate.ReporterFunc(func(pos calibrate.Positions) {
			p.Send(positionsMsg(pos))
		}))
		if err != nil && !errors.Is(err, context.Canceled) {
			p.Send(monitorErrMsg{err})
		}
		done <- err
	}()

	_, runErr := p.Run()
	cancel()
	monErr := <-done

	if monErr != nil && !errors.Is(monErr, context.Canceled) {
		return monErr
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}

// Monitor TUI model
type monitorModel struct {
	joints    [calibrate.NumJoints]robot.Joint
	positions calibrate.Positions
	ticks     int
	err       error
	quitting  bool
	spinner   spinner.Model
}

type positionsMsg calibrate.Positions

type monitorErrMsg struct{ err error }

func newMonitorModel(joints [calibrate.NumJoints]robot.Joint) monitorModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = dimStyle
	return monitorModel{joints: joints, spinner: sp}
}

func (m monitorModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case positionsMsg:
		m.positions = calibrate.Positions(msg)
		m.ticks++

	case monitorErrMsg:
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Monitor stopped: %v", m.err)) + "\n"
	}
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableMotorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)

	rows := make([][]string, 0, len(m.joints))
	for i, j := range m.joints {
		pos := m.positions[i]
		rows = append(rows, []string{
			string(j.Name),
			fmt.Sprintf("%d", pos),
			fmt.Sprintf("%.1f°", robot.ToDegrees(pos)),
			fmt.Sprintf("%d", calibrate.Quantize(pos)/calibrate.Quantum),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Position", "Degrees", "Quarter turns").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableMotorStyle
			case 1:
				return tableCurrentStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	if m.ticks == 0 {
		sb.WriteString(m.spinner.View() + dimStyle.Render(" Waiting for positions..."))
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render("Press q to quit"))

	return sb.String()
}
