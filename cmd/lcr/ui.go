package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/lcr/pkg/calibrate"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var posePrompts = map[calibrate.Stage]string{
	calibrate.StageAwaitPose1:      "Place the arm in position 1, as shown in the README image",
	calibrate.StageAwaitPose2:      "Place the arm in position 2, as shown in the README image",
	calibrate.StageAwaitPose1Again: "Place the arm back in position 1, as shown in the README image",
}

// terminalOperator asks the person at the keyboard to confirm each pose.
type terminalOperator struct{}

func (terminalOperator) Confirm(ctx context.Context, stage calibrate.Stage) error {
	prompt, ok := posePrompts[stage]
	if !ok {
		return fmt.Errorf("no prompt for stage %s", stage)
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render(prompt))

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	)
	return form.RunWithContext(ctx)
}
