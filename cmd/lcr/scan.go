package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gwillem/lcr/pkg/robot"
)

type ScanCommand struct {
	Timeout time.Duration `long:"timeout" default:"2s" description:"Time budget per port"`
}

type portResult struct {
	port    string
	servos  []robot.FoundServo
	variant robot.Variant
	matched bool
}

func (c *ScanCommand) Execute(args []string) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	fmt.Println(headerStyle.Render("lcr scan"))
	fmt.Println()

	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	sort.Strings(ports)

	// Each port is its own bus, so they can be scanned in parallel.
	var candidates []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		candidates = append(candidates, port)
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("  Scanning %d port(s)...", len(candidates))))

	found := make([]portResult, len(candidates))
	ok := make([]bool, len(candidates))
	var eg errgroup.Group
	eg.SetLimit(4)
	for i, port := range candidates {
		eg.Go(func() error {
			found[i], ok[i] = c.scanPort(port, logger)
			return nil
		})
	}
	eg.Wait()

	var results []portResult
	for i := range found {
		if ok[i] {
			results = append(results, found[i])
		}
	}

	fmt.Println()
	if len(results) == 0 {
		fmt.Println(errorStyle.Render("No servos found."))
		fmt.Println("Make sure your arms are connected and powered on.")
		return nil
	}

	fmt.Println(renderScan(results))
	return nil
}

// scanPort tries Dynamixel first and falls back to Feetech.
func (c *ScanCommand) scanPort(port string, logger *zap.Logger) (portResult, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	servos, err := robot.ScanDynamixel(ctx, port)
	if err != nil {
		logger.Debug("dynamixel scan failed", zap.String("port", port), zap.Error(err))
	}
	if len(servos) == 0 {
		servos, err = robot.ScanFeetech(ctx, port)
		if err != nil {
			logger.Debug("feetech scan failed", zap.String("port", port), zap.Error(err))
		}
	}
	if len(servos) == 0 {
		return portResult{}, false
	}

	logger.Info("servos found", zap.String("port", port), zap.Int("count", len(servos)))
	variant, matched := robot.MatchVariant(servos)
	return portResult{port: port, servos: servos, variant: variant, matched: matched}, true
}

func renderScan(results []portResult) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Port", "IDs", "Models", "Arm").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return subHeaderStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, r := range results {
		ids := make([]string, len(r.servos))
		models := make([]string, len(r.servos))
		for i, s := range r.servos {
			ids[i] = fmt.Sprintf("%d", s.ID)
			models[i] = s.Model
		}

		arm := errorStyle.Render("unknown")
		if r.matched {
			arm = successStyle.Render(string(r.variant))
		}
		t.Row(r.port, strings.Join(ids, ","), strings.Join(models, "\n"), arm)
	}
	return t.Render()
}
