package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"lcr.json" description:"Configuration file (.json or .yaml)"`
	Verbose bool   `short:"v" long:"verbose" description:"Log debug output"`
	LogFile string `long:"log-file" description:"Write logs to this file instead of stderr"`

	Configure   ConfigureCommand   `command:"configure" alias:"calibrate" description:"Calibrate homing offsets and drive modes of an arm"`
	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Start teleoperation (master-puppet control)"`
	Scan        ScanCommand        `command:"scan" description:"Scan serial ports for arms"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "lcr - Auto-configuration and teleoperation for low-cost robot arms"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// newLogger builds the structured logger. Logging is off unless -v or
// --log-file is given, so it never fights with the terminal UI.
func newLogger() (*zap.Logger, error) {
	if !opts.Verbose && opts.LogFile == "" {
		return zap.NewNop(), nil
	}

	cfg := zap.NewDevelopmentConfig()
	if !opts.Verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	if opts.LogFile != "" {
		cfg.OutputPaths = []string{opts.LogFile}
		cfg.ErrorOutputPaths = []string{opts.LogFile}
	}
	return cfg.Build()
}
