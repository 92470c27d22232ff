package robot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the configured arms, keyed by a user-chosen name.
type Config struct {
	Arms map[string]ArmConfig `json:"arms" yaml:"arms"`
}

// ArmConfig holds configuration for a single arm
type ArmConfig struct {
	Port        string      `json:"port" yaml:"port"`
	Variant     Variant     `json:"variant" yaml:"variant"`
	Calibration Calibration `json:"calibration,omitempty" yaml:"calibration,omitempty"`
}

// IsCalibrated returns true if the arm has calibration data
func (a *ArmConfig) IsCalibrated() bool {
	return len(a.Calibration) > 0
}

// Arm returns the arm stored under name.
func (c *Config) Arm(name string) (ArmConfig, bool) {
	arm, ok := c.Arms[name]
	return arm, ok
}

// SetArm stores the arm under name.
func (c *Config) SetArm(name string, arm ArmConfig) {
	if c.Arms == nil {
		c.Arms = make(map[string]ArmConfig)
	}
	c.Arms[name] = arm
}

// Names returns the arm names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Arms))
	for name := range c.Arms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadConfigFrom loads configuration from a specific file. Files ending in
// .yaml or .yml are read as YAML, anything else as JSON.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOrNewConfig loads path, or returns an empty config if it does not exist.
func LoadOrNewConfig(path string) (*Config, error) {
	cfg, err := LoadConfigFrom(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	return cfg, err
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the config file exists
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
