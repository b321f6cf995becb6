// Package config loads asmdoc settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all asmdoc configuration.
type Config struct {
	// Export header and format settings
	Export ExportConfig `yaml:"export"`

	// Tessellation settings for mesh output
	Mesh MeshConfig `yaml:"mesh"`

	// Structure script evaluation
	Script ScriptConfig `yaml:"script"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ExportConfig configures interchange files.
type ExportConfig struct {
	Author       string `yaml:"author"`
	Organization string `yaml:"organization"`
	Compress     bool   `yaml:"compress"` // gzip STEP output
}

// MeshConfig configures tessellation for GLB export.
type MeshConfig struct {
	Deflection    float64 `yaml:"deflection"` // model units
	Angle         float64 `yaml:"angle"`      // radians
	MergeFaces    bool    `yaml:"merge_faces"`
	ForceUVExport bool    `yaml:"force_uv_export"`
}

// ScriptConfig configures the structure script engine.
type ScriptConfig struct {
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Export: ExportConfig{},
		Mesh: MeshConfig{
			Deflection: 0.1,
			Angle:      0.5,
		},
		Script: ScriptConfig{
			Timeout: "5s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ASMDOC_AUTHOR"); v != "" {
		c.Export.Author = v
	}
	if v := os.Getenv("ASMDOC_ORGANIZATION"); v != "" {
		c.Export.Organization = v
	}
	if v := os.Getenv("ASMDOC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// GetScriptTimeout returns the script timeout as a duration.
func (c *Config) GetScriptTimeout() time.Duration {
	d, err := time.ParseDuration(c.Script.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// ValidLevels lists the accepted logging levels.
var ValidLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Mesh.Deflection <= 0 {
		return fmt.Errorf("mesh deflection must be positive, got %g", c.Mesh.Deflection)
	}
	if c.Mesh.Angle <= 0 {
		return fmt.Errorf("mesh angle must be positive, got %g", c.Mesh.Angle)
	}

	validLevel := false
	for _, l := range ValidLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLevels)
	}

	return nil
}
