// Package config loads the daemon and adapter configuration file. Fields
// omitted from the file keep their defaults, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bpriyal/s2sGeoAdapter/internal/geo"
	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
)

// maxFileSize bounds the config file read.
const maxFileSize = 1 * 1024 * 1024

// SensorConfig selects the daemon's sample source.
type SensorConfig struct {
	// Mode is "sim" for the built-in simulator or "nmea" for a serial GPS.
	Mode   string `yaml:"mode"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// StoreConfig controls the optional ride log.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the root configuration shared by both binaries.
type Config struct {
	SegmentPath   string `yaml:"segment_path"`
	Listen        string `yaml:"listen"`
	TickInterval  string `yaml:"tick_interval"` // duration string like "100ms"
	PollInterval  string `yaml:"poll_interval"` // duration string like "500ms"
	CellLevel     int    `yaml:"cell_level"`
	EnablePDR     bool   `yaml:"enable_pdr"`
	DefaultPlugin string `yaml:"default_plugin"`

	Sensor SensorConfig `yaml:"sensor"`
	Store  StoreConfig  `yaml:"store"`

	// Providers holds per-provider configuration blobs, re-marshalled to
	// JSON before they reach a provider's Initialize.
	Providers map[string]map[string]interface{} `yaml:"providers"`
}

// Default returns the production defaults.
func Default() *Config {
	return &Config{
		SegmentPath:   shm.DefaultPath(),
		Listen:        ":8080",
		TickInterval:  "100ms",
		PollInterval:  "500ms",
		CellLevel:     geo.DefaultLevel,
		EnablePDR:     true,
		DefaultPlugin: "cycling",
		Sensor:        SensorConfig{Mode: "sim", Baud: 9600},
		Store:         StoreConfig{Path: "rides.db"},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.TickInterval); err != nil {
		return fmt.Errorf("invalid tick_interval %q: %w", c.TickInterval, err)
	}
	if _, err := time.ParseDuration(c.PollInterval); err != nil {
		return fmt.Errorf("invalid poll_interval %q: %w", c.PollInterval, err)
	}
	if c.CellLevel < 1 || c.CellLevel > 30 {
		return fmt.Errorf("cell_level must be in [1, 30], got %d", c.CellLevel)
	}
	switch c.Sensor.Mode {
	case "sim", "nmea":
	default:
		return fmt.Errorf("sensor mode must be sim or nmea, got %q", c.Sensor.Mode)
	}
	if c.Sensor.Mode == "nmea" && c.Sensor.Device == "" {
		return fmt.Errorf("sensor mode nmea requires a device")
	}
	return nil
}

// GetTickInterval parses the daemon tick interval, falling back to the
// default on parse error.
func (c *Config) GetTickInterval() time.Duration {
	d, err := time.ParseDuration(c.TickInterval)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetPollInterval parses the adapter poll interval, falling back to the
// default on parse error.
func (c *Config) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// ProviderConfig returns the named provider's configuration as JSON, or nil
// when the provider has none.
func (c *Config) ProviderConfig(name string) []byte {
	blob, ok := c.Providers[name]
	if !ok {
		return nil
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return nil
	}
	return data
}
