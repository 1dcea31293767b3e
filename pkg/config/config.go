package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	DefaultConfigFileName = "blockstore.json"
	CurrentConfigVersion  = 1

	// DefaultPoolCapacity is the number of blocks of a fresh disk
	DefaultPoolCapacity = 100
	// MaxPoolCapacity bounds the pool so a typo cannot exhaust memory
	MaxPoolCapacity = 1 << 20
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("configuration not found")
)

var validCodecs = map[string]bool{"none": true, "snappy": true, "zstd": true}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validExporters = map[string]bool{"stdout": true, "otlp": true}

// TelemetryConfig controls the OpenTelemetry provider
type TelemetryConfig struct {
	Enabled        bool          `json:"enabled"`
	ServiceName    string        `json:"service_name"`
	ServiceVersion string        `json:"service_version"`
	Exporters      []string      `json:"exporters"`
	SampleRate     float64       `json:"sample_rate"`
	OTLPEndpoint   string        `json:"otlp_endpoint"`
	OTLPInsecure   bool          `json:"otlp_insecure"`
	ExportInterval time.Duration `json:"export_interval"`
}

type Config struct {
	Version int `json:"version"`

	// Disk configuration
	PoolCapacity int `json:"pool_capacity"`

	// Backup configuration
	BackupDir     string `json:"backup_dir"`
	SnapshotCodec string `json:"snapshot_codec"`

	// Logging
	LogLevel string `json:"log_level"`

	Telemetry TelemetryConfig `json:"telemetry"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig(backupDir string) *Config {
	return &Config{
		Version: CurrentConfigVersion,

		PoolCapacity: DefaultPoolCapacity,

		BackupDir:     backupDir,
		SnapshotCodec: "none",

		LogLevel: "warn",

		Telemetry: TelemetryConfig{
			Enabled:        false,
			ServiceName:    "blockstore",
			ServiceVersion: "development",
			Exporters:      []string{"stdout"},
			SampleRate:     1.0,
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
			ExportInterval: 30 * time.Second,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.PoolCapacity <= 0 {
		return fmt.Errorf("%w: pool capacity must be positive", ErrInvalidConfig)
	}

	if c.PoolCapacity > MaxPoolCapacity {
		return fmt.Errorf("%w: pool capacity must not exceed %d", ErrInvalidConfig, MaxPoolCapacity)
	}

	if c.BackupDir == "" {
		return fmt.Errorf("%w: backup directory not specified", ErrInvalidConfig)
	}

	if !validCodecs[strings.ToLower(c.SnapshotCodec)] {
		return fmt.Errorf("%w: unknown snapshot codec %q", ErrInvalidConfig, c.SnapshotCodec)
	}

	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}

	return c.Telemetry.validate()
}

func (t *TelemetryConfig) validate() error {
	if !t.Enabled {
		return nil
	}

	if t.ServiceName == "" {
		return fmt.Errorf("%w: telemetry service name cannot be empty", ErrInvalidConfig)
	}

	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("%w: telemetry sample rate must be between 0.0 and 1.0", ErrInvalidConfig)
	}

	if t.ExportInterval <= 0 {
		return fmt.Errorf("%w: telemetry export interval must be positive", ErrInvalidConfig)
	}

	for _, exporter := range t.Exporters {
		if !validExporters[exporter] {
			return fmt.Errorf("%w: invalid exporter %q", ErrInvalidConfig, exporter)
		}
	}

	if t.HasExporter("otlp") && t.OTLPEndpoint == "" {
		return fmt.Errorf("%w: otlp exporter requires an endpoint", ErrInvalidConfig)
	}

	return nil
}

// HasExporter returns true if the specified exporter is configured
func (t *TelemetryConfig) HasExporter(name string) bool {
	for _, exporter := range t.Exporters {
		if exporter == name {
			return true
		}
	}
	return false
}

// LoadConfig reads and validates a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig(filepath.Dir(path))
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path, replacing it atomically
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	data, err := json.MarshalIndent(c, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
