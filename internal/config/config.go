package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"dirmover/internal/entry"
)

const (
	DefaultMaxWorkers     = 32
	DefaultCopyBufferSize = "4MiB"
	DefaultDBPath         = "dirmover.db"

	minCopyBuffer = 64 * 1024
	maxCopyBuffer = 64 * 1024 * 1024
	maxWorkers    = 256
)

// Config is the root of config.yaml.
type Config struct {
	DirectorySets  []DirectorySetConfig `yaml:"directory_sets"`
	Disabled       []string             `yaml:"disabled"`
	CalculateSizes bool                 `yaml:"calculate_sizes"`
	Engine         EngineConfig         `yaml:"engine"`
	System         SystemConfig         `yaml:"system"`
}

// DirectorySetConfig is one source/target pair.
type DirectorySetConfig struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// EngineConfig tunes the relocation engine.
type EngineConfig struct {
	MaxWorkers     int    `yaml:"max_workers"`
	CopyBufferSize string `yaml:"copy_buffer_size"`
	VerifyCopies   bool   `yaml:"verify_copies"`

	// parsed from CopyBufferSize, not read from yaml
	CopyBufferBytes int `yaml:"-"`
}

// SystemConfig holds process-level settings.
type SystemConfig struct {
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns the settings used for keys missing from the file.
func Default() Config {
	return Config{
		CalculateSizes: true,
		Engine: EngineConfig{
			MaxWorkers:     DefaultMaxWorkers,
			CopyBufferSize: DefaultCopyBufferSize,
		},
		System: SystemConfig{
			DBPath:   DefaultDBPath,
			LogLevel: "info",
		},
	}
}

// LoadConfig reads and validates the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if len(c.DirectorySets) == 0 {
		return errors.New("config: at least one directory set is required (directory_sets)")
	}
	seen := make(map[string]bool, len(c.DirectorySets))
	for i, s := range c.DirectorySets {
		if s.Source == "" || s.Target == "" {
			return fmt.Errorf("config: directory_sets[%d] needs both source and target", i)
		}
		if !filepath.IsAbs(s.Source) || !filepath.IsAbs(s.Target) {
			return fmt.Errorf("config: directory_sets[%d] paths must be absolute", i)
		}
		key := entry.NewDirectorySet(s.Source, s.Target).Key()
		if seen[key] {
			return fmt.Errorf("config: duplicate directory set source %s", s.Source)
		}
		seen[key] = true
		c.DirectorySets[i] = DirectorySetConfig{Source: filepath.Clean(s.Source), Target: filepath.Clean(s.Target)}
	}

	if c.Engine.MaxWorkers == 0 {
		c.Engine.MaxWorkers = DefaultMaxWorkers
	}
	if c.Engine.MaxWorkers < 1 || c.Engine.MaxWorkers > maxWorkers {
		return fmt.Errorf("config: engine.max_workers must be between 1 and %d", maxWorkers)
	}

	if c.Engine.CopyBufferSize == "" {
		c.Engine.CopyBufferSize = DefaultCopyBufferSize
	}
	size, err := units.RAMInBytes(c.Engine.CopyBufferSize)
	if err != nil {
		return fmt.Errorf("config: invalid engine.copy_buffer_size: %w", err)
	}
	if size < minCopyBuffer || size > maxCopyBuffer {
		return fmt.Errorf("config: engine.copy_buffer_size must be between 64KiB and 64MiB, got %s", c.Engine.CopyBufferSize)
	}
	c.Engine.CopyBufferBytes = int(size)

	if c.System.DBPath == "" {
		c.System.DBPath = DefaultDBPath
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "info"
	}
	return nil
}

// Sets builds the registry of configured directory sets.
func (c *Config) Sets() *entry.SetRegistry {
	r := entry.NewSetRegistry()
	for _, s := range c.DirectorySets {
		r.Add(entry.NewDirectorySet(s.Source, s.Target))
	}
	return r
}
