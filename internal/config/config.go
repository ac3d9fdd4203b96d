// Package config provides configuration management for the hotbackup daemon.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultListenAddr is where the admin API listens when unconfigured.
const DefaultListenAddr = "127.0.0.1:8640"

// Schedule is one recurring backup: a cron expression and the destination
// root under which timestamped backup directories are created.
type Schedule struct {
	Cron     string `yaml:"cron"`
	DestRoot string `yaml:"dest_root"`
}

// Config holds the daemon's configuration.
type Config struct {
	// DataDir is the server's primary data directory.
	DataDir string `yaml:"data_dir"`
	// LogDir is the separate log directory, empty when logs live under
	// DataDir.
	LogDir string `yaml:"log_dir,omitempty"`
	// StateDir holds the attempt journal.
	StateDir string `yaml:"state_dir,omitempty"`
	// ListenAddr is the admin API bind address.
	ListenAddr string `yaml:"listen_addr,omitempty"`
	// DefaultThrottleBps caps the engine copy rate at startup; 0 leaves it
	// unthrottled.
	DefaultThrottleBps int64 `yaml:"default_throttle_bps,omitempty"`
	// MinFreeSpacePct aborts a backup up front when the destination
	// filesystem would drop below this free percentage. 0 disables the
	// preflight check.
	MinFreeSpacePct float64 `yaml:"min_free_space_pct,omitempty"`
	// Schedules are recurring backups run by the daemon.
	Schedules []Schedule `yaml:"schedules,omitempty"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// DefaultStateDir returns the default state directory (~/.hotbackup).
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".hotbackup"), nil
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// Save writes the configuration to the given path, creating directories as
// needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.StateDir == "" {
		if dir, err := DefaultStateDir(); err == nil {
			c.StateDir = dir
		}
	}
}

// Validate checks that the configuration can drive a backup.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if !filepath.IsAbs(c.DataDir) {
		return fmt.Errorf("data_dir must be absolute: %s", c.DataDir)
	}
	if c.LogDir != "" && !filepath.IsAbs(c.LogDir) {
		return fmt.Errorf("log_dir must be absolute: %s", c.LogDir)
	}
	if c.DefaultThrottleBps < 0 {
		return errors.New("default_throttle_bps cannot be negative")
	}
	if c.MinFreeSpacePct < 0 || c.MinFreeSpacePct >= 100 {
		return errors.New("min_free_space_pct must be in [0,100)")
	}
	for i, s := range c.Schedules {
		if s.Cron == "" {
			return fmt.Errorf("schedule %d: cron expression is required", i)
		}
		if s.DestRoot == "" {
			return fmt.Errorf("schedule %d: dest_root is required", i)
		}
	}
	return nil
}

// CanonicalDirs resolves DataDir and LogDir to canonical absolute paths, with
// symlinks and relative segments eliminated, as the source resolver requires.
func (c *Config) CanonicalDirs() (dataDir, logDir string, err error) {
	dataDir, err = canonicalize(c.DataDir)
	if err != nil {
		return "", "", fmt.Errorf("resolve data_dir: %w", err)
	}
	if c.LogDir != "" {
		logDir, err = canonicalize(c.LogDir)
		if err != nil {
			return "", "", fmt.Errorf("resolve log_dir: %w", err)
		}
	}
	return dataDir, logDir, nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
