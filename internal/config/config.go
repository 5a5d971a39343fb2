package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	StateDir    string `toml:"state_dir" validate:"required"`
	LogDir      string `toml:"log_dir" validate:"required"`
	FlowSpecDir string `toml:"flow_spec_dir"`
	GridRoot    string `toml:"grid_root" validate:"required"`
}

// Conveyor contains queue and execution behaviour.
type Conveyor struct {
	LogSuccessfulTransfers bool `toml:"log_successful_transfers"`
	// MaxErrorsBeforeCancel is copied into each job's control block. Zero
	// disables cancel-on-errors.
	MaxErrorsBeforeCancel int  `toml:"max_errors_before_cancel" validate:"gte=0"`
	RecentQueueSize       int  `toml:"recent_queue_size" validate:"gte=1,lte=1000"`
	QueuePollInterval     int  `toml:"queue_poll_interval" validate:"gte=1"`
	PurgeOnStartup        bool `toml:"purge_on_startup"`
}

// Vault contains argon2 parameters for pass-phrase hashing and key derivation.
type Vault struct {
	HashMemoryKiB   uint32 `toml:"hash_memory_kib" validate:"gte=8"`
	HashIterations  uint32 `toml:"hash_iterations" validate:"gte=1"`
	HashParallelism uint8  `toml:"hash_parallelism" validate:"gte=1"`
	KDFMemoryKiB    uint32 `toml:"kdf_memory_kib" validate:"gte=8"`
	KDFIterations   uint32 `toml:"kdf_iterations" validate:"gte=1"`
}

// Synch contains the synchronization scheduler cadence.
type Synch struct {
	SchedulerInterval int `toml:"scheduler_interval" validate:"gte=1"`
}

// Metrics contains the prometheus endpoint configuration.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind" validate:"omitempty,hostname_port"`
}

// Notifications contains the ntfy endpoint used for transfer outcome alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" validate:"omitempty,url"`
	RequestTimeout int    `toml:"request_timeout" validate:"gte=0"`
	NotifySuccess  bool   `toml:"notify_success"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format" validate:"oneof=console json"`
	Level         string `toml:"level" validate:"oneof=debug info warn error"`
	RetentionDays int    `toml:"retention_days" validate:"gte=0"`
}

// Config encapsulates all configuration values for the conveyor.
//
// Configuration sections by subsystem:
//   - Paths: state, logs, flow specs, and the filesystem grid root
//   - Conveyor: queue, per-file logging, and error thresholds
//   - Vault: argon2 cost parameters
//   - Synch: synchronization scheduler cadence
//   - Metrics: prometheus endpoint
//   - Notifications: ntfy alerts for finished transfers
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Conveyor      Conveyor      `toml:"conveyor"`
	Vault         Vault         `toml:"vault"`
	Synch         Synch         `toml:"synch"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("conveyor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.GridRoot}
	if c.Paths.FlowSpecDir != "" {
		dirs = append(dirs, c.Paths.FlowSpecDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "conveyor.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "conveyord.lock")
}

// SocketPath returns the unix socket the daemon serves IPC on.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "conveyord.sock")
}

// PIDPath returns the file holding the daemon process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "conveyord.pid")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
