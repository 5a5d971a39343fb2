package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"conveyor/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "conveyor")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "conveyor.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if !cfg.Conveyor.LogSuccessfulTransfers {
		t.Fatal("expected success logging enabled by default")
	}
	if cfg.Conveyor.MaxErrorsBeforeCancel != 3 {
		t.Fatalf("unexpected max errors default: %d", cfg.Conveyor.MaxErrorsBeforeCancel)
	}
	if cfg.Metrics.Enabled {
		t.Fatal("expected metrics disabled by default")
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conveyor.toml")

	custom := config.Default()
	custom.Paths.StateDir = filepath.Join(dir, "state")
	custom.Paths.LogDir = filepath.Join(dir, "logs")
	custom.Paths.GridRoot = filepath.Join(dir, "grid")
	custom.Paths.FlowSpecDir = ""
	custom.Conveyor.MaxErrorsBeforeCancel = 7
	custom.Conveyor.LogSuccessfulTransfers = false
	custom.Logging.Level = "WARNING"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected existing config at %q, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Conveyor.MaxErrorsBeforeCancel != 7 {
		t.Fatalf("expected max errors override, got %d", cfg.Conveyor.MaxErrorsBeforeCancel)
	}
	if cfg.Conveyor.LogSuccessfulTransfers {
		t.Fatal("expected success logging disabled")
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected normalized warn level, got %q", cfg.Logging.Level)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, p := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.GridRoot} {
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", p, err)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"conveyor.max_errors_before_cancel": func(c *config.Config) { c.Conveyor.MaxErrorsBeforeCancel = -1 },
		"conveyor.recent_queue_size":        func(c *config.Config) { c.Conveyor.RecentQueueSize = 0 },
		"logging.format":                    func(c *config.Config) { c.Logging.Format = "xml" },
		"metrics.bind":                      func(c *config.Config) { c.Metrics.Enabled = true; c.Metrics.Bind = "not a bind" },
		"paths.grid_root":                   func(c *config.Config) { c.Paths.GridRoot = c.Paths.StateDir },
		"notifications.ntfy_topic":          func(c *config.Config) { c.Notifications.NtfyTopic = "not a url" },
	}
	for key, mutate := range cases {
		cfg := config.Default()
		cfg.Paths.StateDir = "/tmp/conveyor-state"
		cfg.Paths.LogDir = "/tmp/conveyor-logs"
		cfg.Paths.GridRoot = "/tmp/conveyor-grid"
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", key)
		}
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("%s: expected key in error, got %v", key, err)
		}
	}
}

func TestUnknownKeysRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conveyor.toml")
	if err := os.WriteFile(path, []byte("[conveyor]\nmax_errors = 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Synch.SchedulerInterval != 60 {
		t.Fatalf("unexpected scheduler interval: %d", cfg.Synch.SchedulerInterval)
	}
}
