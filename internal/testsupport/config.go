package testsupport

import (
	"path/filepath"
	"testing"

	"conveyor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test and
// argon2 costs low enough for unit tests.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.FlowSpecDir = filepath.Join(base, "flows")
	cfgVal.Paths.GridRoot = filepath.Join(base, "grid")
	cfgVal.Vault.HashMemoryKiB = 64
	cfgVal.Vault.HashIterations = 1
	cfgVal.Vault.HashParallelism = 1
	cfgVal.Vault.KDFMemoryKiB = 64
	cfgVal.Vault.KDFIterations = 1
	cfgVal.Conveyor.QueuePollInterval = 1
	cfgVal.Metrics.Bind = "127.0.0.1:0"

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithSuccessLogging toggles per-file success items.
func WithSuccessLogging(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conveyor.LogSuccessfulTransfers = enabled
	}
}

// WithMaxErrors overrides the max-errors-before-cancel threshold.
func WithMaxErrors(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conveyor.MaxErrorsBeforeCancel = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
