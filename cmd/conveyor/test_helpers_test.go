package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"conveyor/internal/config"
	"conveyor/internal/daemonrun"
	"conveyor/internal/ipc"
	"conveyor/internal/logging"
	"conveyor/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	runtime    *daemonrun.Runtime
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
}

// setupCLITestEnv writes a config file and returns an environment whose
// socket has no daemon behind it.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Metrics.Enabled = false
	cfg.Metrics.Bind = "127.0.0.1:19477"
	base := testsupport.BaseDir(cfg)

	configPath := filepath.Join(base, "config", "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		socketPath: filepath.Join(cfg.Paths.StateDir, "cli.sock"),
		configPath: configPath,
		baseDir:    base,
	}
}

// startDaemon assembles a daemon in-process and serves IPC on env.socketPath.
func (env *cliTestEnv) startDaemon(t *testing.T) {
	t.Helper()

	logger := logging.NewNop()
	rt, err := daemonrun.Assemble(env.cfg, logger)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, env.socketPath, rt.Daemon, logger)
	if err != nil {
		cancel()
		rt.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	if err := rt.Daemon.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	env.runtime = rt
	env.server = srv
	t.Cleanup(func() {
		cancel()
		srv.Close()
		rt.Close()
	})
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, args, env.socketPath, env.configPath, "")
}

func (env *cliTestEnv) runWithInput(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, args, env.socketPath, env.configPath, input)
}

func (env *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := env.run(t, args...)
	if err != nil {
		t.Fatalf("conveyor %s: %v (stderr: %s)", strings.Join(args, " "), err, stderr)
	}
	return out
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, args, socket, configPath, "")
}

func runCLIWithInput(t *testing.T, args []string, socket, configPath, input string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(input))
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func decodeJSON(t *testing.T, raw string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
