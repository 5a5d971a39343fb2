package preflight

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"conveyor/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Grid root", cfg.Paths.GridRoot),
		CheckSocketPath(cfg.SocketPath()),
	}

	if cfg.Paths.FlowSpecDir != "" {
		if _, err := os.Stat(cfg.Paths.FlowSpecDir); err == nil {
			results = append(results, CheckDirectoryAccess("Flow spec directory", cfg.Paths.FlowSpecDir))
		}
	}

	if cfg.Metrics.Enabled {
		results = append(results, CheckBindAvailable(ctx, "Metrics bind", cfg.Metrics.Bind))
	}

	return results
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSocketPath verifies the daemon socket path fits in a sockaddr_un.
func CheckSocketPath(path string) Result {
	const name = "Daemon socket"
	// sun_path is 108 bytes on Linux including the terminator.
	if len(path) >= 108 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: path longer than 107 bytes)", path)}
	}
	if err := unix.Access(filepath.Dir(path), unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: directory not writable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckBindAvailable reports whether addr can be bound. A bind that fails
// because the daemon already holds it is reported as a failure too; callers
// run this with the daemon stopped.
func CheckBindAvailable(ctx context.Context, name, addr string) Result {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var lc net.ListenConfig
	ln, err := lc.Listen(checkCtx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", addr, err)}
	}
	_ = ln.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (available)", addr)}
}
