package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"conveyor/internal/api"
	"conveyor/internal/config"
	"conveyor/internal/engine"
	"conveyor/internal/flow"
	"conveyor/internal/logging"
	"conveyor/internal/notifications"
	"conveyor/internal/synch"
)

// Deps are the components a Daemon drives.
type Deps struct {
	Config    *config.Config
	Engine    *engine.Engine
	Service   *api.Service
	Scheduler *synch.Scheduler
	Flows     *flow.Cache
	Notifier  *notifications.Dispatcher
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	engine    *engine.Engine
	service   *api.Service
	scheduler *synch.Scheduler
	flows     *flow.Cache
	notifier  *notifications.Dispatcher
	gatherer  prometheus.Gatherer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	http    *httpServer
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockPath     string
	MetricsAddr  string
	Engine       api.EngineStatus
}

// New constructs a daemon with initialized dependencies.
func New(deps Deps) (*Daemon, error) {
	if deps.Config == nil || deps.Engine == nil || deps.Service == nil {
		return nil, errors.New("daemon requires config, engine, and api service")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := deps.Config.LockPath()
	return &Daemon{
		cfg:       deps.Config,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		engine:    deps.Engine,
		service:   deps.Service,
		scheduler: deps.Scheduler,
		flows:     deps.Flows,
		notifier:  deps.Notifier,
		gatherer:  deps.Gatherer,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Service returns the operation facade served over IPC.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// Start acquires the daemon lock, starts the engine and launches the
// supporting loops.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another conveyor daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.engine.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start engine: %w", err)
	}

	var srv *httpServer
	if d.cfg.Metrics.Enabled {
		srv, err = newHTTPServer(d.cfg.Metrics.Bind, d, d.gatherer, d.logger)
		if err == nil {
			err = srv.listen()
		}
		if err != nil {
			d.engine.Stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start metrics endpoint: %w", err)
		}
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	if d.flows != nil {
		group.Go(func() error { return d.flows.Watch(groupCtx) })
	}
	if d.scheduler != nil {
		group.Go(func() error { return d.scheduler.Run(groupCtx) })
	}
	if d.notifier != nil {
		group.Go(func() error { return d.notifier.Run(groupCtx) })
	}
	if srv != nil {
		group.Go(func() error { return srv.serve(groupCtx) })
	}

	d.cancel = cancel
	d.group = group
	d.http = srv
	d.running.Store(true)
	d.logger.Info("conveyor daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop pauses the active transfer, stops background loops and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.engine.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.group != nil {
		if err := d.group.Wait(); err != nil {
			logging.WarnWithContext(d.logger, "background loop exited with error", "daemon_loop_failed",
				logging.Error(err))
		}
		d.group = nil
	}
	d.http = nil
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file manually if the next start fails"))
	}
	d.running.Store(false)
	d.logger.Info("conveyor daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockPath:     d.lockPath,
		Engine:       d.service.Status(ctx),
	}
	d.mu.Lock()
	if d.http != nil {
		status.MetricsAddr = d.http.addr()
	}
	d.mu.Unlock()
	return status
}

const shutdownTimeout = 5 * time.Second
