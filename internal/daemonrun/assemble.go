package daemonrun

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"conveyor/internal/api"
	"conveyor/internal/config"
	"conveyor/internal/daemon"
	"conveyor/internal/database"
	"conveyor/internal/engine"
	"conveyor/internal/flow"
	"conveyor/internal/logging"
	"conveyor/internal/notifications"
	"conveyor/internal/queue"
	"conveyor/internal/queuelock"
	"conveyor/internal/remote/localgrid"
	"conveyor/internal/synch"
	"conveyor/internal/vault"
)

// Runtime holds every component of a running daemon.
type Runtime struct {
	DB       *database.DB
	Queue    *queue.Store
	Vault    *vault.Service
	Engine   *engine.Engine
	Synch    *synch.Service
	Service  *api.Service
	Daemon   *daemon.Daemon
	Registry *prometheus.Registry
}

// Assemble opens the database and wires the stores, engine, scheduler and
// daemon without starting anything.
func Assemble(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	lock := queuelock.New()
	store := queue.New(db, queue.Options{LogSuccessfulTransfers: cfg.Conveyor.LogSuccessfulTransfers})
	vaultSvc := vault.New(vault.NewStore(db), lock, vault.ParamsFrom(cfg.Vault), vault.WithLogger(logger))
	grid := localgrid.New(cfg.Paths.GridRoot, localgrid.WithLogger(logger))

	flows := flow.NewCache(cfg.Paths.FlowSpecDir, logger)
	if err := flows.Load(); err != nil {
		logging.WarnWithContext(logger, "flow specs not loaded", "flow_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the spec files; transfers run without flow hooks"),
		)
	}
	selector := flow.NewSelector(flows, flow.NewRunner(flow.DefaultRegistry(logger), logger), logger)

	eng := engine.New(engine.Deps{
		Config:      cfg,
		Store:       store,
		Credentials: vaultSvc,
		Lock:        lock,
		Client:      grid,
		Selector:    selector,
		Metrics:     engine.NewMetrics(registry),
		Logger:      logger,
	})

	notifier := notifications.NewDispatcher(notifications.NewService(cfg), cfg.Notifications.NotifySuccess, logger)
	eng.Subscribe(notifier.Listener())

	syncSvc := synch.NewService(synch.Deps{
		Store:       synch.NewStore(db),
		Pending:     store,
		Enqueuer:    eng,
		Credentials: vaultSvc,
		Collections: grid,
		Logger:      logger,
	})
	eng.AttachSynchronizations(syncSvc)
	scheduler := synch.NewScheduler(syncSvc, time.Duration(cfg.Synch.SchedulerInterval)*time.Second, logger)

	service := api.NewService(api.Deps{
		Engine:     eng,
		Queue:      store,
		Vault:      vaultSvc,
		Synch:      syncSvc,
		RecentSize: cfg.Conveyor.RecentQueueSize,
	})

	d, err := daemon.New(daemon.Deps{
		Config:    cfg,
		Engine:    eng,
		Service:   service,
		Scheduler: scheduler,
		Flows:     flows,
		Notifier:  notifier,
		Gatherer:  registry,
		Logger:    logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}

	return &Runtime{
		DB:       db,
		Queue:    store,
		Vault:    vaultSvc,
		Engine:   eng,
		Synch:    syncSvc,
		Service:  service,
		Daemon:   d,
		Registry: registry,
	}, nil
}

// Close stops the daemon and closes the database.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	if r.Daemon != nil {
		_ = r.Daemon.Close()
	}
	if r.DB != nil {
		return r.DB.Close()
	}
	return nil
}
