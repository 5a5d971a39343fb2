package synch

import (
	"context"
	"log/slog"
	"time"

	"conveyor/internal/logging"
)

// Scheduler triggers due synchronizations on a fixed cadence.
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler builds a scheduler ticking every interval.
func NewScheduler(service *Service, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		service:  service,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "synch-scheduler"),
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce triggers every due synchronization and returns how many were
// enqueued.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	syncs, err := s.service.List(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "failed to list synchronizations", "sync_list_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return 0
	}
	now := s.now()
	triggered := 0
	for _, sync := range syncs {
		if ctx.Err() != nil {
			return triggered
		}
		if !sync.Due(now) {
			continue
		}
		transfer, err := s.service.TriggerNow(ctx, sync.ID)
		if err != nil {
			logging.WarnWithContext(s.logger, "scheduled synchronization failed to enqueue", "sync_trigger_failed",
				logging.Int64(logging.FieldSyncID, sync.ID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the synchronization's account and directories"),
			)
			continue
		}
		if transfer != nil {
			triggered++
		}
	}
	return triggered
}
