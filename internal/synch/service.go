package synch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/remote"
	"conveyor/internal/services"
	"conveyor/internal/vault"
)

const component = "synch"

// Credentials resolves the account a synchronization runs as.
type Credentials interface {
	CredentialFor(ctx context.Context, accountID int64) (*vault.Credential, error)
}

// Collections checks remote directories. remote.Client satisfies it.
type Collections interface {
	IsCollection(ctx context.Context, cred vault.Credential, path string) (bool, error)
}

// Pending reports whether a synchronization still has a queued run.
// queue.Store satisfies it.
type Pending interface {
	HasPending(ctx context.Context, syncID int64) (bool, error)
}

// Enqueuer accepts SYNCH transfers. engine.Engine satisfies it.
type Enqueuer interface {
	EnqueueSynch(ctx context.Context, accountID, syncID int64, localPath, remotePath, resource string) (*queue.Transfer, error)
}

// Deps are the collaborators a Service needs.
type Deps struct {
	Store       *Store
	Pending     Pending
	Enqueuer    Enqueuer
	Credentials Credentials
	Collections Collections
	Logger      *slog.Logger
}

// Service validates, stores and triggers synchronizations.
type Service struct {
	store       *Store
	pending     Pending
	enqueuer    Enqueuer
	credentials Credentials
	collections Collections
	logger      *slog.Logger
	now         func() time.Time

	// triggerMu covers the pending check and the enqueue that follows it.
	triggerMu sync.Mutex
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	return &Service{
		store:       deps.Store,
		pending:     deps.Pending,
		enqueuer:    deps.Enqueuer,
		credentials: deps.Credentials,
		collections: deps.Collections,
		logger:      logging.NewComponentLogger(deps.Logger, component),
		now:         time.Now,
	}
}

// AddOrUpdate validates spec and persists it. The local directory and the
// remote collection must both exist, and the account must resolve to a
// credential.
func (s *Service) AddOrUpdate(ctx context.Context, spec Spec) (*Synchronization, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.LocalDir = strings.TrimSpace(spec.LocalDir)
	spec.RemoteDir = strings.TrimSpace(spec.RemoteDir)
	spec.Resource = strings.TrimSpace(spec.Resource)
	spec.FrequencyType = FrequencyType(strings.ToUpper(string(spec.FrequencyType)))
	spec.Mode = Mode(strings.ToUpper(string(spec.Mode)))
	if err := services.ValidateStruct(component, "save synchronization", spec); err != nil {
		return nil, err
	}
	if spec.FrequencyType == FrequencyEveryNMinutes && spec.FrequencyMinutes < 1 {
		return nil, services.Validation(component, "save synchronization", "frequency_minutes must be at least 1 for EVERY_N_MINUTES")
	}
	if spec.FrequencyType != FrequencyEveryNMinutes {
		spec.FrequencyMinutes = 0
	}
	spec.LocalDir = filepath.Clean(spec.LocalDir)
	spec.RemoteDir = path.Clean(spec.RemoteDir)

	info, err := os.Stat(spec.LocalDir)
	if err != nil || !info.IsDir() {
		return nil, services.Validation(component, "save synchronization", fmt.Sprintf("local directory %s does not exist", spec.LocalDir))
	}

	cred, err := s.credentials.CredentialFor(ctx, spec.AccountID)
	if err != nil {
		return nil, err
	}
	isCollection, err := s.collections.IsCollection(ctx, *cred, spec.RemoteDir)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, component, "save synchronization", "check remote directory", err)
	}
	if !isCollection {
		return nil, services.Validation(component, "save synchronization", fmt.Sprintf("remote directory %s does not exist", spec.RemoteDir))
	}

	existing, err := s.store.GetByName(ctx, spec.Name)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, component, "save synchronization", "lookup by name", err)
	}
	if existing != nil && existing.ID != spec.ID {
		return nil, services.Validation(component, "save synchronization", fmt.Sprintf("name %q is already used", spec.Name))
	}
	if spec.ID != 0 {
		current, err := s.store.GetByID(ctx, spec.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrExecution, component, "save synchronization", "lookup", err)
		}
		if current == nil {
			return nil, services.Wrap(services.ErrNotFound, component, "save synchronization", fmt.Sprintf("synchronization %d", spec.ID), nil)
		}
	}

	sync := &Synchronization{
		ID:               spec.ID,
		Name:             spec.Name,
		FrequencyType:    spec.FrequencyType,
		FrequencyMinutes: spec.FrequencyMinutes,
		Mode:             spec.Mode,
		LocalDir:         spec.LocalDir,
		RemoteDir:        spec.RemoteDir,
		Resource:         spec.Resource,
		AccountID:        spec.AccountID,
	}
	if err := s.store.Save(ctx, sync); err != nil {
		return nil, services.Wrap(services.ErrExecution, component, "save synchronization", "persist", err)
	}
	s.logger.Info("synchronization saved",
		logging.Int64(logging.FieldSyncID, sync.ID),
		logging.String("name", sync.Name),
		logging.String("frequency", string(sync.FrequencyType)),
		logging.String(logging.FieldEventType, "sync_saved"),
	)
	return sync, nil
}

// Get returns the synchronization or nil when absent.
func (s *Service) Get(ctx context.Context, id int64) (*Synchronization, error) {
	sync, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, component, "get synchronization", "", err)
	}
	return sync, nil
}

// List returns every synchronization.
func (s *Service) List(ctx context.Context) ([]*Synchronization, error) {
	syncs, err := s.store.List(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, component, "list synchronizations", "", err)
	}
	return syncs, nil
}

// Delete removes a synchronization with no run in the queue.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.mustGet(ctx, id, "delete synchronization"); err != nil {
		return err
	}
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()
	pending, err := s.pending.HasPending(ctx, id)
	if err != nil {
		return err
	}
	if pending {
		return services.Busy(component, "delete synchronization")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return services.Wrap(services.ErrExecution, component, "delete synchronization", "", err)
	}
	s.logger.Info("synchronization deleted",
		logging.Int64(logging.FieldSyncID, id),
		logging.String(logging.FieldEventType, "sync_deleted"),
	)
	return nil
}

// TriggerNow enqueues one run of the synchronization. It returns a nil
// transfer without error when an earlier run is still pending.
func (s *Service) TriggerNow(ctx context.Context, id int64) (*queue.Transfer, error) {
	sync, err := s.mustGet(ctx, id, "trigger synchronization")
	if err != nil {
		return nil, err
	}
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()
	pending, err := s.pending.HasPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if pending {
		s.logger.Info("synchronization already queued; trigger ignored",
			logging.Int64(logging.FieldSyncID, id),
			logging.String(logging.FieldDecisionType, "sync_dedup"),
		)
		return nil, nil
	}
	transfer, err := s.enqueuer.EnqueueSynch(ctx, sync.AccountID, sync.ID, sync.LocalDir, sync.RemoteDir, sync.Resource)
	if err != nil {
		return nil, err
	}
	s.logger.Info("synchronization triggered",
		logging.Int64(logging.FieldSyncID, id),
		logging.Int64(logging.FieldTransferID, transfer.ID),
		logging.String(logging.FieldEventType, "sync_triggered"),
	)
	return transfer, nil
}

// OperationFor maps the synchronization direction onto a remote operation.
func (s *Service) OperationFor(ctx context.Context, id int64) (remote.Operation, error) {
	sync, err := s.mustGet(ctx, id, "resolve synchronization")
	if err != nil {
		return "", err
	}
	if sync.Mode == ModeRemoteToLocal {
		return remote.OpGet, nil
	}
	return remote.OpPut, nil
}

// RecordOutcome stores the status of a finished run.
func (s *Service) RecordOutcome(ctx context.Context, id int64, status queue.Status, message string) error {
	if err := s.store.RecordOutcome(ctx, id, s.now(), status, message); err != nil {
		return services.Wrap(services.ErrExecution, component, "record outcome", "", err)
	}
	return nil
}

func (s *Service) mustGet(ctx context.Context, id int64, operation string) (*Synchronization, error) {
	sync, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, component, operation, "", err)
	}
	if sync == nil {
		return nil, services.Wrap(services.ErrNotFound, component, operation, fmt.Sprintf("synchronization %d", id), nil)
	}
	return sync, nil
}
