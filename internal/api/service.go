package api

import (
	"context"
	"fmt"
	"strings"

	"conveyor/internal/engine"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/synch"
	"conveyor/internal/vault"
)

const component = "api"

// Deps are the core services the facade wraps.
type Deps struct {
	Engine *engine.Engine
	Queue  *queue.Store
	Vault  *vault.Service
	Synch  *synch.Service
	// RecentSize bounds RecentQueue when the caller passes no limit.
	RecentSize int
}

// Service exposes conveyor operations returning API DTOs.
type Service struct {
	engine     *engine.Engine
	queue      *queue.Store
	vault      *vault.Service
	synch      *synch.Service
	recentSize int
}

// NewService constructs the facade.
func NewService(deps Deps) *Service {
	recent := deps.RecentSize
	if recent <= 0 {
		recent = 20
	}
	return &Service{
		engine:     deps.Engine,
		queue:      deps.Queue,
		vault:      deps.Vault,
		synch:      deps.Synch,
		recentSize: recent,
	}
}

// Enqueue creates a transfer of any type.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (Transfer, error) {
	typ, ok := queue.ParseType(req.Type)
	if !ok {
		return Transfer{}, services.Validation(component, "enqueue", fmt.Sprintf("unknown transfer type %q", req.Type))
	}
	var (
		t   *queue.Transfer
		err error
	)
	switch typ {
	case queue.TypePut:
		t, err = s.engine.EnqueuePut(ctx, req.AccountID, req.LocalPath, req.RemotePath, req.Resource)
	case queue.TypeGet:
		t, err = s.engine.EnqueueGet(ctx, req.AccountID, req.RemotePath, req.LocalPath, req.Resource)
	case queue.TypeReplicate:
		t, err = s.engine.EnqueueReplicate(ctx, req.AccountID, req.RemotePath, req.Resource)
	case queue.TypeCopy:
		t, err = s.engine.EnqueueCopy(ctx, req.AccountID, req.RemotePath, req.Target, req.Resource)
	case queue.TypeSynch:
		return Transfer{}, services.Validation(component, "enqueue", "synch transfers are created by triggering a synchronization")
	}
	if err != nil {
		return Transfer{}, err
	}
	return FromTransfer(t), nil
}

// Pause stops dispatching and pauses the active transfer.
func (s *Service) Pause() { s.engine.Pause() }

// Resume restarts dispatching.
func (s *Service) Resume() { s.engine.Resume() }

// Cancel cancels one transfer.
func (s *Service) Cancel(ctx context.Context, id int64) (Transfer, error) {
	t, err := s.engine.Cancel(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	return FromTransfer(t), nil
}

// Restart requeues a transfer keeping its restart cursor.
func (s *Service) Restart(ctx context.Context, id int64) (Transfer, error) {
	t, err := s.engine.Restart(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	return FromTransfer(t), nil
}

// Resubmit requeues a transfer from scratch.
func (s *Service) Resubmit(ctx context.Context, id int64) (Transfer, error) {
	t, err := s.engine.Resubmit(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	return FromTransfer(t), nil
}

// Remove deletes one transfer and its history.
func (s *Service) Remove(ctx context.Context, id int64) error {
	return s.engine.Delete(ctx, id)
}

// Purge removes history. Mode is "completed", "successful" or "all".
func (s *Service) Purge(ctx context.Context, mode string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "completed":
		return s.engine.PurgeCompleted(ctx)
	case "successful":
		return s.engine.PurgeSuccessful(ctx)
	case "all":
		return s.engine.PurgeAll(ctx)
	}
	return 0, services.Validation(component, "purge", fmt.Sprintf("unknown purge mode %q", mode))
}

// CurrentQueue lists ENQUEUED, PROCESSING and PAUSED transfers in run order.
func (s *Service) CurrentQueue(ctx context.Context) ([]Transfer, error) {
	transfers, err := s.queue.List(ctx, queue.PendingStates()...)
	if err != nil {
		return nil, err
	}
	return FromTransfers(transfers), nil
}

// RecentQueue lists the newest transfers in any state.
func (s *Service) RecentQueue(ctx context.Context, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = s.recentSize
	}
	transfers, err := s.queue.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return FromTransfers(transfers), nil
}

// ErrorQueue lists transfers whose last status is ERROR.
func (s *Service) ErrorQueue(ctx context.Context) ([]Transfer, error) {
	return s.byStatus(ctx, queue.StatusError)
}

// WarningQueue lists transfers whose last status is WARNING.
func (s *Service) WarningQueue(ctx context.Context) ([]Transfer, error) {
	return s.byStatus(ctx, queue.StatusWarning)
}

func (s *Service) byStatus(ctx context.Context, status queue.Status) ([]Transfer, error) {
	transfers, err := s.queue.ListByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	return FromTransfers(transfers), nil
}

// Describe returns a transfer with its attempts.
func (s *Service) Describe(ctx context.Context, id int64) (Transfer, error) {
	t, err := s.queue.GetWithAttempts(ctx, id)
	if err != nil {
		return Transfer{}, err
	}
	if t == nil {
		return Transfer{}, services.Wrap(services.ErrNotFound, component, "describe", fmt.Sprintf("transfer %d", id), nil)
	}
	return FromTransfer(t), nil
}

// Items pages through the items of a transfer's current attempt.
func (s *Service) Items(ctx context.Context, transferID int64, filter queue.ItemFilter) (ItemPage, error) {
	attempt, err := s.queue.CurrentAttempt(ctx, transferID)
	if err != nil {
		return ItemPage{}, err
	}
	if attempt == nil {
		return ItemPage{}, services.Wrap(services.ErrNotFound, component, "list items", fmt.Sprintf("transfer %d has no attempts", transferID), nil)
	}
	items, err := s.queue.ListItems(ctx, attempt.ID, filter)
	if err != nil {
		return ItemPage{}, err
	}
	total, err := s.queue.CountItems(ctx, attempt.ID)
	if err != nil {
		return ItemPage{}, err
	}
	return ItemPage{AttemptID: attempt.ID, Total: total, Items: FromItems(items)}, nil
}

// Status returns the engine summary.
func (s *Service) Status(ctx context.Context) EngineStatus {
	return FromSummary(s.engine.Status(ctx))
}

// VaultStatus reports whether a pass phrase exists and is unlocked.
func (s *Service) VaultStatus(ctx context.Context) (VaultStatus, error) {
	stored, err := s.vault.IsPassPhraseStored(ctx)
	if err != nil {
		return VaultStatus{}, err
	}
	accounts, err := s.vault.ListGridAccounts(ctx)
	if err != nil {
		return VaultStatus{}, err
	}
	return VaultStatus{Stored: stored, Validated: s.vault.IsPassPhraseValidated(), Accounts: len(accounts)}, nil
}

// ValidatePassPhrase unlocks the vault, adopting phrase when none is stored.
func (s *Service) ValidatePassPhrase(ctx context.Context, phrase string) error {
	return s.vault.ValidatePassPhrase(ctx, phrase)
}

// ChangePassPhrase rotates the vault key.
func (s *Service) ChangePassPhrase(ctx context.Context, phrase string) error {
	return s.vault.ChangePassPhrase(ctx, phrase)
}

// SaveAccount adds or updates a grid account.
func (s *Service) SaveAccount(ctx context.Context, spec vault.AccountSpec) (Account, error) {
	account, err := s.vault.AddOrUpdateGridAccount(ctx, spec)
	if err != nil {
		return Account{}, err
	}
	return FromAccount(account), nil
}

// DeleteAccount removes a grid account.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	return s.vault.DeleteGridAccount(ctx, id)
}

// Accounts lists grid accounts.
func (s *Service) Accounts(ctx context.Context) ([]Account, error) {
	accounts, err := s.vault.ListGridAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, FromAccount(a))
	}
	return out, nil
}

// ResetVault deletes every account and the stored pass phrase.
func (s *Service) ResetVault(ctx context.Context) error {
	return s.vault.ResetAll(ctx)
}

// SaveSynchronization adds or updates a synchronization.
func (s *Service) SaveSynchronization(ctx context.Context, spec synch.Spec) (Synchronization, error) {
	sync, err := s.synch.AddOrUpdate(ctx, spec)
	if err != nil {
		return Synchronization{}, err
	}
	return FromSynchronization(sync), nil
}

// DeleteSynchronization removes a synchronization.
func (s *Service) DeleteSynchronization(ctx context.Context, id int64) error {
	return s.synch.Delete(ctx, id)
}

// Synchronizations lists synchronizations.
func (s *Service) Synchronizations(ctx context.Context) ([]Synchronization, error) {
	syncs, err := s.synch.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Synchronization, 0, len(syncs))
	for _, sync := range syncs {
		out = append(out, FromSynchronization(sync))
	}
	return out, nil
}

// TriggerSynchronization enqueues a run now. The returned transfer is nil
// when a run is already pending.
func (s *Service) TriggerSynchronization(ctx context.Context, id int64) (*Transfer, error) {
	t, err := s.synch.TriggerNow(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	dto := FromTransfer(t)
	return &dto, nil
}
