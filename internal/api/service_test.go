package api_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"conveyor/internal/api"
	"conveyor/internal/engine"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/queuelock"
	"conveyor/internal/remote/localgrid"
	"conveyor/internal/services"
	"conveyor/internal/synch"
	"conveyor/internal/testsupport"
	"conveyor/internal/vault"
)

type stack struct {
	svc      *api.Service
	grid     string
	base     string
	finished chan engine.Finished
}

func newStack(t *testing.T) *stack {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithSuccessLogging(true))
	store, db := testsupport.MustOpenQueue(t, cfg)
	lock := queuelock.New()
	logger := logging.NewNop()

	vaultSvc := vault.New(vault.NewStore(db), lock, vault.ParamsFrom(cfg.Vault), vault.WithLogger(logger))
	grid := localgrid.New(cfg.Paths.GridRoot, localgrid.WithLogger(logger))
	eng := engine.New(engine.Deps{
		Config:      cfg,
		Store:       store,
		Credentials: vaultSvc,
		Lock:        lock,
		Client:      grid,
		Logger:      logger,
	})
	syncSvc := synch.NewService(synch.Deps{
		Store:       synch.NewStore(db),
		Pending:     store,
		Enqueuer:    eng,
		Credentials: vaultSvc,
		Collections: grid,
		Logger:      logger,
	})
	eng.AttachSynchronizations(syncSvc)

	s := &stack{
		svc: api.NewService(api.Deps{
			Engine:     eng,
			Queue:      store,
			Vault:      vaultSvc,
			Synch:      syncSvc,
			RecentSize: cfg.Conveyor.RecentQueueSize,
		}),
		grid:     cfg.Paths.GridRoot,
		base:     testsupport.BaseDir(cfg),
		finished: make(chan engine.Finished, 8),
	}
	eng.Subscribe(engine.ListenerFuncs{OnFinished: func(f engine.Finished) { s.finished <- f }})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(eng.Stop)
	return s
}

func (s *stack) waitFinished(t *testing.T) engine.Finished {
	t.Helper()
	select {
	case f := <-s.finished:
		return f
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for transfer to finish")
	}
	return engine.Finished{}
}

func (s *stack) addAccount(t *testing.T) api.Account {
	t.Helper()
	ctx := context.Background()
	if err := s.svc.ValidatePassPhrase(ctx, "correct horse"); err != nil {
		t.Fatalf("ValidatePassPhrase failed: %v", err)
	}
	account, err := s.svc.SaveAccount(ctx, vault.AccountSpec{
		Host:     "grid.example.org",
		Port:     1247,
		Zone:     "tempZone",
		UserName: "rods",
		Password: "rods",
	})
	if err != nil {
		t.Fatalf("SaveAccount failed: %v", err)
	}
	return account
}

func (s *stack) sourceTree(t *testing.T, names ...string) string {
	t.Helper()
	dir := filepath.Join(s.base, "src", "batch")
	for _, name := range names {
		testsupport.WriteFile(t, filepath.Join(dir, name), 16)
	}
	return dir
}

func TestPutThroughFacade(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	account := s.addAccount(t)
	src := s.sourceTree(t, "a.txt", "b.txt")

	created, err := s.svc.Enqueue(ctx, api.EnqueueRequest{
		Type:       "put",
		AccountID:  account.ID,
		LocalPath:  src,
		RemotePath: "/tempZone/home/rods",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if created.Type != string(queue.TypePut) {
		t.Fatalf("unexpected type %q", created.Type)
	}

	f := s.waitFinished(t)
	if f.Transfer.Status != queue.StatusOK {
		t.Fatalf("expected OK, got %s (%s)", f.Transfer.Status, f.Attempt.GlobalException)
	}
	if _, err := os.Stat(filepath.Join(s.grid, localgrid.DefaultResource, "tempZone/home/rods/batch/b.txt")); err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}

	described, err := s.svc.Describe(ctx, created.ID)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if described.State != string(queue.StateComplete) || len(described.Attempts) != 1 {
		t.Fatalf("unexpected transfer %+v", described)
	}
	if described.Attempts[0].FilesTransferred != 2 {
		t.Fatalf("expected 2 files, got %d", described.Attempts[0].FilesTransferred)
	}

	page, err := s.svc.Items(ctx, created.ID, queue.ItemFilter{ShowSuccess: true, Limit: 1})
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 1 {
		t.Fatalf("unexpected page total=%d items=%d", page.Total, len(page.Items))
	}

	recent, err := s.svc.RecentQueue(ctx, 0)
	if err != nil {
		t.Fatalf("RecentQueue failed: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != created.ID {
		t.Fatalf("unexpected recent queue %+v", recent)
	}
	current, err := s.svc.CurrentQueue(ctx)
	if err != nil {
		t.Fatalf("CurrentQueue failed: %v", err)
	}
	if len(current) != 0 {
		t.Fatalf("expected empty current queue, got %d", len(current))
	}

	status := s.svc.Status(ctx)
	if status.Total != 1 || status.Pending != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestMissingSourceLandsInErrorQueue(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	account := s.addAccount(t)

	created, err := s.svc.Enqueue(ctx, api.EnqueueRequest{
		Type:       "PUT",
		AccountID:  account.ID,
		LocalPath:  filepath.Join(s.base, "does-not-exist"),
		RemotePath: "/tempZone/home/rods",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if f := s.waitFinished(t); f.Transfer.Status != queue.StatusError {
		t.Fatalf("expected ERROR, got %s", f.Transfer.Status)
	}

	errorsQueue, err := s.svc.ErrorQueue(ctx)
	if err != nil {
		t.Fatalf("ErrorQueue failed: %v", err)
	}
	if len(errorsQueue) != 1 || errorsQueue[0].ID != created.ID {
		t.Fatalf("unexpected error queue %+v", errorsQueue)
	}
	warnings, err := s.svc.WarningQueue(ctx)
	if err != nil {
		t.Fatalf("WarningQueue failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %d", len(warnings))
	}

	// The queue lock is released just after the finished event.
	var removed int64
	deadline := time.Now().Add(5 * time.Second)
	for {
		removed, err = s.svc.Purge(ctx, "all")
		if !errors.Is(err, services.ErrConveyorBusy) || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 purged transfer, got %d", removed)
	}
}

func TestEnqueueRejectsUnknownAndSynchTypes(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	for _, typ := range []string{"MOVE", "SYNCH"} {
		_, err := s.svc.Enqueue(ctx, api.EnqueueRequest{Type: typ, AccountID: 1, LocalPath: "/tmp", RemotePath: "/z"})
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", typ, err)
		}
	}
	if _, err := s.svc.Purge(ctx, "everything"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for purge mode, got %v", err)
	}
}

func TestDescribeAndItemsReportNotFound(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	if _, err := s.svc.Describe(ctx, 99); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.svc.Items(ctx, 99, queue.ItemFilter{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVaultStatusAndAccounts(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	status, err := s.svc.VaultStatus(ctx)
	if err != nil {
		t.Fatalf("VaultStatus failed: %v", err)
	}
	if status.Stored || status.Validated {
		t.Fatalf("expected empty vault, got %+v", status)
	}

	account := s.addAccount(t)
	status, err = s.svc.VaultStatus(ctx)
	if err != nil {
		t.Fatalf("VaultStatus failed: %v", err)
	}
	if !status.Stored || !status.Validated || status.Accounts != 1 {
		t.Fatalf("unexpected vault status %+v", status)
	}

	accounts, err := s.svc.Accounts(ctx)
	if err != nil {
		t.Fatalf("Accounts failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].UserName != "rods" {
		t.Fatalf("unexpected accounts %+v", accounts)
	}
	if err := s.svc.DeleteAccount(ctx, account.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if err := s.svc.ResetVault(ctx); err != nil {
		t.Fatalf("ResetVault failed: %v", err)
	}
	status, err = s.svc.VaultStatus(ctx)
	if err != nil {
		t.Fatalf("VaultStatus failed: %v", err)
	}
	if status.Stored || status.Validated {
		t.Fatalf("expected reset vault, got %+v", status)
	}
}

func TestSynchronizationTriggerRunsTransfer(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	account := s.addAccount(t)
	src := s.sourceTree(t, "one.txt")
	if err := os.MkdirAll(filepath.Join(s.grid, localgrid.DefaultResource, "tempZone/home/rods/mirror"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	sync, err := s.svc.SaveSynchronization(ctx, synch.Spec{
		Name:          "nightly",
		FrequencyType: synch.FrequencyManual,
		Mode:          synch.ModeLocalToRemote,
		LocalDir:      src,
		RemoteDir:     "/tempZone/home/rods/mirror",
		AccountID:     account.ID,
	})
	if err != nil {
		t.Fatalf("SaveSynchronization failed: %v", err)
	}

	transfer, err := s.svc.TriggerSynchronization(ctx, sync.ID)
	if err != nil {
		t.Fatalf("TriggerSynchronization failed: %v", err)
	}
	if transfer == nil || transfer.Type != string(queue.TypeSynch) {
		t.Fatalf("unexpected trigger result %+v", transfer)
	}
	if f := s.waitFinished(t); f.Transfer.Status != queue.StatusOK {
		t.Fatalf("expected OK, got %s (%s)", f.Transfer.Status, f.Attempt.GlobalException)
	}

	syncs, err := s.svc.Synchronizations(ctx)
	if err != nil {
		t.Fatalf("Synchronizations failed: %v", err)
	}
	if len(syncs) != 1 || syncs[0].LastStatus != string(queue.StatusOK) || syncs[0].LastSynchronized == "" {
		t.Fatalf("unexpected synchronization %+v", syncs)
	}
	if err := s.svc.DeleteSynchronization(ctx, sync.ID); err != nil {
		t.Fatalf("DeleteSynchronization failed: %v", err)
	}
}
