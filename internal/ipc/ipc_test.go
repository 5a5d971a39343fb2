package ipc_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"conveyor/internal/api"
	"conveyor/internal/daemonrun"
	"conveyor/internal/ipc"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/synch"
	"conveyor/internal/testsupport"
	"conveyor/internal/vault"
)

func startServer(t *testing.T) (*ipc.Client, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	rt, err := daemonrun.Assemble(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	t.Cleanup(func() {
		rt.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Paths.StateDir, "conveyor.sock")
	srv, err := ipc.NewServer(ctx, socket, rt.Daemon, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client, testsupport.BaseDir(cfg)
}

func TestIPCServerClient(t *testing.T) {
	client, base := startServer(t)

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}
	again, err := client.Start()
	if err != nil {
		t.Fatalf("second Start RPC failed: %v", err)
	}
	if again.Started {
		t.Fatal("expected second start to be refused")
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() {
		t.Fatalf("unexpected status %+v", status)
	}

	if err := client.VaultUnlock("open sesame"); err != nil {
		t.Fatalf("VaultUnlock failed: %v", err)
	}
	account, err := client.AccountSave(vault.AccountSpec{
		Host:     "grid.example.org",
		Port:     1247,
		Zone:     "tempZone",
		UserName: "rods",
		Password: "rods",
	})
	if err != nil {
		t.Fatalf("AccountSave failed: %v", err)
	}

	src := filepath.Join(base, "upload", "batch")
	testsupport.WriteFile(t, filepath.Join(src, "a.dat"), 64)
	testsupport.WriteFile(t, filepath.Join(src, "nested", "b.dat"), 64)

	created, err := client.Enqueue(api.EnqueueRequest{
		Type:       "PUT",
		AccountID:  account.ID,
		LocalPath:  src,
		RemotePath: "/tempZone/home/rods",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	var described api.Transfer
	deadline := time.Now().Add(5 * time.Second)
	for {
		described, err = client.Describe(created.ID)
		if err != nil {
			t.Fatalf("Describe failed: %v", err)
		}
		if described.State == string(queue.StateComplete) || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if described.State != string(queue.StateComplete) || described.Status != string(queue.StatusOK) {
		t.Fatalf("unexpected final transfer %+v", described)
	}

	recent, err := client.QueueList("recent", 10)
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != created.ID {
		t.Fatalf("unexpected recent queue %+v", recent)
	}

	page, err := client.Items(ipc.ItemsRequest{TransferID: created.ID, ShowSuccess: true})
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected items page %+v", page)
	}

	running, err := client.Pause()
	if err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if running != "PAUSED" {
		t.Fatalf("expected PAUSED, got %q", running)
	}
	if running, err = client.Resume(); err != nil || running != "IDLE" {
		t.Fatalf("expected IDLE after resume, got %q (%v)", running, err)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected Stopped=true")
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status after stop failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestIPCErrorsKeepTheirKind(t *testing.T) {
	client, base := startServer(t)

	if _, err := client.Describe(404); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := client.Purge("sometimes"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := client.QueueList("bogus", 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := client.AccountSave(vault.AccountSpec{Host: "h", Port: 1, Zone: "z", UserName: "u", Password: "p"}); !errors.Is(err, services.ErrPassPhraseNotValidated) {
		t.Fatalf("expected pass phrase not validated, got %v", err)
	}

	if err := client.VaultUnlock("first"); err != nil {
		t.Fatalf("VaultUnlock failed: %v", err)
	}
	if err := client.VaultUnlock("second"); !errors.Is(err, services.ErrPassPhraseInvalid) {
		t.Fatalf("expected invalid pass phrase, got %v", err)
	}
	status, err := client.VaultStatus()
	if err != nil {
		t.Fatalf("VaultStatus failed: %v", err)
	}
	if !status.Stored || status.Validated {
		t.Fatalf("unexpected vault status %+v", status)
	}

	if err := client.VaultUnlock("first"); err != nil {
		t.Fatalf("VaultUnlock failed: %v", err)
	}
	account, err := client.AccountSave(vault.AccountSpec{Host: "grid", Port: 1247, Zone: "tempZone", UserName: "rods", Password: "rods"})
	if err != nil {
		t.Fatalf("AccountSave failed: %v", err)
	}
	_, err = client.SyncSave(synch.Spec{
		Name:          "mirror",
		FrequencyType: synch.FrequencyDaily,
		Mode:          synch.ModeLocalToRemote,
		LocalDir:      filepath.Join(base, "missing"),
		RemoteDir:     "/tempZone/home/rods",
		AccountID:     account.ID,
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing local dir, got %v", err)
	}
	syncs, err := client.Syncs()
	if err != nil {
		t.Fatalf("Syncs failed: %v", err)
	}
	if len(syncs) != 0 {
		t.Fatalf("expected no synchronizations, got %d", len(syncs))
	}
	if err := client.SyncDelete(7); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
