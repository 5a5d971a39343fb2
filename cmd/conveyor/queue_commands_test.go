package main

import (
	"path/filepath"
	"testing"
	"time"

	"conveyor/internal/api"
	"conveyor/internal/testsupport"
)

func unlockWithAccount(t *testing.T, env *cliTestEnv) {
	t.Helper()
	out, stderr, err := env.runWithInput(t, "open sesame\n", "vault", "unlock")
	if err != nil {
		t.Fatalf("vault unlock: %v (%s)", err, stderr)
	}
	requireContains(t, out, "Vault unlocked")

	out, stderr, err = env.runWithInput(t, "rods\n",
		"vault", "add-account", "--host", "grid.example.org", "--zone", "tempZone", "--user", "rods")
	if err != nil {
		t.Fatalf("vault add-account: %v (%s)", err, stderr)
	}
	requireContains(t, out, "Saved grid account #1")
}

func waitForState(t *testing.T, env *cliTestEnv, id, state string) api.Transfer {
	t.Helper()
	var transfer api.Transfer
	waitFor(t, 5*time.Second, func() bool {
		out, _, err := env.run(t, "queue", "describe", id, "--json")
		if err != nil {
			return false
		}
		decodeJSON(t, out, &transfer)
		return transfer.State == state
	})
	return transfer
}

func TestPutTransferLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)
	unlockWithAccount(t, env)

	src := filepath.Join(env.baseDir, "upload", "batch")
	testsupport.WriteFile(t, filepath.Join(src, "a.dat"), 32)
	testsupport.WriteFile(t, filepath.Join(src, "nested", "b.dat"), 32)

	out := env.mustRun(t, "put", src, "/tempZone/home/rods")
	requireContains(t, out, "Queued PUT transfer #1")

	transfer := waitForState(t, env, "1", "COMPLETE")
	if transfer.Status != "OK" {
		t.Fatalf("expected OK status, got %+v", transfer)
	}
	if len(transfer.Attempts) != 1 || transfer.Attempts[0].FilesTransferred != 2 {
		t.Fatalf("unexpected attempts %+v", transfer.Attempts)
	}

	out = env.mustRun(t, "queue", "recent")
	requireContains(t, out, "PUT")
	requireContains(t, out, "COMPLETE")

	out = env.mustRun(t, "queue", "items", "1", "--success")
	requireContains(t, out, "Showing 2 of 2 items")

	out = env.mustRun(t, "queue", "list")
	requireContains(t, out, "No transfers")

	out = env.mustRun(t, "queue", "describe", "1")
	requireContains(t, out, "Transfer:  #1 PUT")

	out = env.mustRun(t, "daemon", "status")
	requireContains(t, out, "Daemon:   running")
	requireContains(t, out, "COMPLETE")
}

func TestMissingSourceShowsInErrorQueue(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)
	unlockWithAccount(t, env)

	missing := filepath.Join(env.baseDir, "does-not-exist")
	env.mustRun(t, "put", missing, "/tempZone/home/rods", "--account", "1")
	transfer := waitForState(t, env, "1", "COMPLETE")
	if transfer.Status != "ERROR" {
		t.Fatalf("expected ERROR status, got %+v", transfer)
	}

	out := env.mustRun(t, "queue", "errors")
	requireContains(t, out, "ERROR")

	out = env.mustRun(t, "queue", "resubmit", "1")
	requireContains(t, out, "Resubmitted transfer #1")
	waitForState(t, env, "1", "COMPLETE")

	waitFor(t, 5*time.Second, func() bool {
		out, _, err := env.run(t, "queue", "remove", "1")
		return err == nil && out == "Removed transfer #1\n"
	})
	if _, _, err := env.run(t, "queue", "describe", "1"); err == nil {
		t.Fatal("expected describe of removed transfer to fail")
	}
}

func TestQueueEngineControls(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	out := env.mustRun(t, "queue", "pause")
	requireContains(t, out, "Engine is PAUSED")
	out = env.mustRun(t, "queue", "resume")
	requireContains(t, out, "Engine is IDLE")

	out = env.mustRun(t, "queue", "purge", "all")
	requireContains(t, out, "Purged 0 transfers")

	_, _, err := env.run(t, "queue", "purge", "sometimes")
	if err == nil {
		t.Fatal("expected unknown purge mode to fail")
	}
	requireContains(t, err.Error(), "unknown purge mode")

	if _, _, err := env.run(t, "queue", "cancel", "abc"); err == nil {
		t.Fatal("expected invalid id to fail")
	}
}

func TestPutWithoutAccountsFails(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	_, _, err := env.run(t, "put", env.baseDir, "/tempZone/home/rods")
	if err == nil {
		t.Fatal("expected put without accounts to fail")
	}
	requireContains(t, err.Error(), "no grid accounts configured")
}

func TestCommandsWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := env.run(t, "queue", "list")
	if err == nil {
		t.Fatal("expected queue list to fail without daemon")
	}
	requireContains(t, err.Error(), "not found")

	out := env.mustRun(t, "daemon", "status")
	requireContains(t, out, "Daemon:   not running")
	requireContains(t, out, "Queue is empty")

	out = env.mustRun(t, "daemon", "stop")
	requireContains(t, out, "Daemon is not running")
}
