package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"conveyor/internal/api"
	"conveyor/internal/remote/localgrid"
	"conveyor/internal/testsupport"
)

func TestVaultCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	out := env.mustRun(t, "vault", "status")
	requireContains(t, out, "Pass phrase stored:    no")

	unlockWithAccount(t, env)

	var status api.VaultStatus
	decodeJSON(t, env.mustRun(t, "vault", "status", "--json"), &status)
	if !status.Stored || !status.Validated || status.Accounts != 1 {
		t.Fatalf("unexpected vault status %+v", status)
	}

	out = env.mustRun(t, "vault", "accounts")
	requireContains(t, out, "grid.example.org:1247")

	out, _, err := env.runWithInput(t, "rotated\nrotated\n", "vault", "change")
	if err != nil {
		t.Fatalf("vault change: %v", err)
	}
	requireContains(t, out, "Pass phrase changed")

	if _, _, err := env.runWithInput(t, "open sesame\n", "vault", "unlock"); err == nil {
		t.Fatal("expected the old pass phrase to be rejected")
	}
	if _, _, err := env.runWithInput(t, "rotated\n", "vault", "unlock"); err != nil {
		t.Fatalf("unlock with rotated pass phrase: %v", err)
	}

	if _, _, err := env.run(t, "vault", "reset"); err == nil {
		t.Fatal("expected reset without --yes to fail")
	}
	out = env.mustRun(t, "vault", "reset", "--yes")
	requireContains(t, out, "Vault reset")

	out = env.mustRun(t, "vault", "accounts")
	requireContains(t, out, "No grid accounts")
}

func TestVaultChangeRequiresMatchingPhrases(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := env.runWithInput(t, "first\nsecond\n", "vault", "change")
	if err == nil {
		t.Fatal("expected mismatch to fail")
	}
	requireContains(t, err.Error(), "do not match")
}

func TestSyncCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)
	unlockWithAccount(t, env)

	local := filepath.Join(env.baseDir, "mirror")
	testsupport.WriteFile(t, filepath.Join(local, "x.dat"), 16)
	remote := filepath.Join(env.cfg.Paths.GridRoot, localgrid.DefaultResource, "tempZone/home/rods/mirror")
	if err := os.MkdirAll(remote, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	out := env.mustRun(t, "sync", "add",
		"--name", "mirror",
		"--frequency", "manual",
		"--local", local,
		"--remote", "/tempZone/home/rods/mirror")
	requireContains(t, out, "Saved synchronization #1 (mirror)")

	out = env.mustRun(t, "sync", "list")
	requireContains(t, out, "mirror")
	requireContains(t, out, "MANUAL")

	out = env.mustRun(t, "sync", "trigger", "1")
	requireContains(t, out, "Queued SYNCH transfer #1")

	transfer := waitForState(t, env, "1", "COMPLETE")
	if transfer.Type != "SYNCH" || transfer.SynchronizationID != 1 {
		t.Fatalf("unexpected synch transfer %+v", transfer)
	}

	if _, _, err := env.run(t, "sync", "delete", "99"); err == nil {
		t.Fatal("expected delete of unknown synchronization to fail")
	}
	waitFor(t, 5*time.Second, func() bool {
		out, _, err := env.run(t, "sync", "delete", "1")
		return err == nil && out == "Deleted synchronization #1\n"
	})
}
