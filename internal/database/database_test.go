package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"conveyor/internal/database"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conveyor.db")

	db, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	version, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != 1 {
		t.Fatalf("unexpected schema version %d", version)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
}

func TestSchemaMismatchRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conveyor.db")
	db, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	if _, err := db.Exec(context.Background(), "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := database.OpenPath(path); !errors.Is(err, database.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	db, err := database.OpenPath(filepath.Join(t.TempDir(), "conveyor.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(context.Background(),
		`INSERT INTO transfers (type, state, status, local_path, remote_path, account_id, created_at, updated_at)
		 VALUES ('PUT', 'ENQUEUED', 'OK', '/a', '/b', 999, ?, ?)`, database.Now(), database.Now())
	if err == nil {
		t.Fatal("expected foreign key violation for missing account")
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := database.RetryOnBusy(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("expected single call returning boom, got %d calls err=%v", calls, err)
	}

	calls = 0
	err = database.RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("SQLITE_BUSY: database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success after retries, got %d calls err=%v", calls, err)
	}
}

func TestHelpers(t *testing.T) {
	if database.Placeholders(3) != "?,?,?" {
		t.Fatalf("unexpected placeholders %q", database.Placeholders(3))
	}
	if database.Placeholders(0) != "" {
		t.Fatal("expected empty placeholders")
	}
	if database.NullableString("") != nil {
		t.Fatal("expected nil for empty string")
	}
	now := time.Date(2024, 5, 1, 12, 30, 0, 42, time.UTC)
	parsed, err := database.ParseTime(database.FormatTime(now))
	if err != nil || !parsed.Equal(now) {
		t.Fatalf("time round trip failed: %v %v", parsed, err)
	}
	if database.ParseTimePtr("") != nil {
		t.Fatal("expected nil for empty time")
	}
}
