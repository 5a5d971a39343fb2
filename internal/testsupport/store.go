package testsupport

import (
	"context"
	"testing"

	"conveyor/internal/config"
	"conveyor/internal/database"
	"conveyor/internal/queue"
)

// MustOpenDatabase opens the conveyor database for tests and registers cleanup.
func MustOpenDatabase(t testing.TB, cfg *config.Config) *database.DB {
	t.Helper()

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// MustOpenQueue opens the database and returns a queue store honouring the
// config's success-logging flag.
func MustOpenQueue(t testing.TB, cfg *config.Config) (*queue.Store, *database.DB) {
	t.Helper()

	db := MustOpenDatabase(t, cfg)
	store := queue.New(db, queue.Options{LogSuccessfulTransfers: cfg.Conveyor.LogSuccessfulTransfers})
	return store, db
}

// MustInsertAccount writes a bare grid account row so transfers have a valid
// owner. The password column holds a placeholder rather than ciphertext.
func MustInsertAccount(t testing.TB, db *database.DB, host string) int64 {
	t.Helper()

	now := database.Now()
	res, err := db.Exec(context.Background(),
		`INSERT INTO grid_accounts (host, port, zone, user_name, password_cipher, created_at, updated_at)
         VALUES (?, 1247, 'tempZone', 'rods', 'x', ?, ?)`, host, now, now)
	if err != nil {
		t.Fatalf("insert account: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("account id: %v", err)
	}
	return id
}
