package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"conveyor/internal/database"
	"conveyor/internal/services"
)

const component = "queue"

const transferColumns = "id, type, state, status, local_path, remote_path, resource, account_id, synchronization_id, created_at, updated_at"

// Options tunes store behaviour.
type Options struct {
	// LogSuccessfulTransfers records an item for every successful file.
	LogSuccessfulTransfers bool
}

// Store manages transfer persistence backed by SQLite.
type Store struct {
	db   *database.DB
	opts Options
}

// New binds a Store to an open database.
func New(db *database.DB, opts Options) *Store {
	return &Store{db: db, opts: opts}
}

// LogsSuccesses reports whether successful files produce items.
func (s *Store) LogsSuccesses() bool {
	return s.opts.LogSuccessfulTransfers
}

func storeErr(operation string, err error) error {
	return services.Wrap(services.ErrExecution, component, operation, "", err)
}

// Enqueue validates req and persists a new ENQUEUED transfer with status OK.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*Transfer, error) {
	req.LocalPath = strings.TrimSpace(req.LocalPath)
	req.RemotePath = strings.TrimSpace(req.RemotePath)
	req.Resource = strings.TrimSpace(req.Resource)
	if err := validateEnqueue(req); err != nil {
		return nil, err
	}

	now := database.Now()
	var syncID any
	if req.SynchronizationID > 0 {
		syncID = req.SynchronizationID
	}
	res, err := s.db.Exec(ctx,
		`INSERT INTO transfers (type, state, status, local_path, remote_path, resource, account_id, synchronization_id, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(req.Type), string(StateEnqueued), string(StatusOK),
		req.LocalPath, req.RemotePath, req.Resource, req.AccountID, syncID, now, now,
	)
	if err != nil {
		return nil, storeErr("enqueue", fmt.Errorf("insert transfer: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storeErr("enqueue", fmt.Errorf("last insert id: %w", err))
	}
	return s.GetByID(ctx, id)
}

func validateEnqueue(req EnqueueRequest) error {
	if err := services.ValidateStruct(component, "enqueue", req); err != nil {
		return err
	}
	switch req.Type {
	case TypePut, TypeGet, TypeSynch, TypeCopy:
		if req.LocalPath == "" {
			return services.Validation(component, "enqueue", "local_path is required")
		}
	case TypeReplicate:
		if req.Resource == "" {
			return services.Validation(component, "enqueue", "resource is required for replication")
		}
	}
	if req.Type == TypeSynch && req.SynchronizationID == 0 {
		return services.Validation(component, "enqueue", "synchronization_id is required for SYNCH transfers")
	}
	return nil
}

// GetByID fetches a transfer without its attempts. Missing transfers return nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Transfer, error) {
	row := s.db.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id)
	transfer, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get transfer", err)
	}
	return transfer, nil
}

// GetWithAttempts fetches a transfer and its attempts in creation order.
func (s *Store) GetWithAttempts(ctx context.Context, id int64) (*Transfer, error) {
	transfer, err := s.GetByID(ctx, id)
	if err != nil || transfer == nil {
		return transfer, err
	}
	attempts, err := s.ListAttempts(ctx, id)
	if err != nil {
		return nil, err
	}
	transfer.Attempts = attempts
	return transfer, nil
}

// mustGet is GetByID that reports a missing row as ErrNotFound.
func (s *Store) mustGet(ctx context.Context, id int64, operation string) (*Transfer, error) {
	transfer, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, services.Wrap(services.ErrNotFound, component, operation, fmt.Sprintf("transfer %d", id), nil)
	}
	return transfer, nil
}

// List returns transfers in creation order, optionally filtered by state.
func (s *Store) List(ctx context.Context, states ...State) ([]*Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (` + database.Placeholders(len(states)) + `)`
		for _, st := range states {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY id`
	return s.queryTransfers(ctx, "list transfers", query, args...)
}

// ListRecent returns the newest limit transfers, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Transfer, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryTransfers(ctx, "list recent transfers",
		`SELECT `+transferColumns+` FROM transfers ORDER BY id DESC LIMIT ?`, limit)
}

// ListByStatus returns transfers whose last overall status matches, newest first.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]*Transfer, error) {
	return s.queryTransfers(ctx, "list transfers by status",
		`SELECT `+transferColumns+` FROM transfers WHERE status = ? ORDER BY id DESC`, string(status))
}

// ListBySynchronization returns the transfers spawned by a synchronization in creation order.
func (s *Store) ListBySynchronization(ctx context.Context, syncID int64) ([]*Transfer, error) {
	return s.queryTransfers(ctx, "list synchronization transfers",
		`SELECT `+transferColumns+` FROM transfers WHERE synchronization_id = ? ORDER BY id`, syncID)
}

func (s *Store) queryTransfers(ctx context.Context, operation, query string, args ...any) ([]*Transfer, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(operation, err)
	}
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, storeErr(operation, err)
		}
		transfers = append(transfers, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(operation, err)
	}
	return transfers, nil
}
