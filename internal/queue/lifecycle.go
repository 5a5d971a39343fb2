package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"conveyor/internal/database"
	"conveyor/internal/services"
)

// DequeueNext claims the oldest pending transfer and flips it to PROCESSING.
// It returns nil when nothing is pending.
func (s *Store) DequeueNext(ctx context.Context) (*Transfer, error) {
	var claimed int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		claimed = 0
		row := tx.QueryRowContext(ctx,
			`SELECT id FROM transfers WHERE state IN (?, ?, ?) ORDER BY id LIMIT 1`,
			string(StateEnqueued), string(StateProcessing), string(StatePaused),
		)
		var id int64
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("select next transfer: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE transfers SET state = ?, updated_at = ? WHERE id = ?`,
			string(StateProcessing), database.Now(), id,
		); err != nil {
			return fmt.Errorf("claim transfer %d: %w", id, err)
		}
		claimed = id
		return nil
	})
	if err != nil {
		return nil, storeErr("dequeue", err)
	}
	if claimed == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, claimed)
}

// SetState moves a non-terminal transfer to state. Terminal transfers are
// rejected with a validation error.
func (s *Store) SetState(ctx context.Context, id int64, state State) (*Transfer, error) {
	transfer, err := s.mustGet(ctx, id, "set state")
	if err != nil {
		return nil, err
	}
	if transfer.State == state {
		return transfer, nil
	}
	if transfer.State.IsTerminal() {
		return nil, services.Validation(component, "set state",
			fmt.Sprintf("transfer %d is %s", id, transfer.State))
	}
	if _, err := s.db.Exec(ctx,
		`UPDATE transfers SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), database.Now(), id,
	); err != nil {
		return nil, storeErr("set state", err)
	}
	transfer.State = state
	return transfer, nil
}

// MarkFailed closes a transfer that could not be run as COMPLETE with status
// ERROR. Terminal transfers are left unchanged.
func (s *Store) MarkFailed(ctx context.Context, id int64) (*Transfer, error) {
	transfer, err := s.mustGet(ctx, id, "mark failed")
	if err != nil {
		return nil, err
	}
	if transfer.State.IsTerminal() {
		return transfer, nil
	}
	if _, err := s.db.Exec(ctx,
		`UPDATE transfers SET state = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(StateComplete), string(StatusError), database.Now(), id,
	); err != nil {
		return nil, storeErr("mark failed", err)
	}
	transfer.State = StateComplete
	transfer.Status = StatusError
	return transfer, nil
}

// Cancel marks a queued or paused transfer CANCELLED. Transfers that are
// PROCESSING belong to a worker and must be cancelled through its control
// block instead.
func (s *Store) Cancel(ctx context.Context, id int64) (*Transfer, error) {
	transfer, err := s.mustGet(ctx, id, "cancel")
	if err != nil {
		return nil, err
	}
	switch transfer.State {
	case StateEnqueued, StatePaused:
		return s.SetState(ctx, id, StateCancelled)
	case StateProcessing:
		return nil, services.Busy(component, "cancel")
	default:
		return nil, services.Validation(component, "cancel",
			fmt.Sprintf("transfer %d is already %s", id, transfer.State))
	}
}

// Restart re-enqueues a transfer and keeps its attempts, so the next attempt
// resumes after the last successful path.
func (s *Store) Restart(ctx context.Context, id int64) (*Transfer, error) {
	if _, err := s.requeueable(ctx, id, "restart"); err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(ctx,
		`UPDATE transfers SET state = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(StateEnqueued), string(StatusOK), database.Now(), id,
	); err != nil {
		return nil, storeErr("restart", err)
	}
	return s.GetByID(ctx, id)
}

// Resubmit re-enqueues a transfer from scratch, dropping every attempt and item.
func (s *Store) Resubmit(ctx context.Context, id int64) (*Transfer, error) {
	if _, err := s.requeueable(ctx, id, "resubmit"); err != nil {
		return nil, err
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transfer_attempts WHERE transfer_id = ?`, id); err != nil {
			return fmt.Errorf("delete attempts: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE transfers SET state = ?, status = ?, updated_at = ? WHERE id = ?`,
			string(StateEnqueued), string(StatusOK), database.Now(), id,
		); err != nil {
			return fmt.Errorf("requeue transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("resubmit", err)
	}
	return s.GetByID(ctx, id)
}

func (s *Store) requeueable(ctx context.Context, id int64, operation string) (*Transfer, error) {
	transfer, err := s.mustGet(ctx, id, operation)
	if err != nil {
		return nil, err
	}
	if transfer.State == StateProcessing {
		return nil, services.Busy(component, operation)
	}
	return transfer, nil
}

// HasPending reports whether a synchronization owns a transfer that is still
// ENQUEUED, PROCESSING, or PAUSED.
func (s *Store) HasPending(ctx context.Context, syncID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM transfers WHERE synchronization_id = ? AND state IN (?, ?, ?)`,
		syncID, string(StateEnqueued), string(StateProcessing), string(StatePaused),
	).Scan(&count)
	if err != nil {
		return false, storeErr("has pending", err)
	}
	return count > 0, nil
}
