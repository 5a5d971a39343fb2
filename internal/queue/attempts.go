package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"conveyor/internal/database"
	"conveyor/internal/services"
)

// interruptedMessage closes an attempt that was still open when a new one began.
const interruptedMessage = "attempt interrupted before completion"

// BeginAttempt opens a new attempt for a transfer. The restart cursor is
// copied from the previous attempt, and an attempt left open by a crash is
// closed as ERROR first.
func (s *Store) BeginAttempt(ctx context.Context, transferID int64) (*Attempt, error) {
	if _, err := s.mustGet(ctx, transferID, "begin attempt"); err != nil {
		return nil, err
	}
	var attemptID int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := database.Now()
		var cursor string
		row := tx.QueryRowContext(ctx,
			`SELECT last_successful_path FROM transfer_attempts WHERE transfer_id = ? ORDER BY id DESC LIMIT 1`,
			transferID,
		)
		if err := row.Scan(&cursor); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read restart cursor: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE transfer_attempts SET ended_at = ?, status = ?, error_message = COALESCE(error_message, ?)
             WHERE transfer_id = ? AND ended_at IS NULL`,
			now, string(StatusError), interruptedMessage, transferID,
		); err != nil {
			return fmt.Errorf("close open attempts: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO transfer_attempts (transfer_id, started_at, status, last_successful_path, correlation_id)
             VALUES (?, ?, ?, ?, ?)`,
			transferID, now, string(StatusOK), cursor, uuid.NewString(),
		)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		attemptID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, storeErr("begin attempt", err)
	}
	return s.GetAttempt(ctx, attemptID)
}

// GetAttempt fetches one attempt. Missing attempts return nil.
func (s *Store) GetAttempt(ctx context.Context, id int64) (*Attempt, error) {
	row := s.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM transfer_attempts WHERE id = ?`, id)
	attempt, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get attempt", err)
	}
	return attempt, nil
}

// CurrentAttempt returns the newest attempt of a transfer, or nil.
func (s *Store) CurrentAttempt(ctx context.Context, transferID int64) (*Attempt, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM transfer_attempts WHERE transfer_id = ? ORDER BY id DESC LIMIT 1`,
		transferID,
	)
	attempt, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("current attempt", err)
	}
	return attempt, nil
}

// ListAttempts returns every attempt of a transfer, oldest first.
func (s *Store) ListAttempts(ctx context.Context, transferID int64) ([]*Attempt, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+attemptColumns+` FROM transfer_attempts WHERE transfer_id = ? ORDER BY id`,
		transferID,
	)
	if err != nil {
		return nil, storeErr("list attempts", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, storeErr("list attempts", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list attempts", err)
	}
	return attempts, nil
}

// LastSuccessfulPath returns the restart cursor of the newest attempt.
func (s *Store) LastSuccessfulPath(ctx context.Context, transferID int64) (string, error) {
	attempt, err := s.CurrentAttempt(ctx, transferID)
	if err != nil || attempt == nil {
		return "", err
	}
	return attempt.LastSuccessfulPath, nil
}

// RecordFileOutcome folds one per-file result into the attempt counters and
// appends an item for failures, skips, and (when enabled) successes. The
// returned item is nil when nothing was appended.
func (s *Store) RecordFileOutcome(ctx context.Context, attemptID int64, outcome FileOutcome) (*Item, error) {
	var (
		setClause string
		args      []any
	)
	switch outcome.Outcome {
	case OutcomeSuccess:
		setClause = "files_transferred = files_transferred + 1"
		if outcome.IsFile && strings.TrimSpace(outcome.SourcePath) != "" {
			setClause += ", last_successful_path = ?"
			args = append(args, outcome.SourcePath)
		}
	case OutcomeFailure:
		setClause = "error_count = error_count + 1"
	case OutcomeSkipped:
		setClause = "files_skipped = files_skipped + 1"
	default:
		return nil, services.Validation(component, "record file outcome",
			fmt.Sprintf("unknown outcome %q", outcome.Outcome))
	}
	setClause += ", total_files = MAX(total_files, ?)"
	args = append(args, outcome.TotalFiles, attemptID)

	appendItem := outcome.Outcome != OutcomeSuccess || s.opts.LogSuccessfulTransfers
	var itemID int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		itemID = 0
		res, err := tx.ExecContext(ctx,
			`UPDATE transfer_attempts SET `+setClause+` WHERE id = ? AND ended_at IS NULL`, args...)
		if err != nil {
			return fmt.Errorf("update counters: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return services.Wrap(services.ErrNotFound, component, "record file outcome",
				fmt.Sprintf("open attempt %d", attemptID), nil)
		}
		if !appendItem {
			return nil
		}
		res, err = tx.ExecContext(ctx,
			`INSERT INTO transfer_items (attempt_id, source_path, target_path, is_file, is_error, is_skipped, error_message, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			attemptID,
			outcome.SourcePath,
			outcome.TargetPath,
			database.BoolToInt(outcome.IsFile),
			database.BoolToInt(outcome.Outcome == OutcomeFailure),
			database.BoolToInt(outcome.Outcome == OutcomeSkipped),
			database.NullableString(outcome.ErrorMessage),
			database.Now(),
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		itemID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
		return nil, storeErr("record file outcome", err)
	}
	if itemID == 0 {
		return nil, nil
	}
	return s.getItem(ctx, itemID)
}

// FinalizeAttempt closes an attempt and applies its result to the owning
// transfer in one transaction.
func (s *Store) FinalizeAttempt(ctx context.Context, attemptID int64, result AttemptResult) (*Transfer, error) {
	if result.Status == "" {
		result.Status = StatusOK
	}
	if result.State == "" {
		result.State = StateComplete
	}
	var transferID int64
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT transfer_id FROM transfer_attempts WHERE id = ?`, attemptID,
		).Scan(&transferID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, component, "finalize attempt",
					fmt.Sprintf("attempt %d", attemptID), nil)
			}
			return fmt.Errorf("load attempt: %w", err)
		}
		now := database.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE transfer_attempts
             SET ended_at = ?, status = ?, error_message = ?, global_exception = ?, global_exception_trace = ?
             WHERE id = ?`,
			now,
			string(result.Status),
			database.NullableString(result.ErrorMessage),
			database.NullableString(result.GlobalException),
			database.NullableString(result.GlobalExceptionTrace),
			attemptID,
		); err != nil {
			return fmt.Errorf("close attempt: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE transfers SET state = ?, status = ?, updated_at = ? WHERE id = ?`,
			string(result.State), string(result.Status), now, transferID,
		); err != nil {
			return fmt.Errorf("update transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
		return nil, storeErr("finalize attempt", err)
	}
	return s.GetByID(ctx, transferID)
}
