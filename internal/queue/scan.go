package queue

import (
	"database/sql"

	"conveyor/internal/database"
)

func scanTransfer(scanner database.Scanner) (*Transfer, error) {
	var (
		t                      Transfer
		typ, state, status     string
		syncID                 sql.NullInt64
		createdRaw, updatedRaw string
	)
	if err := scanner.Scan(
		&t.ID,
		&typ,
		&state,
		&status,
		&t.LocalPath,
		&t.RemotePath,
		&t.Resource,
		&t.AccountID,
		&syncID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	t.Type = TransferType(typ)
	t.State = State(state)
	t.Status = Status(status)
	t.SynchronizationID = syncID.Int64
	if ts, err := database.ParseTime(createdRaw); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := database.ParseTime(updatedRaw); err == nil {
		t.UpdatedAt = ts
	}
	return &t, nil
}

const attemptColumns = "id, transfer_id, started_at, ended_at, status, last_successful_path, total_files, files_transferred, files_skipped, error_count, error_message, global_exception, global_exception_trace, correlation_id"

func scanAttempt(scanner database.Scanner) (*Attempt, error) {
	var (
		a                                   Attempt
		startedRaw, status                  string
		endedRaw                            sql.NullString
		errorMessage, exception, trace, cid sql.NullString
	)
	if err := scanner.Scan(
		&a.ID,
		&a.TransferID,
		&startedRaw,
		&endedRaw,
		&status,
		&a.LastSuccessfulPath,
		&a.TotalFiles,
		&a.FilesTransferred,
		&a.FilesSkipped,
		&a.ErrorCount,
		&errorMessage,
		&exception,
		&trace,
		&cid,
	); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	if ts, err := database.ParseTime(startedRaw); err == nil {
		a.StartedAt = ts
	}
	if endedRaw.Valid {
		a.EndedAt = database.ParseTimePtr(endedRaw.String)
	}
	a.ErrorMessage = errorMessage.String
	a.GlobalException = exception.String
	a.GlobalExceptionTrace = trace.String
	a.CorrelationID = cid.String
	return &a, nil
}

const itemColumns = "id, attempt_id, source_path, target_path, is_file, is_error, is_skipped, error_message, created_at"

func scanItem(scanner database.Scanner) (*Item, error) {
	var (
		item                     Item
		isFile, isError, skipped int
		errorMessage             sql.NullString
		createdRaw               string
	)
	if err := scanner.Scan(
		&item.ID,
		&item.AttemptID,
		&item.SourcePath,
		&item.TargetPath,
		&isFile,
		&isError,
		&skipped,
		&errorMessage,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	item.IsFile = isFile != 0
	item.IsError = isError != 0
	item.IsSkipped = skipped != 0
	item.ErrorMessage = errorMessage.String
	if ts, err := database.ParseTime(createdRaw); err == nil {
		item.CreatedAt = ts
	}
	return &item, nil
}
