package synch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"conveyor/internal/database"
	"conveyor/internal/queue"
)

const syncColumns = "id, name, frequency_type, frequency_minutes, sync_mode, local_dir, remote_dir, resource, account_id, last_synchronized, last_status, last_message, created_at, updated_at"

// Store persists synchronizations.
type Store struct {
	db *database.DB
}

// NewStore binds a Store to an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Save inserts s when its ID is zero and updates it otherwise. Outcome
// columns are left untouched.
func (st *Store) Save(ctx context.Context, s *Synchronization) error {
	now := database.Now()
	if s.ID == 0 {
		res, err := st.db.Exec(ctx,
			`INSERT INTO synchronizations (name, frequency_type, frequency_minutes, sync_mode, local_dir, remote_dir, resource, account_id, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.Name, string(s.FrequencyType), s.FrequencyMinutes, string(s.Mode), s.LocalDir, s.RemoteDir,
			database.NullableString(s.Resource), s.AccountID, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert synchronization: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		s.ID = id
	} else {
		res, err := st.db.Exec(ctx,
			`UPDATE synchronizations
             SET name = ?, frequency_type = ?, frequency_minutes = ?, sync_mode = ?, local_dir = ?, remote_dir = ?, resource = ?, account_id = ?, updated_at = ?
             WHERE id = ?`,
			s.Name, string(s.FrequencyType), s.FrequencyMinutes, string(s.Mode), s.LocalDir, s.RemoteDir,
			database.NullableString(s.Resource), s.AccountID, now, s.ID,
		)
		if err != nil {
			return fmt.Errorf("update synchronization: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
	}
	saved, err := st.GetByID(ctx, s.ID)
	if err != nil {
		return err
	}
	if saved != nil {
		*s = *saved
	}
	return nil
}

// GetByID returns the synchronization or nil when absent.
func (st *Store) GetByID(ctx context.Context, id int64) (*Synchronization, error) {
	row := st.db.QueryRow(ctx, "SELECT "+syncColumns+" FROM synchronizations WHERE id = ?", id)
	s, err := scanSynchronization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get synchronization: %w", err)
	}
	return s, nil
}

// GetByName returns the synchronization or nil when absent.
func (st *Store) GetByName(ctx context.Context, name string) (*Synchronization, error) {
	row := st.db.QueryRow(ctx, "SELECT "+syncColumns+" FROM synchronizations WHERE name = ?", name)
	s, err := scanSynchronization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get synchronization by name: %w", err)
	}
	return s, nil
}

// List returns every synchronization ordered by id.
func (st *Store) List(ctx context.Context) ([]*Synchronization, error) {
	rows, err := st.db.Query(ctx, "SELECT "+syncColumns+" FROM synchronizations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list synchronizations: %w", err)
	}
	defer rows.Close()
	var out []*Synchronization
	for rows.Next() {
		s, err := scanSynchronization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan synchronization: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a synchronization. Its transfers keep their history with
// the back-reference cleared.
func (st *Store) Delete(ctx context.Context, id int64) error {
	if _, err := st.db.Exec(ctx, "DELETE FROM synchronizations WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete synchronization: %w", err)
	}
	return nil
}

// RecordOutcome stores the result of a finished run.
func (st *Store) RecordOutcome(ctx context.Context, id int64, at time.Time, status queue.Status, message string) error {
	_, err := st.db.Exec(ctx,
		`UPDATE synchronizations SET last_synchronized = ?, last_status = ?, last_message = ?, updated_at = ? WHERE id = ?`,
		database.FormatTime(at), string(status), database.NullableString(message), database.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("record synchronization outcome: %w", err)
	}
	return nil
}

func scanSynchronization(scanner database.Scanner) (*Synchronization, error) {
	var (
		s                               Synchronization
		freq, mode                      string
		resource, lastSync, status, msg sql.NullString
		createdRaw, updatedRaw          string
	)
	if err := scanner.Scan(
		&s.ID,
		&s.Name,
		&freq,
		&s.FrequencyMinutes,
		&mode,
		&s.LocalDir,
		&s.RemoteDir,
		&resource,
		&s.AccountID,
		&lastSync,
		&status,
		&msg,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	s.FrequencyType = FrequencyType(freq)
	s.Mode = Mode(mode)
	s.Resource = resource.String
	s.LastSynchronized = database.ParseTimePtr(lastSync.String)
	s.LastStatus = queue.Status(status.String)
	s.LastMessage = msg.String
	if ts, err := database.ParseTime(createdRaw); err == nil {
		s.CreatedAt = ts
	}
	if ts, err := database.ParseTime(updatedRaw); err == nil {
		s.UpdatedAt = ts
	}
	return &s, nil
}
