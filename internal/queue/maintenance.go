package queue

import (
	"context"
	"fmt"

	"conveyor/internal/services"
)

// PurgeCompleted removes COMPLETE and CANCELLED transfers.
func (s *Store) PurgeCompleted(ctx context.Context) (int64, error) {
	return s.purge(ctx, "purge completed",
		`DELETE FROM transfers WHERE state IN (?, ?)`,
		string(StateComplete), string(StateCancelled))
}

// PurgeSuccessful removes terminal transfers whose last status is OK.
func (s *Store) PurgeSuccessful(ctx context.Context) (int64, error) {
	return s.purge(ctx, "purge successful",
		`DELETE FROM transfers WHERE state IN (?, ?) AND status = ?`,
		string(StateComplete), string(StateCancelled), string(StatusOK))
}

// PurgeAll removes every transfer that is not PROCESSING. Callers hold the
// queue lock so nothing is dequeued meanwhile.
func (s *Store) PurgeAll(ctx context.Context) (int64, error) {
	return s.purge(ctx, "purge all",
		`DELETE FROM transfers WHERE state != ?`, string(StateProcessing))
}

func (s *Store) purge(ctx context.Context, operation, query string, args ...any) (int64, error) {
	res, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, storeErr(operation, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(operation, err)
	}
	return n, nil
}

// Delete removes one transfer with its history. PROCESSING transfers are
// refused with a busy error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	transfer, err := s.mustGet(ctx, id, "delete")
	if err != nil {
		return err
	}
	if transfer.State == StateProcessing {
		return services.Busy(component, "delete")
	}
	res, err := s.db.Exec(ctx, `DELETE FROM transfers WHERE id = ? AND state != ?`, id, string(StateProcessing))
	if err != nil {
		return storeErr("delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Busy(component, "delete")
	}
	return nil
}

// Stats summarises the table by state and by status.
type Stats struct {
	ByState  map[State]int
	ByStatus map[Status]int
	Total    int
}

// Pending returns the number of ENQUEUED, PROCESSING, and PAUSED transfers.
func (st Stats) Pending() int {
	total := 0
	for _, state := range pendingStates {
		total += st.ByState[state]
	}
	return total
}

// Stats counts transfers by state and status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByState: map[State]int{}, ByStatus: map[Status]int{}}
	rows, err := s.db.Query(ctx, `SELECT state, status, COUNT(*) FROM transfers GROUP BY state, status`)
	if err != nil {
		return stats, storeErr("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			state, status string
			count         int
		)
		if err := rows.Scan(&state, &status, &count); err != nil {
			return stats, storeErr("stats", fmt.Errorf("scan: %w", err))
		}
		stats.ByState[State(state)] += count
		stats.ByStatus[Status(status)] += count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return stats, storeErr("stats", err)
	}
	return stats, nil
}
