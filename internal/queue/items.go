package queue

import (
	"context"
	"database/sql"
	"errors"
)

const defaultItemLimit = 500

// ListItems pages through an attempt's items. Error items are always
// returned; successes and skips only when the filter asks for them.
func (s *Store) ListItems(ctx context.Context, attemptID int64, filter ItemFilter) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM transfer_items WHERE attempt_id = ? AND (is_error = 1`
	if filter.ShowSkipped {
		query += ` OR is_skipped = 1`
	}
	if filter.ShowSuccess {
		query += ` OR (is_error = 0 AND is_skipped = 0)`
	}
	query += `) ORDER BY id LIMIT ? OFFSET ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultItemLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, query, attemptID, limit, offset)
	if err != nil {
		return nil, storeErr("list items", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storeErr("list items", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list items", err)
	}
	return items, nil
}

// CountItems returns the number of items recorded for an attempt.
func (s *Store) CountItems(ctx context.Context, attemptID int64) (int, error) {
	var count int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM transfer_items WHERE attempt_id = ?`, attemptID,
	).Scan(&count); err != nil {
		return 0, storeErr("count items", err)
	}
	return count, nil
}

func (s *Store) getItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM transfer_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get item", err)
	}
	return item, nil
}
