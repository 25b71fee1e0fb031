package db

import (
	"context"
	"fmt"

	"github.com/jonathan/closing-engine/internal/closing"
)

// ListHistory returns the executions of a process in a period, most recent first.
func (db *DB) ListHistory(ctx context.Context, category, code string, month, year int) ([]closing.HistoryEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT category, process_code, month, year, executed_at
		   FROM closing_process_log
		  WHERE category = $1 AND process_code = $2 AND month = $3 AND year = $4
		  ORDER BY executed_at DESC, id DESC`,
		category, code, month, year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []closing.HistoryEntry
	for rows.Next() {
		var e closing.HistoryEntry
		if err := rows.Scan(&e.Category, &e.ProcessCode, &e.Month, &e.Year, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return entries, nil
}
