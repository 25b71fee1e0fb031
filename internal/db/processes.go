package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/closing-engine/internal/closing"
)

const processColumns = `code, category, data_type, description, sort_order, grace_days, active`

// FindProcess returns a process definition by code, active or not.
// Returns nil, nil when the code is unknown.
func (db *DB) FindProcess(ctx context.Context, code string) (*closing.ProcessDefinition, error) {
	var p closing.ProcessDefinition
	err := db.pool.QueryRow(ctx,
		`SELECT `+processColumns+` FROM closing_processes WHERE code = $1`,
		code,
	).Scan(&p.Code, &p.Category, &p.DataType, &p.Description, &p.Order, &p.GracePeriodDays, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get process: %w", err)
	}
	return &p, nil
}

// ListActiveProcesses returns the active processes of a category and data
// type ordered by sort order, excluding reserved codes. With a period, each
// process carries its most recent execution in that period.
func (db *DB) ListActiveProcesses(ctx context.Context, category, dataType string, period *closing.Period, reserved []string) ([]closing.ProcessDefinition, error) {
	var month, year *int
	if period != nil {
		month, year = &period.Month, &period.Year
	}
	if reserved == nil {
		reserved = []string{}
	}

	rows, err := db.pool.Query(ctx,
		`SELECT p.code, p.category, p.data_type, p.description, p.sort_order, p.grace_days, p.active,
		        (SELECT MAX(l.executed_at)
		           FROM closing_process_log l
		          WHERE l.month = $3::integer
		            AND l.year = $4::integer
		            AND l.category = p.category
		            AND l.process_code = p.code) AS last_run_at
		   FROM closing_processes p
		  WHERE p.active
		    AND p.category = $1
		    AND p.data_type = $2
		    AND p.code <> ALL($5::text[])
		  ORDER BY p.sort_order, p.code`,
		category, dataType, month, year, reserved,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	defer rows.Close()

	var processes []closing.ProcessDefinition
	for rows.Next() {
		var p closing.ProcessDefinition
		if err := rows.Scan(&p.Code, &p.Category, &p.DataType, &p.Description, &p.Order,
			&p.GracePeriodDays, &p.Active, &p.LastRunAt); err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}
		processes = append(processes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating processes: %w", err)
	}
	return processes, nil
}

// UpsertProcess creates or replaces a process definition.
func (db *DB) UpsertProcess(ctx context.Context, p closing.ProcessDefinition) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO closing_processes (`+processColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (code) DO UPDATE SET
		   category = $2, data_type = $3, description = $4,
		   sort_order = $5, grace_days = $6, active = $7`,
		p.Code, p.Category, p.DataType, p.Description, p.Order, p.GracePeriodDays, p.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert process: %w", err)
	}
	return nil
}
