package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/closing-engine/internal/closing"
)

// FindClosingPeriod returns the closing period for a month and year.
// Returns nil, nil when the period is not registered.
func (db *DB) FindClosingPeriod(ctx context.Context, month, year int) (*closing.ClosingPeriod, error) {
	p := closing.ClosingPeriod{Month: month, Year: year}
	err := db.pool.QueryRow(ctx,
		`SELECT cutoff_date FROM closing_periods WHERE month = $1 AND year = $2`,
		month, year,
	).Scan(&p.CutoffDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get closing period: %w", err)
	}
	return &p, nil
}

// UpsertClosingPeriod registers or moves the cutoff date of a period.
func (db *DB) UpsertClosingPeriod(ctx context.Context, month, year int, cutoff time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO closing_periods (month, year, cutoff_date)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (year, month) DO UPDATE SET cutoff_date = $3`,
		month, year, cutoff,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert closing period: %w", err)
	}
	return nil
}
