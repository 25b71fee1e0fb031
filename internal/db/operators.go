package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrOperatorExists is returned when creating an operator whose login is taken.
var ErrOperatorExists = errors.New("operator already exists")

// Operator is a person allowed to run closing batches.
type Operator struct {
	Login        string    `json:"login"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // Never serialize to JSON
	CanOverride  bool      `json:"can_override"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GetOperatorByLogin retrieves an operator by login.
// Returns nil, nil if not found.
func (db *DB) GetOperatorByLogin(ctx context.Context, login string) (*Operator, error) {
	var op Operator
	err := db.pool.QueryRow(ctx,
		`SELECT login, name, password_hash, can_override, active, created_at, updated_at
		   FROM operators WHERE login = $1`,
		login,
	).Scan(&op.Login, &op.Name, &op.PasswordHash, &op.CanOverride, &op.Active, &op.CreatedAt, &op.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	return &op, nil
}

// CreateOperator inserts a new active operator.
func (db *DB) CreateOperator(ctx context.Context, login, name, passwordHash string, canOverride bool) (*Operator, error) {
	op := Operator{Login: login, Name: name, PasswordHash: passwordHash, CanOverride: canOverride, Active: true}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO operators (login, name, password_hash, can_override)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		login, name, passwordHash, canOverride,
	).Scan(&op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrOperatorExists
		}
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}
	return &op, nil
}

// SetOperatorActive enables or disables an operator's login.
func (db *DB) SetOperatorActive(ctx context.Context, login string, active bool) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE operators SET active = $2, updated_at = NOW() WHERE login = $1`,
		login, active,
	)
	if err != nil {
		return fmt.Errorf("failed to update operator: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operator %q not found", login)
	}
	return nil
}
