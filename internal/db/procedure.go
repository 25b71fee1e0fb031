package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonathan/closing-engine/internal/closing"
)

// ProcedureInvoker runs the closing procedure once per process.
type ProcedureInvoker struct {
	db   *DB
	stmt string
}

// NewProcedureInvoker builds an invoker for a schema-qualified procedure name.
func NewProcedureInvoker(db *DB, procedureName string) *ProcedureInvoker {
	return &ProcedureInvoker{db: db, stmt: CallStatement(procedureName)}
}

// CallStatement renders the CALL statement for the procedure. Each name
// part is quoted so the configured name cannot inject SQL.
func CallStatement(procedureName string) string {
	name := pgx.Identifier(strings.Split(strings.ToLower(procedureName), ".")).Sanitize()
	return "CALL " + name + "($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)"
}

// ProcedureArgs returns the positional procedure arguments for a call:
// code, month, year, preview, purge, actor, all companies, company,
// carrier, data type, category and cpf. Flags are passed as 'S'/'N'.
func ProcedureArgs(call closing.ProcedureCall) []any {
	return []any{
		call.ProcessCode,
		call.Month,
		call.Year,
		flag(call.Preview),
		flag(call.Purge),
		call.Actor,
		flag(call.Scope.All),
		nullable(call.Scope.Company),
		nullable(call.Scope.CarrierCode),
		call.DataType,
		call.Category,
		nullable(call.Scope.CPF),
	}
}

// ProcedureError carries a failure raised by the procedure itself.
// Its message is the backend message, without driver decoration.
type ProcedureError struct {
	SQLState string
	Message  string
	Cause    error
}

func (e *ProcedureError) Error() string {
	return e.Message
}

func (e *ProcedureError) Unwrap() error {
	return e.Cause
}

// InvokeProcedure calls the closing procedure. Errors raised by the
// procedure are returned as *ProcedureError; other errors pass through.
func (p *ProcedureInvoker) InvokeProcedure(ctx context.Context, call closing.ProcedureCall) error {
	_, err := p.db.pool.Exec(ctx, p.stmt, ProcedureArgs(call)...)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &ProcedureError{SQLState: pgErr.Code, Message: pgErr.Message, Cause: err}
	}
	return err
}

func flag(b bool) string {
	if b {
		return "S"
	}
	return "N"
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
