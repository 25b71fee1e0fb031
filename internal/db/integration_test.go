//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jonathan/closing-engine/internal/closing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testDSN points at a disposable database. TEST_DATABASE_URL wins when set;
// otherwise a postgres container is started for the package.
var testDSN string

// testProcedure stands in for the closing procedure. It records a history
// row and fails for process code 'FAIL'.
const testProcedure = `
CREATE OR REPLACE PROCEDURE test_closing(
    p_code TEXT, p_month INTEGER, p_year INTEGER, p_preview TEXT, p_purge TEXT,
    p_actor TEXT, p_all TEXT, p_company TEXT, p_carrier TEXT,
    p_data_type TEXT, p_category TEXT, p_cpf TEXT)
LANGUAGE plpgsql AS $$
BEGIN
    IF p_code = 'FAIL' THEN
        RAISE EXCEPTION 'carrier table locked';
    END IF;
    INSERT INTO closing_process_log (category, process_code, month, year)
    VALUES (p_category, p_code, p_month, p_year);
END;
$$`

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	testDSN = os.Getenv("TEST_DATABASE_URL")
	if testDSN == "" {
		pgCtr, err := tcPostgres.Run(ctx, "postgres:15-alpine",
			tcPostgres.WithDatabase("closing"),
			tcPostgres.WithUsername("closing"),
			tcPostgres.WithPassword("closing"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			log.Fatalf("start postgres container: %v", err)
		}
		defer pgCtr.Terminate(ctx) //nolint:errcheck

		testDSN, err = pgCtr.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			log.Fatalf("postgres connection string: %v", err)
		}
	}

	db, err := Connect(ctx, testDSN, Options{StatementTimeout: 30 * time.Second})
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	if _, err := db.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if _, err := db.pool.Exec(ctx, testProcedure); err != nil {
		log.Fatalf("create test procedure: %v", err)
	}
	db.Close()

	return m.Run()
}

func getTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Connect(context.Background(), testDSN, Options{})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	ctx := context.Background()
	for _, table := range []string{"closing_process_log", "closing_processes", "closing_periods", "operators"} {
		_, err := db.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table))
		require.NoError(t, err)
	}
	return db
}

func seedCatalog(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []closing.ProcessDefinition{
		{Code: "P2", Category: "UNI", DataType: "U", Description: "second", Order: 2, GracePeriodDays: 0, Active: true},
		{Code: "P1", Category: "UNI", DataType: "U", Description: "first", Order: 1, GracePeriodDays: 5, Active: true},
		{Code: "OLD", Category: "UNI", DataType: "U", Order: 3, Active: false},
		{Code: "70000008", Category: "UNI", DataType: "U", Order: 0, Active: true},
		{Code: "OTHER", Category: "COL", DataType: "U", Order: 1, Active: true},
	} {
		require.NoError(t, db.UpsertProcess(ctx, p))
	}
}

func TestIntegration_Migrate_Idempotent(t *testing.T) {
	db := getTestDB(t)
	applied, err := db.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestIntegration_FindProcess(t *testing.T) {
	db := getTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()

	p, err := db.FindProcess(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 5, p.GracePeriodDays)
	assert.True(t, p.Active)

	inactive, err := db.FindProcess(ctx, "OLD")
	require.NoError(t, err)
	require.NotNil(t, inactive)
	assert.False(t, inactive.Active)

	missing, err := db.FindProcess(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIntegration_ListActiveProcesses(t *testing.T) {
	db := getTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()

	list, err := db.ListActiveProcesses(ctx, "UNI", "U", nil, []string{"70000008", "70000009"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "P1", list[0].Code)
	assert.Equal(t, "P2", list[1].Code)
	assert.Nil(t, list[0].LastRunAt)

	withReserved, err := db.ListActiveProcesses(ctx, "UNI", "U", nil, nil)
	require.NoError(t, err)
	assert.Len(t, withReserved, 3)
}

func TestIntegration_ProcedureAndHistory(t *testing.T) {
	db := getTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()
	invoker := NewProcedureInvoker(db, "test_closing")

	call := closing.ProcedureCall{
		ProcessCode: "P1", Category: "UNI", DataType: "U", Month: 12, Year: 2024,
		Actor: "ana", Scope: closing.Scope{All: true},
	}
	require.NoError(t, invoker.InvokeProcedure(ctx, call))
	require.NoError(t, invoker.InvokeProcedure(ctx, call))

	call.ProcessCode = "FAIL"
	err := invoker.InvokeProcedure(ctx, call)
	require.Error(t, err)
	var procErr *ProcedureError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "carrier table locked", procErr.Error())
	assert.Equal(t, "P0001", procErr.SQLState)

	history, err := db.ListHistory(ctx, "UNI", "P1", 12, 2024)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].ExecutedAt.Before(history[1].ExecutedAt))

	again, err := db.ListHistory(ctx, "UNI", "P1", 12, 2024)
	require.NoError(t, err)
	assert.Equal(t, history, again)

	period := &closing.Period{Month: 12, Year: 2024}
	list, err := db.ListActiveProcesses(ctx, "UNI", "U", period, []string{"70000008"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].LastRunAt)
	assert.Nil(t, list[1].LastRunAt)
}

func TestIntegration_ClosingPeriods(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()

	cutoff := time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertClosingPeriod(ctx, 12, 2024, cutoff))

	p, err := db.FindClosingPeriod(ctx, 12, 2024)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "2024-12-20", p.CutoffDate.Format("2006-01-02"))

	missing, err := db.FindClosingPeriod(ctx, 1, 2025)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIntegration_Operators(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()

	op, err := db.CreateOperator(ctx, "ana", "Ana", "hash", true)
	require.NoError(t, err)
	assert.True(t, op.Active)

	_, err = db.CreateOperator(ctx, "ana", "Ana", "hash", false)
	assert.ErrorIs(t, err, ErrOperatorExists)

	got, err := db.GetOperatorByLogin(ctx, "ana")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.CanOverride)

	require.NoError(t, db.SetOperatorActive(ctx, "ana", false))
	got, err = db.GetOperatorByLogin(ctx, "ana")
	require.NoError(t, err)
	assert.False(t, got.Active)

	missing, err := db.GetOperatorByLogin(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
