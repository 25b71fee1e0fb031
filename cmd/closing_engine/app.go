package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jonathan/closing-engine/internal/closing"
	"github.com/jonathan/closing-engine/internal/config"
	"github.com/jonathan/closing-engine/internal/db"
	"github.com/jonathan/closing-engine/internal/lock"
	"github.com/jonathan/closing-engine/internal/logging"
	"github.com/jonathan/closing-engine/internal/telemetry"
	"github.com/sirupsen/logrus"
)

const serviceName = "closing-engine"

// app holds the process-wide resources of a command.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	audit   *logrus.Logger
	db      *db.DB
	closers []func()
}

// newApp loads configuration and builds the loggers. The database is
// connected only when needDB is set.
func newApp(ctx context.Context, needDB bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	logOpts := logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Service:    serviceName,
	}
	log, logCloser, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}
	a.log = log
	a.addCloser(logCloser)

	auditOpts := logOpts
	auditOpts.File = cfg.Log.AuditFile
	auditOpts.Service = ""
	audit, auditCloser, err := logging.NewAudit(auditOpts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.audit = audit
	a.addCloser(auditCloser)

	if needDB {
		if err := cfg.RequireDatabase(); err != nil {
			a.Close()
			return nil, err
		}
		database, err := db.Connect(ctx, cfg.DatabaseURL, db.Options{StatementTimeout: cfg.StatementTimeout})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = database
		a.closers = append(a.closers, database.Close)
	}
	return a, nil
}

func (a *app) addCloser(c io.Closer) {
	a.closers = append(a.closers, func() { _ = c.Close() })
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// engine wires the closing services on top of the database.
type engine struct {
	validator *closing.DeadlineValidator
	executor  *closing.BatchExecutor
	reader    *closing.Reader
}

func (a *app) buildEngine(ctx context.Context) (*engine, error) {
	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, a.cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	locker := closing.NoopLocker()
	if a.cfg.RedisURL != "" {
		client, err := lock.Connect(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		locker = lock.NewRedisLocker(client, a.cfg.PeriodLockTTL, a.log)
	}

	clock := closing.SystemClock{Location: a.cfg.Location()}
	validator := closing.NewDeadlineValidator(a.db, a.db, clock, a.log)
	executor := closing.NewBatchExecutor(closing.ExecutorDeps{
		Validator: validator,
		Catalog:   a.db,
		Invoker:   db.NewProcedureInvoker(a.db, a.cfg.ProcedureName),
		Locker:    locker,
		Logger:    a.log,
		Audit:     a.audit,
	})
	reader := closing.NewReader(a.db, a.db, a.db, a.cfg.ReservedProcessCodes, a.log)

	a.log.WithFields(logrus.Fields{
		"procedure":  a.cfg.ProcedureName,
		"timezone":   a.cfg.Timezone,
		"period_ttl": a.cfg.PeriodLockTTL.String(),
		"redis_lock": a.cfg.RedisURL != "",
	}).Debug("engine ready")

	return &engine{validator: validator, executor: executor, reader: reader}, nil
}
