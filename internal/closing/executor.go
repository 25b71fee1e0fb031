package closing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/closing-engine/internal/telemetry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jonathan/closing-engine/internal/closing"

// MsgProcessNotFound is recorded for codes missing from the catalog.
const MsgProcessNotFound = "process not found"

// ExecutorDeps holds the collaborators of a BatchExecutor.
type ExecutorDeps struct {
	Validator *DeadlineValidator
	Catalog   ProcessCatalog
	Invoker   ProcedureInvoker
	Locker    PeriodLocker // optional, defaults to NoopLocker
	Logger    logrus.FieldLogger
	Audit     logrus.FieldLogger // optional, defaults to Logger
}

// BatchExecutor validates and runs a list of closing processes for a period.
type BatchExecutor struct {
	validator *DeadlineValidator
	catalog   ProcessCatalog
	invoker   ProcedureInvoker
	locker    PeriodLocker
	log       logrus.FieldLogger
	audit     logrus.FieldLogger
	tracer    trace.Tracer
	newID     func() string
}

// NewBatchExecutor creates an executor from its dependencies.
func NewBatchExecutor(deps ExecutorDeps) *BatchExecutor {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	audit := deps.Audit
	if audit == nil {
		audit = log
	}
	locker := deps.Locker
	if locker == nil {
		locker = NoopLocker()
	}
	return &BatchExecutor{
		validator: deps.Validator,
		catalog:   deps.Catalog,
		invoker:   deps.Invoker,
		locker:    locker,
		log:       log.WithField("component", "batch_executor"),
		audit:     audit,
		tracer:    otel.Tracer(tracerName),
		newID:     uuid.NewString,
	}
}

// Execute runs every requested process in caller order, one at a time.
//
// Request-level problems (shape, missing period or process, deadline gate,
// busy period) are returned as errors before any invocation. Invocation
// failures never abort the batch; they are collected in the outcome. A
// catalog failure while running stops the batch and is returned together
// with the partial outcome.
func (e *BatchExecutor) Execute(ctx context.Context, req *ExecutionRequest, actor string, override bool) (*ExecutionOutcome, error) {
	if err := req.Validate(); err != nil {
		telemetry.BatchRejections.WithLabelValues("request_shape").Inc()
		return nil, err
	}

	batchID := e.newID()
	period := req.Period()
	log := e.log.WithFields(logrus.Fields{
		"batch_id": batchID,
		"category": req.Category,
		"period":   period.String(),
		"actor":    actor,
	})

	ctx, span := e.tracer.Start(ctx, "closing.batch", trace.WithAttributes(
		attribute.String("closing.batch_id", batchID),
		attribute.String("closing.category", req.Category),
		attribute.String("closing.data_type", req.DataType),
		attribute.String("closing.period", period.String()),
		attribute.Int("closing.process_count", len(req.ProcessCodes)),
		attribute.Bool("closing.override", override),
	))
	defer span.End()

	report, err := e.validator.ValidateMany(ctx, req.ProcessCodes, req.Month, req.Year, override)
	if err != nil {
		telemetry.BatchRejections.WithLabelValues(rejectionReason(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "deadline validation failed")
		return nil, err
	}
	if len(report.Invalid) > 0 && !override {
		telemetry.BatchRejections.WithLabelValues("deadline").Inc()
		err := &DeadlineViolationError{Invalid: report.Invalid}
		log.WithField("invalid", report.Invalid).Warn("batch rejected: processes past deadline")
		span.SetStatus(codes.Error, "deadline violation")
		return nil, err
	}

	release, err := e.locker.Acquire(ctx, req.Category, period)
	if err != nil {
		telemetry.BatchRejections.WithLabelValues(rejectionReason(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "period lock not acquired")
		return nil, err
	}
	defer release()

	scope := req.DeriveScope()
	outcome := &ExecutionOutcome{
		BatchID:   batchID,
		Succeeded: make([]string, 0, len(req.ProcessCodes)),
		Failed:    []Failure{},
	}

	log.WithFields(logrus.Fields{
		"processes": req.ProcessCodes,
		"override":  override,
		"preview":   req.Preview,
		"purge":     req.Purge,
		"scope_all": scope.All,
	}).Info("starting batch")

	for _, code := range req.ProcessCodes {
		process, err := e.catalog.FindProcess(ctx, code)
		if err != nil {
			err = infraError("find process", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "catalog unavailable")
			e.finish(log, req, actor, override, outcome)
			return outcome, err
		}
		if msg := ineligible(process, req); msg != "" {
			outcome.Failed = append(outcome.Failed, Failure{Code: code, Error: msg})
			telemetry.Invocations.WithLabelValues(req.Category, "skipped").Inc()
			log.WithField("process", code).Warn(msg)
			continue
		}

		call := ProcedureCall{
			ProcessCode: code,
			Category:    req.Category,
			DataType:    req.DataType,
			Month:       req.Month,
			Year:        req.Year,
			Preview:     req.Preview,
			Purge:       req.Purge,
			Actor:       actor,
			Scope:       scope,
		}

		log.WithFields(logrus.Fields{"process": code, "description": process.Description}).Info("invoking process")
		if err := e.invoke(ctx, call); err != nil {
			outcome.Failed = append(outcome.Failed, Failure{Code: code, Error: err.Error()})
			log.WithField("process", code).WithError(err).Error("process failed")
			continue
		}

		outcome.Succeeded = append(outcome.Succeeded, code)
		log.WithField("process", code).Info("process completed")
	}

	span.SetAttributes(
		attribute.Int("closing.succeeded", len(outcome.Succeeded)),
		attribute.Int("closing.failed", len(outcome.Failed)),
	)
	e.finish(log, req, actor, override, outcome)
	return outcome, nil
}

func (e *BatchExecutor) invoke(ctx context.Context, call ProcedureCall) error {
	ctx, span := e.tracer.Start(ctx, "closing.invoke", trace.WithAttributes(
		attribute.String("closing.process_code", call.ProcessCode),
	))
	defer span.End()

	start := time.Now()
	err := e.invoker.InvokeProcedure(ctx, call)
	telemetry.InvocationDuration.WithLabelValues(call.Category).Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.Invocations.WithLabelValues(call.Category, "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	telemetry.Invocations.WithLabelValues(call.Category, "succeeded").Inc()
	return nil
}

func (e *BatchExecutor) finish(log logrus.FieldLogger, req *ExecutionRequest, actor string, override bool, outcome *ExecutionOutcome) {
	result := "completed"
	if len(outcome.Failed) > 0 {
		result = "partial"
		if len(outcome.Succeeded) == 0 {
			result = "failed"
		}
	}
	telemetry.Batches.WithLabelValues(result).Inc()

	log.Info(outcome.Summary())
	e.audit.WithFields(logrus.Fields{
		"event":     "closing_batch",
		"batch_id":  outcome.BatchID,
		"actor":     actor,
		"override":  override,
		"category":  req.Category,
		"data_type": req.DataType,
		"month":     req.Month,
		"year":      req.Year,
		"preview":   req.Preview,
		"purge":     req.Purge,
		"requested": req.ProcessCodes,
		"succeeded": outcome.Succeeded,
		"failed":    outcome.Failed,
	}).Info("closing batch finished")
}

// ineligible returns the failure message for a process that cannot run in
// the request's context, or an empty string.
func ineligible(process *ProcessDefinition, req *ExecutionRequest) string {
	if process == nil || !process.Active {
		return MsgProcessNotFound
	}
	if process.Category != req.Category || process.DataType != req.DataType {
		return fmt.Sprintf("process belongs to category %s / data type %s, not %s / %s",
			process.Category, process.DataType, req.Category, req.DataType)
	}
	return ""
}

func rejectionReason(err error) string {
	var (
		periodErr  *PeriodNotFoundError
		processErr *ProcessNotFoundError
		busyErr    *PeriodBusyError
		infraErr   *InfrastructureError
	)
	switch {
	case errors.As(err, &periodErr):
		return "period_not_found"
	case errors.As(err, &processErr):
		return "process_not_found"
	case errors.As(err, &busyErr):
		return "period_busy"
	case errors.As(err, &infraErr):
		return "infrastructure"
	default:
		return "other"
	}
}
