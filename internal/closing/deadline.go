package closing

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const deadlineLayout = "2006-01-02"

// DeadlineValidator decides whether processes are still inside their
// execution window for a reference period.
type DeadlineValidator struct {
	periods PeriodStore
	catalog ProcessCatalog
	clock   Clock
	log     logrus.FieldLogger
}

// NewDeadlineValidator creates a validator reading from the given stores.
func NewDeadlineValidator(periods PeriodStore, catalog ProcessCatalog, clock Clock, log logrus.FieldLogger) *DeadlineValidator {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DeadlineValidator{
		periods: periods,
		catalog: catalog,
		clock:   clock,
		log:     log.WithField("component", "deadline_validator"),
	}
}

// IsCurrentPeriod reports whether month/year is the clock's calendar month.
func (v *DeadlineValidator) IsCurrentPeriod(month, year int) bool {
	now := v.clock.Now()
	return now.Year() == year && int(now.Month()) == month
}

// Validate evaluates one process. Non-current periods are historical
// backfill and always allowed, whatever the grace period or override.
func (v *DeadlineValidator) Validate(ctx context.Context, code string, month, year int, override bool) (DeadlineResult, error) {
	period := Period{Month: month, Year: year}

	if !v.IsCurrentPeriod(month, year) {
		v.log.WithFields(logrus.Fields{"process": code, "period": period.String()}).
			Debug("historical period, deadline check skipped")
		return DeadlineResult{Allowed: true}, nil
	}

	closingPeriod, err := v.periods.FindClosingPeriod(ctx, month, year)
	if err != nil {
		return DeadlineResult{}, infraError("find closing period", err)
	}
	if closingPeriod == nil {
		return DeadlineResult{}, &PeriodNotFoundError{Period: period}
	}

	process, err := v.catalog.FindProcess(ctx, code)
	if err != nil {
		return DeadlineResult{}, infraError("find process", err)
	}
	if process == nil || !process.Active {
		return DeadlineResult{}, &ProcessNotFoundError{Code: code}
	}

	now := v.clock.Now()
	today := startOfDay(now, now.Location())
	deadline := Deadline(closingPeriod.CutoffDate, process.GracePeriodDays, now.Location())

	if !today.After(deadline) || override {
		v.log.WithFields(logrus.Fields{
			"process":  code,
			"deadline": deadline.Format(deadlineLayout),
			"override": override,
		}).Debug("deadline check passed")
		return DeadlineResult{Allowed: true}, nil
	}

	reason := fmt.Sprintf(
		"process %q is past its execution deadline (grace period %d day(s), deadline %s); override privilege is required to run it",
		process.Description, process.GracePeriodDays, deadline.Format(deadlineLayout),
	)
	v.log.WithFields(logrus.Fields{"process": code, "deadline": deadline.Format(deadlineLayout)}).Warn(reason)

	return DeadlineResult{Allowed: false, Reason: reason}, nil
}

// ValidateMany evaluates every code independently. A blocked code never
// stops the evaluation; a lookup failure does.
func (v *DeadlineValidator) ValidateMany(ctx context.Context, codes []string, month, year int, override bool) (DeadlineReport, error) {
	report := DeadlineReport{
		Valid:   make([]string, 0, len(codes)),
		Invalid: []InvalidProcess{},
	}

	for _, code := range codes {
		result, err := v.Validate(ctx, code, month, year, override)
		if err != nil {
			return DeadlineReport{}, err
		}
		if result.Allowed {
			report.Valid = append(report.Valid, code)
			continue
		}
		report.Invalid = append(report.Invalid, InvalidProcess{Code: code, Reason: result.Reason})
	}

	return report, nil
}

// PeriodExists reports whether a closing period is registered for month/year.
// The message explains a missing period.
func (v *DeadlineValidator) PeriodExists(ctx context.Context, month, year int) (bool, string, error) {
	closingPeriod, err := v.periods.FindClosingPeriod(ctx, month, year)
	if err != nil {
		return false, "", infraError("find closing period", err)
	}
	if closingPeriod == nil {
		return false, (&PeriodNotFoundError{Period: Period{Month: month, Year: year}}).Error(), nil
	}
	return true, "", nil
}

// Deadline returns the last day a process may run without override:
// the cutoff's calendar day plus graceDays, at midnight in loc.
func Deadline(cutoff time.Time, graceDays int, loc *time.Location) time.Time {
	return startOfDay(cutoff, loc).AddDate(0, 0, graceDays)
}

// startOfDay keeps t's calendar date and drops the time of day. The date
// fields are read as-is so a DATE column scanned as UTC keeps its day.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
