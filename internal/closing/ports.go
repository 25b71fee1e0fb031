package closing

import (
	"context"
	"time"
)

// PeriodStore resolves closing periods. A missing period is (nil, nil).
type PeriodStore interface {
	FindClosingPeriod(ctx context.Context, month, year int) (*ClosingPeriod, error)
}

// ProcessCatalog reads process definitions. A missing process is (nil, nil).
type ProcessCatalog interface {
	FindProcess(ctx context.Context, code string) (*ProcessDefinition, error)
	// ListActiveProcesses returns active definitions ordered by Order. When
	// period is non-nil every definition carries its last run in that period.
	ListActiveProcesses(ctx context.Context, category, dataType string, period *Period, reserved []string) ([]ProcessDefinition, error)
}

// HistoryReader reads the execution log, most recent first.
type HistoryReader interface {
	ListHistory(ctx context.Context, category, code string, month, year int) ([]HistoryEntry, error)
}

// ProcedureInvoker runs the closing procedure for one process.
type ProcedureInvoker interface {
	InvokeProcedure(ctx context.Context, call ProcedureCall) error
}

// PeriodLocker serializes batches that target the same category and period.
type PeriodLocker interface {
	Acquire(ctx context.Context, category string, period Period) (release func(), err error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock always reports the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return time.Time(c)
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, Period) (func(), error) {
	return func() {}, nil
}

// NoopLocker returns a PeriodLocker that never blocks.
func NoopLocker() PeriodLocker {
	return noopLocker{}
}
