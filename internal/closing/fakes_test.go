package closing

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakePeriods struct {
	periods map[Period]*ClosingPeriod
	err     error
	calls   int
}

func (f *fakePeriods) FindClosingPeriod(_ context.Context, month, year int) (*ClosingPeriod, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.periods[Period{Month: month, Year: year}], nil
}

type fakeCatalog struct {
	processes map[string]*ProcessDefinition
	err       error
	// failAfter makes FindProcess fail once it has served that many lookups.
	failAfter int
	lookups   int

	listed       []ProcessDefinition
	listPeriod   *Period
	listReserved []string
}

func (f *fakeCatalog) FindProcess(_ context.Context, code string) (*ProcessDefinition, error) {
	f.lookups++
	if f.err != nil && f.lookups > f.failAfter {
		return nil, f.err
	}
	return f.processes[code], nil
}

func (f *fakeCatalog) ListActiveProcesses(_ context.Context, _, _ string, period *Period, reserved []string) ([]ProcessDefinition, error) {
	f.listPeriod = period
	f.listReserved = reserved
	if f.err != nil {
		return nil, f.err
	}
	return f.listed, nil
}

type fakeHistory struct {
	entries []HistoryEntry
	err     error
}

func (f *fakeHistory) ListHistory(context.Context, string, string, int, int) ([]HistoryEntry, error) {
	return f.entries, f.err
}

// recordingInvoker records every call and fails the codes in failures.
type recordingInvoker struct {
	mu       sync.Mutex
	calls    []ProcedureCall
	failures map[string]error
}

func (r *recordingInvoker) InvokeProcedure(_ context.Context, call ProcedureCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if err, ok := r.failures[call.ProcessCode]; ok {
		return err
	}
	return nil
}

func (r *recordingInvoker) codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.ProcessCode)
	}
	return out
}

type busyLocker struct{}

func (busyLocker) Acquire(_ context.Context, category string, period Period) (func(), error) {
	return nil, &PeriodBusyError{Category: category, Period: period}
}

type countingLocker struct {
	acquired int
	released int
}

func (l *countingLocker) Acquire(context.Context, string, Period) (func(), error) {
	l.acquired++
	return func() { l.released++ }, nil
}

var errBackend = errors.New("connection refused")

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// uniFixture is the UNI/U December 2024 setup: cutoff on the 20th, P1 with
// five grace days and P2 with none.
func uniFixture() (*fakePeriods, *fakeCatalog) {
	periods := &fakePeriods{periods: map[Period]*ClosingPeriod{
		{Month: 12, Year: 2024}: {Month: 12, Year: 2024, CutoffDate: date(2024, time.December, 20)},
		{Month: 11, Year: 2024}: {Month: 11, Year: 2024, CutoffDate: date(2024, time.November, 20)},
	}}
	catalog := &fakeCatalog{processes: map[string]*ProcessDefinition{
		"P1": {Code: "P1", Category: "UNI", DataType: "U", Description: "Calculate commissions", Order: 1, GracePeriodDays: 5, Active: true},
		"P2": {Code: "P2", Category: "UNI", DataType: "U", Description: "Generate statements", Order: 2, GracePeriodDays: 0, Active: true},
		"P3": {Code: "P3", Category: "UNI", DataType: "U", Description: "Retired", Order: 3, Active: false},
		"C1": {Code: "C1", Category: "COL", DataType: "C", Description: "Collective billing", Order: 1, GracePeriodDays: 2, Active: true},
	}}
	return periods, catalog
}

func clockAt(y int, m time.Month, d, hour int) FixedClock {
	return FixedClock(time.Date(y, m, d, hour, 0, 0, 0, time.UTC))
}
