package closing

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Reader serves the catalog and history read paths.
type Reader struct {
	catalog  ProcessCatalog
	history  HistoryReader
	periods  PeriodStore
	reserved []string
	log      logrus.FieldLogger
}

// NewReader creates a Reader. Reserved codes never appear in listings.
func NewReader(catalog ProcessCatalog, history HistoryReader, periods PeriodStore, reserved []string, log logrus.FieldLogger) *Reader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reader{
		catalog:  catalog,
		history:  history,
		periods:  periods,
		reserved: append([]string(nil), reserved...),
		log:      log.WithField("component", "catalog_reader"),
	}
}

// ListProcesses returns the active processes of a category and data type.
// With a period in the filter the period must exist, and every process
// carries its last run in that period.
func (r *Reader) ListProcesses(ctx context.Context, filter ProcessFilter) ([]ProcessDefinition, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	period := filter.Period()

	var (
		processes []ProcessDefinition
		found     *ClosingPeriod
	)

	g, gctx := errgroup.WithContext(ctx)
	if period != nil {
		g.Go(func() error {
			cp, err := r.periods.FindClosingPeriod(gctx, period.Month, period.Year)
			if err != nil {
				return infraError("find closing period", err)
			}
			found = cp
			return nil
		})
	}
	g.Go(func() error {
		list, err := r.catalog.ListActiveProcesses(gctx, filter.Category, filter.DataType, period, r.reserved)
		if err != nil {
			return infraError("list processes", err)
		}
		processes = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if period != nil && found == nil {
		return nil, &PeriodNotFoundError{Period: *period}
	}

	r.log.WithFields(logrus.Fields{
		"category":  filter.Category,
		"data_type": filter.DataType,
		"count":     len(processes),
	}).Debug("listed processes")

	if processes == nil {
		processes = []ProcessDefinition{}
	}
	return processes, nil
}

// ListHistory returns the executions of a process in a period, most recent first.
func (r *Reader) ListHistory(ctx context.Context, filter HistoryFilter) ([]HistoryEntry, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	entries, err := r.history.ListHistory(ctx, filter.Category, filter.Code, filter.Month, filter.Year)
	if err != nil {
		return nil, infraError("list history", err)
	}

	r.log.WithFields(logrus.Fields{
		"category": filter.Category,
		"process":  filter.Code,
		"count":    len(entries),
	}).Debug("listed history")

	if entries == nil {
		entries = []HistoryEntry{}
	}
	return entries, nil
}
