// Package closing implements the process execution and deadline governance
// engine used to close monthly health-plan billing cycles.
package closing

import (
	"fmt"
	"time"
)

// AllCompanies is the company value that targets every company in a batch.
const AllCompanies = "ALL"

// ProcessDefinition identifies a unit of closing work.
type ProcessDefinition struct {
	Code            string     `json:"code"`
	Category        string     `json:"category"`
	DataType        string     `json:"data_type"`
	Description     string     `json:"description"`
	Order           int        `json:"order"`
	GracePeriodDays int        `json:"grace_period_days"`
	Active          bool       `json:"active"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
}

// ClosingPeriod is the administrative cutoff for a reference month/year.
type ClosingPeriod struct {
	Month      int       `json:"month"`
	Year       int       `json:"year"`
	CutoffDate time.Time `json:"cutoff_date"`
}

// Period is a reference month/year pair.
type Period struct {
	Month int
	Year  int
}

func (p Period) String() string {
	return fmt.Sprintf("%02d/%d", p.Month, p.Year)
}

// ExecutionRequest is the unit of work submitted by a caller.
// The actor and override privilege travel beside it, never inside it.
type ExecutionRequest struct {
	Category     string   `json:"category" validate:"required,max=10"`
	DataType     string   `json:"data_type" validate:"required,max=10"`
	Month        int      `json:"month" validate:"min=1,max=12"`
	Year         int      `json:"year" validate:"min=2000"`
	ProcessCodes []string `json:"process_codes" validate:"required,min=1,unique,dive,required"`
	Purge        bool     `json:"purge,omitempty"`
	Preview      bool     `json:"preview,omitempty"`
	CarrierCode  string   `json:"carrier_code,omitempty" validate:"max=20"`
	Company      string   `json:"company,omitempty" validate:"max=20"`
	CPF          string   `json:"cpf,omitempty" validate:"omitempty,numeric,len=11"`
}

// Period returns the reference period of the request.
func (r *ExecutionRequest) Period() Period {
	return Period{Month: r.Month, Year: r.Year}
}

// Scope is the company/carrier/individual narrowing applied to an invocation.
type Scope struct {
	All         bool
	Company     string
	CarrierCode string
	CPF         string
}

// DeriveScope resolves the execution scope of the request.
// An empty company or AllCompanies means company-wide.
func (r *ExecutionRequest) DeriveScope() Scope {
	if r.Company == "" || r.Company == AllCompanies {
		return Scope{All: true, CarrierCode: r.CarrierCode, CPF: r.CPF}
	}
	return Scope{Company: r.Company, CarrierCode: r.CarrierCode, CPF: r.CPF}
}

// ProcedureCall carries every parameter forwarded to the closing procedure.
type ProcedureCall struct {
	ProcessCode string
	Category    string
	DataType    string
	Month       int
	Year        int
	Preview     bool
	Purge       bool
	Actor       string
	Scope       Scope
}

// Failure is a process that could not be executed.
type Failure struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// ExecutionOutcome is the aggregated result of a batch.
type ExecutionOutcome struct {
	BatchID   string    `json:"batch_id"`
	Succeeded []string  `json:"succeeded"`
	Failed    []Failure `json:"failed"`
}

// Summary returns the human-readable completion message for the outcome.
func (o *ExecutionOutcome) Summary() string {
	return fmt.Sprintf("Execution completed: %d success(es), %d error(s)", len(o.Succeeded), len(o.Failed))
}

// HistoryEntry is one past invocation recorded by the procedure itself.
type HistoryEntry struct {
	Category    string    `json:"category"`
	ProcessCode string    `json:"process_code"`
	Month       int       `json:"month"`
	Year        int       `json:"year"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// ProcessFilter selects catalog entries. Month and Year are optional but
// must be given together.
type ProcessFilter struct {
	Category string `json:"category" validate:"required"`
	DataType string `json:"data_type" validate:"required"`
	Month    int    `json:"month,omitempty" validate:"omitempty,min=1,max=12"`
	Year     int    `json:"year,omitempty" validate:"omitempty,min=2000"`
}

// HistoryFilter selects history entries for one process and period.
type HistoryFilter struct {
	Category string `json:"category" validate:"required"`
	Code     string `json:"code" validate:"required"`
	Month    int    `json:"month" validate:"min=1,max=12"`
	Year     int    `json:"year" validate:"min=2000"`
}

// DeadlineResult is the verdict for a single process.
type DeadlineResult struct {
	Allowed bool
	Reason  string
}

// InvalidProcess is a process blocked by its deadline.
type InvalidProcess struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// DeadlineReport is the verdict for a list of processes.
type DeadlineReport struct {
	Valid   []string
	Invalid []InvalidProcess
}
