package closing

import (
	"fmt"
	"strings"
)

// FieldError is a single structural problem with a request.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RequestShapeError indicates a malformed or incomplete request.
// It is always returned before any backend call.
type RequestShapeError struct {
	Fields []FieldError
}

func (e *RequestShapeError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid request"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// PeriodNotFoundError indicates no closing period is registered for a month/year.
type PeriodNotFoundError struct {
	Period Period
}

func (e *PeriodNotFoundError) Error() string {
	return fmt.Sprintf("closing period not found for %s", e.Period)
}

// ProcessNotFoundError indicates a process code is unknown or inactive.
type ProcessNotFoundError struct {
	Code string
}

func (e *ProcessNotFoundError) Error() string {
	return fmt.Sprintf("process %s not found", e.Code)
}

// DeadlineViolationError blocks a whole batch when processes are past their
// execution window and the caller holds no override privilege.
type DeadlineViolationError struct {
	Invalid []InvalidProcess
}

func (e *DeadlineViolationError) Error() string {
	var sb strings.Builder
	sb.WriteString("processes past deadline:")
	for _, inv := range e.Invalid {
		sb.WriteString(fmt.Sprintf("\n%s: %s", inv.Code, inv.Reason))
	}
	return sb.String()
}

// PeriodBusyError indicates another batch holds the lock for the same period.
type PeriodBusyError struct {
	Category string
	Period   Period
}

func (e *PeriodBusyError) Error() string {
	return fmt.Sprintf("another batch is running for category %s, period %s", e.Category, e.Period)
}

// InfrastructureError wraps a backend failure on a read path.
type InfrastructureError struct {
	Op    string
	Cause error
}

func (e *InfrastructureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("backend unavailable: %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("backend unavailable: %s", e.Op)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Cause
}

func infraError(op string, err error) error {
	return &InfrastructureError{Op: op, Cause: err}
}
