// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/closing-engine/internal/closing"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stderr; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRequest outputs the batch about to run.
func (p *Printer) PrintRequest(req *closing.ExecutionRequest, actor string, override bool) {
	if req == nil {
		return
	}

	scope := req.DeriveScope()
	company := req.Company
	if scope.All {
		company = closing.AllCompanies
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Category:  %s / %s\n", req.Category, req.DataType))
	sb.WriteString(fmt.Sprintf("Period:    %s\n", req.Period()))
	sb.WriteString(fmt.Sprintf("Operator:  %s (override: %t)\n", actor, override))
	sb.WriteString(fmt.Sprintf("Company:   %s\n", company))
	if req.CarrierCode != "" {
		sb.WriteString(fmt.Sprintf("Carrier:   %s\n", req.CarrierCode))
	}
	if req.CPF != "" {
		sb.WriteString(fmt.Sprintf("CPF:       %s\n", req.CPF))
	}
	sb.WriteString(fmt.Sprintf("Mode:      preview=%t purge=%t\n", req.Preview, req.Purge))
	sb.WriteString(fmt.Sprintf("Processes: %s", strings.Join(limit(req.ProcessCodes), ", ")))

	p.printBox("CLOSING BATCH", sb.String())
}

// PrintOutcome outputs a human-readable summary of a finished batch.
func (p *Printer) PrintOutcome(outcome *closing.ExecutionOutcome) {
	if outcome == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Batch: %s\n", outcome.BatchID))
	sb.WriteString(outcome.Summary() + "\n")

	if len(outcome.Succeeded) > 0 {
		sb.WriteString("\nSucceeded:\n")
		for _, code := range limit(outcome.Succeeded) {
			sb.WriteString(fmt.Sprintf("  ✓ %s\n", code))
		}
		if n := len(outcome.Succeeded) - maxItemsToShow; n > 0 {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", n))
		}
	}

	if len(outcome.Failed) > 0 {
		sb.WriteString("\nFailed:\n")
		for i, f := range outcome.Failed {
			if i >= maxItemsToShow {
				sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(outcome.Failed)-maxItemsToShow))
				break
			}
			sb.WriteString(fmt.Sprintf("  ✗ %s: %s\n", f.Code, f.Error))
		}
	}

	p.printBox("BATCH OUTCOME", sb.String())
}

// PrintDeadlineViolation outputs the processes that blocked a batch.
func (p *Printer) PrintDeadlineViolation(v *closing.DeadlineViolationError) {
	if v == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d process(es) past deadline, nothing was run\n", len(v.Invalid)))
	for _, inv := range v.Invalid {
		sb.WriteString(fmt.Sprintf("\n%s\n  %s\n", inv.Code, inv.Reason))
	}

	p.printBox("DEADLINE VIOLATION", sb.String())
}

// PrintProcesses outputs a catalog listing as a table.
func (p *Printer) PrintProcesses(processes []closing.ProcessDefinition) {
	if len(processes) == 0 {
		p.printBox("PROCESSES", "(none)")
		return
	}

	var sb strings.Builder
	for _, proc := range processes {
		lastRun := "never"
		if proc.LastRunAt != nil {
			lastRun = proc.LastRunAt.Format("2006-01-02 15:04")
		}
		sb.WriteString(fmt.Sprintf("%3d %-10s +%dd %s\n", proc.Order, proc.Code, proc.GracePeriodDays, lastRun))
		sb.WriteString(fmt.Sprintf("    %s\n", proc.Description))
	}

	p.printBox(fmt.Sprintf("PROCESSES (%d)", len(processes)), sb.String())
}

func limit(items []string) []string {
	if len(items) > maxItemsToShow {
		return items[:maxItemsToShow]
	}
	return items
}
