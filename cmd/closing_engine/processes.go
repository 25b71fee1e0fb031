package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jonathan/closing-engine/internal/closing"
	"github.com/jonathan/closing-engine/internal/observability"
	"github.com/jonathan/closing-engine/internal/schemas"
	"github.com/spf13/cobra"
)

var (
	procCategory string
	procDataType string
	procCode     string
	procMonth    int
	procYear     int
	execFile     string
	execOperator string
	execOverride bool
	verbose      bool
)

var processesCmd = &cobra.Command{
	Use:   "processes",
	Short: "Inspect and run closing processes",
}

var processesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active processes of a category and data type",
	RunE:  runProcessesList,
}

var processesHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the executions of a process in a period",
	RunE:  runProcessesHistory,
}

var processesPeriodCmd = &cobra.Command{
	Use:   "period",
	Short: "Check that a closing period is registered",
	RunE:  runProcessesPeriod,
}

var processesExecuteCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run a batch described by a JSON execution request",
	Long: `Run a batch described by a JSON execution request file ("-" reads stdin).
The file is validated against schemas/execution_request.schema.json. The
operator must exist and be active; --override takes effect only for
operators allowed to override deadlines.`,
	RunE: runProcessesExecute,
}

func init() {
	processesListCmd.Flags().StringVar(&procCategory, "category", "", "Process category (required)")
	processesListCmd.Flags().StringVar(&procDataType, "data-type", "", "Data type (required)")
	processesListCmd.Flags().IntVar(&procMonth, "month", 0, "Reference month, adds last run per process")
	processesListCmd.Flags().IntVar(&procYear, "year", 0, "Reference year, adds last run per process")
	_ = processesListCmd.MarkFlagRequired("category")
	_ = processesListCmd.MarkFlagRequired("data-type")

	processesHistoryCmd.Flags().StringVar(&procCategory, "category", "", "Process category (required)")
	processesHistoryCmd.Flags().StringVar(&procCode, "code", "", "Process code (required)")
	processesHistoryCmd.Flags().IntVar(&procMonth, "month", 0, "Reference month (required)")
	processesHistoryCmd.Flags().IntVar(&procYear, "year", 0, "Reference year (required)")
	for _, name := range []string{"category", "code", "month", "year"} {
		_ = processesHistoryCmd.MarkFlagRequired(name)
	}

	processesPeriodCmd.Flags().IntVar(&procMonth, "month", 0, "Reference month (required)")
	processesPeriodCmd.Flags().IntVar(&procYear, "year", 0, "Reference year (required)")
	_ = processesPeriodCmd.MarkFlagRequired("month")
	_ = processesPeriodCmd.MarkFlagRequired("year")

	processesExecuteCmd.Flags().StringVarP(&execFile, "file", "f", "", "Execution request JSON file (required)")
	processesExecuteCmd.Flags().StringVar(&execOperator, "operator", "", "Operator login recorded as the actor (required)")
	processesExecuteCmd.Flags().BoolVar(&execOverride, "override", false, "Run past deadlines (operator must hold the privilege)")
	_ = processesExecuteCmd.MarkFlagRequired("file")
	_ = processesExecuteCmd.MarkFlagRequired("operator")

	processesCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print human-readable summaries to stderr")

	processesCmd.AddCommand(processesListCmd, processesHistoryCmd, processesPeriodCmd, processesExecuteCmd)
	rootCmd.AddCommand(processesCmd)
}

func runProcessesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	eng, err := a.buildEngine(ctx)
	if err != nil {
		return err
	}
	processes, err := eng.reader.ListProcesses(ctx, closing.ProcessFilter{
		Category: procCategory,
		DataType: procDataType,
		Month:    procMonth,
		Year:     procYear,
	})
	if err != nil {
		return err
	}
	if verbose {
		observability.NewPrinter(cmd.ErrOrStderr()).PrintProcesses(processes)
	}
	return writeJSON(cmd.OutOrStdout(), processes)
}

func runProcessesHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	eng, err := a.buildEngine(ctx)
	if err != nil {
		return err
	}
	entries, err := eng.reader.ListHistory(ctx, closing.HistoryFilter{
		Category: procCategory,
		Code:     procCode,
		Month:    procMonth,
		Year:     procYear,
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), entries)
}

func runProcessesPeriod(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	eng, err := a.buildEngine(ctx)
	if err != nil {
		return err
	}
	exists, message, err := eng.validator.PeriodExists(ctx, procMonth, procYear)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"exists":  exists,
		"message": message,
		"current": eng.validator.IsCurrentPeriod(procMonth, procYear),
	})
}

func runProcessesExecute(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	req, err := readExecutionRequest(execFile, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	op, err := a.db.GetOperatorByLogin(ctx, execOperator)
	if err != nil {
		return err
	}
	if op == nil || !op.Active {
		return fmt.Errorf("operator %q not found or inactive", execOperator)
	}
	if execOverride && !op.CanOverride {
		return fmt.Errorf("operator %q is not allowed to override deadlines", execOperator)
	}

	eng, err := a.buildEngine(ctx)
	if err != nil {
		return err
	}

	var printer *observability.Printer
	if verbose {
		printer = observability.NewPrinter(cmd.ErrOrStderr())
		printer.PrintRequest(req, op.Login, execOverride)
	}

	outcome, err := eng.executor.Execute(ctx, req, op.Login, execOverride)
	if printer != nil {
		var violation *closing.DeadlineViolationError
		if errors.As(err, &violation) {
			printer.PrintDeadlineViolation(violation)
		}
		printer.PrintOutcome(outcome)
	}
	if outcome != nil {
		if werr := writeJSON(cmd.OutOrStdout(), map[string]any{
			"batch_id":        outcome.BatchID,
			"succeeded":       outcome.Succeeded,
			"failed":          outcome.Failed,
			"summary_message": outcome.Summary(),
		}); werr != nil {
			return werr
		}
	}
	return err
}

// readExecutionRequest reads, schema-validates and decodes a request file.
func readExecutionRequest(path string, stdin io.Reader) (*closing.ExecutionRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read execution request: %w", err)
	}

	if err := schemas.ValidateExecutionRequest(data); err != nil {
		var verr *schemas.ValidationError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("execution request %s is invalid: %w", path, err)
		}
		return nil, err
	}

	var req closing.ExecutionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode execution request: %w", err)
	}
	return &req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
