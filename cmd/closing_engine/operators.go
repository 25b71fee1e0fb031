package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/closing-engine/internal/server"
	"github.com/spf13/cobra"
)

var (
	opLogin       string
	opName        string
	opCanOverride bool
)

var operatorsCmd = &cobra.Command{
	Use:   "operators",
	Short: "Manage operator accounts",
}

var operatorsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an operator; the password is read from stdin",
	RunE:  runOperatorsCreate,
}

var operatorsTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for an existing operator",
	RunE:  runOperatorsToken,
}

var operatorsDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable an operator's login",
	RunE:  runOperatorsDisable,
}

func init() {
	operatorsCreateCmd.Flags().StringVar(&opLogin, "login", "", "Operator login (required)")
	operatorsCreateCmd.Flags().StringVar(&opName, "name", "", "Display name")
	operatorsCreateCmd.Flags().BoolVar(&opCanOverride, "can-override", false, "Allow running processes past their deadline")
	_ = operatorsCreateCmd.MarkFlagRequired("login")

	operatorsTokenCmd.Flags().StringVar(&opLogin, "login", "", "Operator login (required)")
	_ = operatorsTokenCmd.MarkFlagRequired("login")

	operatorsDisableCmd.Flags().StringVar(&opLogin, "login", "", "Operator login (required)")
	_ = operatorsDisableCmd.MarkFlagRequired("login")

	operatorsCmd.AddCommand(operatorsCreateCmd, operatorsTokenCmd, operatorsDisableCmd)
	rootCmd.AddCommand(operatorsCmd)
}

func runOperatorsCreate(cmd *cobra.Command, _ []string) error {
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.Password.Validate(); err != nil {
		return err
	}
	op, err := server.NewOperatorService(a.db, &a.cfg.Password).Create(ctx, opLogin, opName, password, opCanOverride)
	if err != nil {
		return err
	}
	a.audit.WithField("event", "operator_created").WithField("login", op.Login).
		WithField("can_override", op.CanOverride).Info("operator created")
	return writeJSON(cmd.OutOrStdout(), op)
}

func runOperatorsToken(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.JWT.Validate(); err != nil {
		return err
	}
	op, err := a.db.GetOperatorByLogin(ctx, opLogin)
	if err != nil {
		return err
	}
	if op == nil || !op.Active {
		return fmt.Errorf("operator %q not found or inactive", opLogin)
	}

	token, err := server.NewJWTService(&a.cfg.JWT).GenerateToken(op.Login, op.CanOverride)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}

func runOperatorsDisable(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.db.SetOperatorActive(ctx, opLogin, false); err != nil {
		return err
	}
	a.audit.WithField("event", "operator_disabled").WithField("login", opLogin).Info("operator disabled")
	return nil
}

// readPassword reads the first line of r as the password.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	return password, nil
}
