// Package main provides the entry point for the closing engine server and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "time/tzdata" // deadline checks need zone data on minimal images
)

var rootCmd = &cobra.Command{
	Use:   "closing_engine",
	Short: "Closing process execution and deadline governance",
	Long: "closing_engine runs the monthly billing closing processes of a health plan, " +
		"enforcing each process's execution deadline and recording a per-process outcome.",
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
