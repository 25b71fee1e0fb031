package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  `Create or upgrade the catalog, period, history and operator tables.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	applied, err := a.db.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		a.log.Info("database schema is up to date")
		return nil
	}
	for _, name := range applied {
		a.log.WithField("migration", name).Info("migration applied")
	}
	return nil
}
