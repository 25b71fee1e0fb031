package main

import (
	"fmt"

	"github.com/jonathan/closing-engine/internal/server"
	"github.com/jonathan/closing-engine/internal/server/ratelimit"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the process catalog, history and batch execution endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.JWT.Validate(); err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}
	if err := a.cfg.Password.Validate(); err != nil {
		return fmt.Errorf("failed to create password config: %w", err)
	}

	eng, err := a.buildEngine(ctx)
	if err != nil {
		return err
	}

	port := a.cfg.Port
	if servePort != 0 {
		port = servePort
	}

	srv := server.New(server.Config{
		Port:      port,
		RateLimit: ratelimit.NewConfig(a.cfg.RateLimit),
	}, server.Deps{
		Executor:  eng.executor,
		Reader:    eng.reader,
		Operators: server.NewOperatorService(a.db, &a.cfg.Password),
		Tokens:    server.NewJWTService(&a.cfg.JWT),
		Health:    a.db,
		Logger:    a.log,
	})

	return srv.Start()
}
