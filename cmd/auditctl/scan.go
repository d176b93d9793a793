package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/audit-scanner/internal/app"
	"github.com/sevigo/audit-scanner/internal/config"
	"github.com/sevigo/audit-scanner/internal/logger"
)

var scanOnce bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan pass over every auto-scan repository",
	Long: `Runs the orchestrator's scan loop against the configured fleet.
With --once, runs exactly one tick synchronously and exits; otherwise runs
the interval loop until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.ValidateForCLI(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		log := logger.NewLogger(cfg.Logging, nil)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		application, cleanup, err := app.NewApp(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer cleanup()
		defer func() {
			if err := application.Stop(); err != nil {
				log.Error("error during shutdown", "error", err)
			}
		}()

		if scanOnce {
			log.Info("running single scan pass")
			application.Orchestrator.RunOnce(ctx)
			return nil
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		log.Info("running scan loop", "tick_interval", cfg.Orchestrator.TickInterval)
		if err := application.Orchestrator.Run(runCtx); err != nil && runCtx.Err() == nil {
			return fmt.Errorf("scan loop failed: %w", err)
		}
		return nil
	},
}

func init() { //nolint:gochecknoinits // cobra command registration
	scanCmd.Flags().BoolVar(&scanOnce, "once", false, "Run a single scan tick and exit instead of looping")
}
