package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/audit-scanner/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate audit scanner configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load configuration and report any validation errors",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.ValidateForServer(); err != nil {
			return fmt.Errorf("configuration is invalid: %w", err)
		}
		fmt.Println("configuration is valid")
		return nil
	},
}

func init() { //nolint:gochecknoinits // cobra command registration
	configCmd.AddCommand(configValidateCmd)
}
