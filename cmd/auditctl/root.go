// Command auditctl is the operator CLI for the audit scanner fleet:
// one-off scan passes, fleet status, and config validation. Adapted from
// the teacher's cmd/cli package.
package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "auditctl",
	Short: "auditctl is the operator CLI for the audit scanner",
	Long:  `A command-line interface for operating the audit scanner fleet.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() { //nolint:gochecknoinits // cobra command registration
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}
